package metrics

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/wikimedia/performance-coal/internal/domain"
)

type renderCall struct {
	target string
	from   int64
	to     int64
}

type backendStub struct {
	calls    []renderCall
	samples  func(target string) []domain.Sample
	failWhen func(target string) error
}

func (b *backendStub) Render(_ context.Context, target string, from, to int64) ([]domain.Sample, error) {
	b.calls = append(b.calls, renderCall{target: target, from: from, to: to})
	if b.failWhen != nil {
		if err := b.failWhen(target); err != nil {
			return nil, err
		}
	}
	return b.samples(target), nil
}

func denseSamples(n int, start, step int64, value float64) []domain.Sample {
	samples := make([]domain.Sample, n)
	for i := range samples {
		v := value
		samples[i] = domain.Sample{Value: &v, Timestamp: start + int64(i)*step}
	}
	return samples
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Unix(1_700_000_000, 0)
}

func TestFetchWindowAndStep(t *testing.T) {
	stub := &backendStub{samples: func(string) []domain.Sample {
		return denseSamples(600, 1_699_913_600, 144, 42)
	}}
	svc := New(stub, testLogger(), fixedNow)

	result, err := svc.Fetch(context.Background(), "responseStart", domain.Periods["day"])
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}

	if len(stub.calls) != 1 {
		t.Fatalf("expected one backend call, got %d", len(stub.calls))
	}
	call := stub.calls[0]
	if call.target != "coal.responseStart" {
		t.Fatalf("unexpected target %q", call.target)
	}
	wantTo := fixedNow().Unix() - 60
	if call.to != wantTo {
		t.Fatalf("expected to=%d, got %d", wantTo, call.to)
	}
	if call.from != wantTo-86400 {
		t.Fatalf("expected from=%d, got %d", wantTo-86400, call.from)
	}

	if result.Step != 1440 {
		t.Fatalf("expected step 1440, got %d", result.Step)
	}
	if result.Start != 1_699_913_600 {
		t.Fatalf("expected start from first sample, got %d", result.Start)
	}
	if result.End != 1_699_913_600+599*144 {
		t.Fatalf("expected end from last sample, got %d", result.End)
	}
	if len(result.Points) != 60 {
		t.Fatalf("expected 60 points, got %d", len(result.Points))
	}
}

func TestFetchRejectsTooFewSamples(t *testing.T) {
	stub := &backendStub{samples: func(string) []domain.Sample {
		return denseSamples(1, 1000, 60, 5)
	}}
	svc := New(stub, testLogger(), fixedNow)
	if _, err := svc.Fetch(context.Background(), "firstPaint", domain.Periods["hour"]); err == nil {
		t.Fatal("expected error for single-sample series")
	}

	// Enough to pass the two-sample floor but not enough to fill a chunk
	// per output point.
	stub.samples = func(string) []domain.Sample {
		return denseSamples(10, 1000, 60, 5)
	}
	if _, err := svc.Fetch(context.Background(), "firstPaint", domain.Periods["hour"]); err == nil {
		t.Fatal("expected error when samples cannot fill the target points")
	}
}

func TestAggregateFailsFastOnFirstError(t *testing.T) {
	backendErr := errors.New("connection refused")
	stub := &backendStub{
		samples: func(string) []domain.Sample {
			return denseSamples(600, 1000, 144, 7)
		},
		failWhen: func(target string) error {
			if target == "coal.domInteractive" {
				return backendErr
			}
			return nil
		},
	}
	svc := New(stub, testLogger(), fixedNow)

	_, _, err := svc.Aggregate(context.Background(), "day")
	if err == nil {
		t.Fatal("expected aggregation to fail")
	}
	var unavailable *UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected UnavailableError, got %T", err)
	}
	if unavailable.Metric != "domInteractive" {
		t.Fatalf("expected failing metric domInteractive, got %s", unavailable.Metric)
	}
	if !errors.Is(err, backendErr) {
		t.Fatal("expected wrapped backend error")
	}
	// Fail-fast: loadEventEnd and saveTiming must never be requested.
	if len(stub.calls) != 3 {
		t.Fatalf("expected 3 backend calls before abort, got %d", len(stub.calls))
	}
}

func TestAggregateEnvelopeFollowsLastMetric(t *testing.T) {
	starts := map[string]int64{
		"coal.responseStart":  1000,
		"coal.firstPaint":     1010,
		"coal.domInteractive": 1020,
		"coal.loadEventEnd":   1030,
		"coal.saveTiming":     1040,
	}
	stub := &backendStub{samples: func(target string) []domain.Sample {
		return denseSamples(600, starts[target], 144, 3)
	}}
	svc := New(stub, testLogger(), fixedNow)

	envelope, retention, err := svc.Aggregate(context.Background(), "day")
	if err != nil {
		t.Fatalf("unexpected aggregate error: %v", err)
	}

	if len(stub.calls) != len(domain.TrackedMetrics) {
		t.Fatalf("expected %d backend calls, got %d", len(domain.TrackedMetrics), len(stub.calls))
	}
	for i, metric := range domain.TrackedMetrics {
		if !strings.HasSuffix(stub.calls[i].target, metric) {
			t.Fatalf("call %d: expected metric %s, got %s", i, metric, stub.calls[i].target)
		}
	}
	if len(envelope.Points) != len(domain.TrackedMetrics) {
		t.Fatalf("expected %d metric series, got %d", len(domain.TrackedMetrics), len(envelope.Points))
	}
	if envelope.Start != starts["coal.saveTiming"] {
		t.Fatalf("expected envelope start from last metric, got %d", envelope.Start)
	}
	if envelope.Step != 1440 {
		t.Fatalf("expected step 1440, got %d", envelope.Step)
	}
	if retention != 720 {
		t.Fatalf("expected retention step/2 = 720, got %d", retention)
	}
}

func TestAggregateRejectsUnknownPeriod(t *testing.T) {
	stub := &backendStub{samples: func(string) []domain.Sample { return nil }}
	svc := New(stub, testLogger(), fixedNow)

	_, _, err := svc.Aggregate(context.Background(), "fortnight")
	if !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("expected no backend calls for invalid period, got %d", len(stub.calls))
	}
}
