// Package metrics retrieves tracked page-load timing metrics from the
// time-series backend and reduces them to fixed-size, gap-free series.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/wikimedia/performance-coal/internal/domain"
	"github.com/wikimedia/performance-coal/internal/series"
)

// targetPrefix namespaces metric names on the graphite side.
const targetPrefix = "coal."

// windowGrace backs the query window off from now, so the final bucket,
// which may not have been flushed yet, is never requested.
const windowGrace = 60 * time.Second

// ErrInvalidPeriod reports an unrecognized period name. It is returned
// before any backend call is made.
var ErrInvalidPeriod = errors.New("invalid period")

// UnavailableError reports that one tracked metric could not be retrieved.
type UnavailableError struct {
	Metric string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("metric %s%s unavailable: %v", targetPrefix, e.Metric, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Backend is the read-only time-series collaborator queried per metric.
type Backend interface {
	Render(ctx context.Context, target string, from, to int64) ([]domain.Sample, error)
}

// Service fetches and aggregates the tracked metrics.
type Service struct {
	backend      Backend
	logger       *slog.Logger
	now          func() time.Time
	targetPoints int
}

// New constructs a Service. A nil now falls back to time.Now.
func New(backend Backend, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		backend:      backend,
		logger:       logger,
		now:          now,
		targetPoints: series.DefaultTargetPoints,
	}
}

// Fetch retrieves one metric's raw series over the trailing period and
// resamples it. Start and End come from the first and last raw samples, which
// may be offset from the requested window by backend bucket alignment.
func (s *Service) Fetch(ctx context.Context, metric string, periodSeconds int64) (domain.MetricSeries, error) {
	started := s.now()
	to := started.Unix() - int64(windowGrace/time.Second)
	from := to - periodSeconds

	samples, err := s.backend.Render(ctx, targetPrefix+metric, from, to)
	if err != nil {
		return domain.MetricSeries{}, fmt.Errorf("render %s%s: %w", targetPrefix, metric, err)
	}
	if len(samples) < 2 {
		return domain.MetricSeries{}, fmt.Errorf("no datapoints for %s%s in %d - %d", targetPrefix, metric, from, to)
	}
	if len(samples) < s.targetPoints {
		// Resampling needs at least one raw sample per output point.
		return domain.MetricSeries{}, fmt.Errorf("insufficient datapoints for %s%s: got %d, need %d", targetPrefix, metric, len(samples), s.targetPoints)
	}

	values := make([]*float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}

	result := domain.MetricSeries{
		Start:  samples[0].Timestamp,
		End:    samples[len(samples)-1].Timestamp,
		Step:   periodSeconds / int64(s.targetPoints),
		Points: series.Resample(values, s.targetPoints),
	}
	s.logger.Debug("metric fetched",
		"metric", metric,
		"from", from,
		"to", to,
		"samples", len(samples),
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

// Aggregate runs Fetch over every tracked metric for the named period and
// merges the results into one envelope. It fails on the first metric that
// cannot be retrieved; no partial envelope is ever returned. The second
// return value is the cache retention in seconds: half a step, since new
// data lands roughly once per step.
func (s *Service) Aggregate(ctx context.Context, periodName string) (domain.MetricsEnvelope, int64, error) {
	periodSeconds, ok := domain.Periods[periodName]
	if !ok {
		return domain.MetricsEnvelope{}, 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, periodName)
	}

	envelope := domain.MetricsEnvelope{
		Points: make(map[string][]float64, len(domain.TrackedMetrics)),
	}
	var last domain.MetricSeries
	for _, metric := range domain.TrackedMetrics {
		result, err := s.Fetch(ctx, metric, periodSeconds)
		if err != nil {
			s.logger.Error("metric fetch failed", "metric", metric, "period", periodName, "error", err)
			return domain.MetricsEnvelope{}, 0, &UnavailableError{Metric: metric, Err: err}
		}
		envelope.Points[metric] = result.Points
		last = result
	}

	// Start, end and step follow the last metric processed; backends may
	// report slightly different bucket alignment per metric, and the final
	// metric's window is authoritative.
	envelope.Start = last.Start
	envelope.End = last.End
	envelope.Step = last.Step

	return envelope, last.Step / 2, nil
}
