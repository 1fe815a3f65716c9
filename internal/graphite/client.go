// Package graphite provides a read-only client for the graphite render API.
package graphite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wikimedia/performance-coal/internal/domain"
)

// Client issues render queries against a graphite server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New constructs a Client pointing at the provided graphite base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		return nil, errors.New("graphite base url is required")
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "https://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid graphite base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// datapoint decodes graphite's [value|null, timestamp] pair encoding.
type datapoint struct {
	value     *float64
	timestamp int64
}

func (d *datapoint) UnmarshalJSON(b []byte) error {
	var pair [2]*float64
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if pair[1] == nil {
		return errors.New("datapoint has no timestamp")
	}
	d.value = pair[0]
	d.timestamp = int64(*pair[1])
	return nil
}

type renderSeries struct {
	Target     string      `json:"target"`
	Datapoints []datapoint `json:"datapoints"`
}

// Render fetches the raw series for target over [from, to] and returns its
// datapoints in chronological order.
func (c *Client) Render(ctx context.Context, target string, from, to int64) ([]domain.Sample, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + "/render?" + url.Values{
		"target": {target},
		"from":   {strconv.FormatInt(from, 10)},
		"to":     {strconv.FormatInt(to, 10)},
		"format": {"json"},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphite returned status %d for target %s", resp.StatusCode, target)
	}

	var series []renderSeries
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return nil, fmt.Errorf("decode render response: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("graphite returned no series for target %s", target)
	}

	samples := make([]domain.Sample, len(series[0].Datapoints))
	for i, dp := range series[0].Datapoints {
		samples[i] = domain.Sample{Value: dp.value, Timestamp: dp.timestamp}
	}
	return samples, nil
}
