package domain

// TrackedMetrics lists the navigation-timing metrics served by the API, in
// the order they are fetched and reported.
var TrackedMetrics = []string{
	"responseStart",  // Time to user agent receiving first byte
	"firstPaint",     // Time to initial render
	"domInteractive", // Time to DOM Ready event
	"loadEventEnd",   // Time to load event completion
	"saveTiming",     // Time to first byte for page edits
}

// Periods maps a period name to its span in seconds.
var Periods = map[string]int64{
	"hour":  60 * 60,
	"day":   60 * 60 * 24,
	"week":  60 * 60 * 24 * 7,
	"month": 60 * 60 * 24 * 30,
	"year":  int64(60 * 60 * 24 * 365.25),
}

// Sample is one raw datapoint as reported by the time-series backend. A nil
// Value marks a gap; a recorded 0 is a real measurement, not a gap.
type Sample struct {
	Value     *float64
	Timestamp int64
}

// MetricSeries is one metric's resampled series. Start and End are the
// timestamps actually observed in the raw data, which may be offset from the
// requested window by backend bucket alignment.
type MetricSeries struct {
	Start  int64     `json:"start"`
	End    int64     `json:"end"`
	Step   int64     `json:"step"`
	Points []float64 `json:"points"`
}

// MetricsEnvelope is the full response body for one metrics request.
type MetricsEnvelope struct {
	Start  int64                `json:"start"`
	End    int64                `json:"end"`
	Step   int64                `json:"step"`
	Points map[string][]float64 `json:"points"`
}
