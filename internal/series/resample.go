// Package series reduces raw, irregularly sampled metric data to a fixed
// number of points via chunked median aggregation, filling gaps with linear
// interpolation.
package series

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// DefaultTargetPoints is the number of output points a resampled series is
// reduced to, regardless of period.
const DefaultTargetPoints = 60

// Resample partitions values into contiguous chunks of floor(len/target)
// samples (the final partial chunk is kept as a smaller chunk) and reduces
// each chunk to the median of its present values. Chunks with no present
// values become gaps, which are then filled by linear interpolation. Every
// output point is rounded to one decimal place.
//
// A series with no signal at all (every chunk absent, or every median zero)
// returns an empty slice: callers must treat that as "no data". If there are
// fewer samples than target points the chunk size would be zero; callers are
// expected to reject such inputs upstream, and Resample returns nil.
func Resample(values []*float64, target int) []float64 {
	if target <= 0 {
		return nil
	}
	chunkSize := len(values) / target
	if chunkSize == 0 {
		return nil
	}

	var points []*float64
	for start := 0; start < len(values); start += chunkSize {
		end := start + chunkSize
		if end > len(values) {
			end = len(values)
		}
		present := make([]float64, 0, end-start)
		for _, v := range values[start:end] {
			if v != nil {
				present = append(present, *v)
			}
		}
		if len(present) == 0 {
			points = append(points, nil)
			continue
		}
		m := median(present)
		points = append(points, &m)
	}

	if !hasSignal(points) {
		return []float64{}
	}

	dense := fillGaps(points)
	for i, v := range dense {
		dense[i] = math.Round(v*10) / 10
	}
	return dense
}

// hasSignal reports whether any point carries a nonzero value. A series that
// is entirely gaps or entirely zeros is noise from an idle backend, not data.
func hasSignal(points []*float64) bool {
	for _, p := range points {
		if p != nil && *p != 0 {
			return true
		}
	}
	return false
}

// median returns the linearly interpolated 0.5 quantile: the middle value
// for odd-length input, the mean of the two middle values for even length.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	pos := 0.5 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// fillGaps replaces nil entries with values linearly interpolated over index
// position between the nearest present neighbors. Entries outside the span
// of present values clamp to the nearest present value. At least one entry
// must be present; Resample guarantees this.
func fillGaps(points []*float64) []float64 {
	xs := make([]float64, 0, len(points))
	ys := make([]float64, 0, len(points))
	for i, p := range points {
		if p != nil {
			xs = append(xs, float64(i))
			ys = append(ys, *p)
		}
	}

	dense := make([]float64, len(points))
	if len(xs) == 1 {
		// A single anchor fixes every gap to its value.
		for i := range dense {
			dense[i] = ys[0]
		}
		return dense
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		// Indexes are strictly increasing, so Fit cannot fail here.
		panic(err)
	}
	for i, p := range points {
		if p != nil {
			dense[i] = *p
			continue
		}
		dense[i] = pl.Predict(float64(i))
	}
	return dense
}
