package frame

import (
	"math"
	"sort"
)

// Percentile returns the p-th percentile (0..100) of the non-NaN values using
// linear interpolation between closest ranks. It returns NaN when every value
// is NaN.
func Percentile(values []float64, p float64) float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return math.NaN()
	}
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Median returns the median of the non-NaN values, or NaN if there are none.
func Median(values []float64) float64 {
	return Percentile(values, 50)
}
