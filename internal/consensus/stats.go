package consensus

import (
	"math"
	"sort"
)

// Median sorts a copy of values; even counts average the two middle elements. Empty → 0.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// TrimmedMean drops nil entries, then with at least 3 values discards one from each end
// before averaging. Empty → 0.
func TrimmedMean(values []*float64) float64 {
	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil {
			kept = append(kept, *v)
		}
	}
	if len(kept) == 0 {
		return 0
	}
	sort.Float64s(kept)
	if len(kept) >= 3 {
		kept = kept[1 : len(kept)-1]
	}
	sum := 0.0
	for _, v := range kept {
		sum += v
	}
	return sum / float64(len(kept))
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(x, hi))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
