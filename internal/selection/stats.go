package selection

import (
	"math"
	"sort"
)

// Quantile returns the q-th quantile of values with linear interpolation
// between closest ranks: position q*(n-1) over the sorted sample.
func Quantile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	switch {
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[n-1]
	}

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := lo + 1
	if hi >= n {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// PercentileRank returns rank/n for each value, where tied values share the
// average of the 1-based ranks they span. Results lie in (0, 1].
func PercentileRank(values []float64) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	for start := 0; start < n; {
		end := start + 1
		for end < n && values[idx[end]] == values[idx[start]] {
			end++
		}
		// positions start..end-1 are 1-based ranks start+1..end
		avg := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			out[idx[k]] = avg / float64(n)
		}
		start = end
	}
	return out
}

// clip bounds v to [lo, hi]
func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
