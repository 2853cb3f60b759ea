package skew

import (
	"math"
	"sort"

	"partcount/internal/lines"

	"gonum.org/v1/gonum/stat"
)

// Candidates returns the normalized angle of every segment, deduplicated,
// in detection order.
func Candidates(segs []lines.Segment) []float64 {
	seen := make(map[float64]bool, len(segs))
	out := make([]float64, 0, len(segs))
	for _, s := range segs {
		a := s.Angle()
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}

// roundEpsilon absorbs binary representation error, e.g. 0.3*10 > 3.
const roundEpsilon = 1e-9

// RoundAngle rounds to one decimal with magnitudes rounding up on the
// positive side and toward zero on the negative side (ceiling).
func RoundAngle(deg float64) float64 {
	r := math.Ceil(deg*10-roundEpsilon) / 10
	if r == 0 {
		return 0 // no negative zero
	}
	return r
}

// MedianFallback trims near-diagonal outliers and returns the median of
// what is left. While the spread of absolute values exceeds maxSpread, every
// angle whose magnitude equals the current maximum is dropped.
func MedianFallback(angles []float64, maxSpread float64) float64 {
	if len(angles) == 0 {
		return 0
	}
	kept := append([]float64(nil), angles...)
	for {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, a := range kept {
			lo = math.Min(lo, math.Abs(a))
			hi = math.Max(hi, math.Abs(a))
		}
		if hi-lo <= maxSpread {
			break
		}
		next := kept[:0]
		for _, a := range kept {
			if math.Abs(a) != hi {
				next = append(next, a)
			}
		}
		kept = next
	}
	return median(kept)
}

// median averages the two middle values for even counts.
func median(x []float64) float64 {
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return stat.Mean(sorted[n/2-1:n/2+1], nil)
}
