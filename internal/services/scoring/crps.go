package scoring

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// CRPS of the empirical distribution of sorted against observation y:
// E|X-y| - 0.5*E|X-X'|. sorted must be ascending and non-empty.
func CRPS(sorted []float64, y float64) float64 {
	n := float64(len(sorted))
	var absErr, spread float64
	for i, x := range sorted {
		absErr += math.Abs(x - y)
		spread += x * (2*float64(i) - n + 1)
	}
	return absErr/n - spread/(n*n)
}

// RelativeCRPS is CRPS(sorted, y)/y computed on x/y, so prices far above y
// cannot overflow the sums. y must be positive.
func RelativeCRPS(sorted []float64, y float64) float64 {
	n := float64(len(sorted))
	var absErr, spread float64
	for i, x := range sorted {
		r := x / y
		absErr += math.Abs(r - 1)
		spread += r * (2*float64(i) - n + 1)
	}
	return absErr/n - spread/(n*n)
}

// Covered reports whether y lies in the [lo, hi] empirical quantile interval of sorted.
func Covered(sorted []float64, y, lo, hi float64) bool {
	return y >= stat.Quantile(lo, stat.Empirical, sorted, nil) &&
		y <= stat.Quantile(hi, stat.Empirical, sorted, nil)
}

func sortedCopy(xs []float64) []float64 {
	out := make([]float64, len(xs))
	copy(out, xs)
	sort.Float64s(out)
	return out
}
