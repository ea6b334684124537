package features

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const secondsPerYear = 365 * 24 * 60 * 60

// ComputeLogReturns computes log returns r_t = ln(P_t / P_{t-1}).
// It returns a slice of length len(prices)-1, or nil if insufficient data.
// Non-positive prices yield a zero return for the affected step.
func ComputeLogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		cur := prices[i]
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the annualized sample standard deviation of log returns
// taken stepSeconds apart. Returns 0 with fewer than two returns.
func RealizedVolatility(logReturns []float64, stepSeconds int) float64 {
	if len(logReturns) < 2 || stepSeconds <= 0 {
		return 0
	}
	sd := stat.StdDev(logReturns, nil)
	if math.IsNaN(sd) || sd < 0 {
		return 0
	}
	return sd * math.Sqrt(StepsPerYear(stepSeconds))
}

// StepsPerYear returns the number of stepSeconds intervals in a 365-day year.
func StepsPerYear(stepSeconds int) float64 {
	if stepSeconds <= 0 {
		return 0
	}
	return secondsPerYear / float64(stepSeconds)
}
