package weights

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"FinSynth/internal/domain/models"
)

// DecayWeight is 2^(-age/halfLife). Ages beyond cutoff or in the future weigh zero.
func DecayWeight(age, cutoff, halfLife time.Duration) float64 {
	if age < 0 || age > cutoff || halfLife <= 0 {
		return 0
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

// Aggregate computes one worker's decayed mean score as of asOf from its full
// history. Each sample counts with its decay weight times its own Weight;
// samples with a non-positive Weight or a non-finite score are ignored.
// Returns false when no sample participates or the mean overflows.
func Aggregate(workerID string, history []models.ScoreSample, asOf time.Time, cutoff, halfLife time.Duration) (models.AggregatedScore, bool) {
	scores := make([]float64, 0, len(history))
	weights := make([]float64, 0, len(history))
	for _, s := range history {
		if !finite(s.Score) {
			continue
		}
		w := DecayWeight(asOf.Sub(s.Timestamp), cutoff, halfLife) * s.Weight
		if !(w > 0) || math.IsInf(w, 0) {
			continue
		}
		scores = append(scores, s.Score)
		weights = append(weights, w)
	}
	if len(scores) == 0 {
		return models.AggregatedScore{}, false
	}
	mean := stat.Mean(scores, weights)
	if !finite(mean) {
		return models.AggregatedScore{}, false
	}
	return models.AggregatedScore{
		WorkerID: workerID,
		Score:    mean,
		AsOf:     asOf,
		Samples:  len(scores),
	}, true
}

// AggregateAll recomputes aggregates for every worker in history. Workers
// without participating samples are absent from the result.
func AggregateAll(history map[string][]models.ScoreSample, asOf time.Time, cutoff, halfLife time.Duration) map[string]models.AggregatedScore {
	out := make(map[string]models.AggregatedScore, len(history))
	for id, samples := range history {
		if agg, ok := Aggregate(id, samples, asOf, cutoff, halfLife); ok {
			out[id] = agg
		}
	}
	return out
}

func finite(x float64) bool { return !math.IsNaN(x) && !math.IsInf(x, 0) }
