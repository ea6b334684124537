package weights

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"FinSynth/internal/domain/models"
)

// Normalize converts aggregated scores into softmax weights with temperature
// 1/beta. Scores whose logit is not finite are treated as missing. Every id in
// known without a usable score gets an explicit zero. With no usable scores
// the vector is empty.
func Normalize(scores map[string]models.AggregatedScore, known []string, beta float64, asOf time.Time) models.WeightVector {
	vec := models.WeightVector{AsOf: asOf, Weights: map[string]float64{}}

	ids := make([]string, 0, len(scores))
	logit := make(map[string]float64, len(scores))
	for id, s := range scores {
		l := beta * s.Score
		if math.IsNaN(l) || math.IsInf(l, 0) {
			continue
		}
		ids = append(ids, id)
		logit[id] = l
	}
	if len(ids) == 0 {
		return vec
	}
	sort.Strings(ids)

	logits := make([]float64, len(ids))
	for i, id := range ids {
		logits[i] = logit[id]
	}
	lse := floats.LogSumExp(logits)
	for i, id := range ids {
		vec.Weights[id] = math.Exp(logits[i] - lse)
	}

	for _, id := range known {
		if _, ok := vec.Weights[id]; !ok {
			vec.Weights[id] = 0
		}
	}
	return vec
}
