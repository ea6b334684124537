package weights

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSynth/internal/domain/models"
)

const day = 24 * time.Hour

var asOf = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func sample(age time.Duration, score float64) models.ScoreSample {
	return models.ScoreSample{WorkerID: "w", Timestamp: asOf.Add(-age), Score: score, Weight: 1}
}

func TestDecayWeight(t *testing.T) {
	cutoff, half := 10*day, 2*day

	assert.Equal(t, 1.0, DecayWeight(0, cutoff, half))
	assert.InDelta(t, 0.5, DecayWeight(half, cutoff, half), 1e-12)
	assert.InDelta(t, 0.25, DecayWeight(2*half, cutoff, half), 1e-12)
	assert.Equal(t, 0.0, DecayWeight(cutoff+time.Second, cutoff, half))
	assert.Equal(t, 0.0, DecayWeight(-time.Second, cutoff, half))

	for _, h := range []time.Duration{time.Minute, 3 * time.Hour, 7 * day} {
		assert.InDelta(t, 0.5*DecayWeight(0, 30*day, h), DecayWeight(h, 30*day, h), 1e-12)
	}
}

func TestAggregate_WeightedMean(t *testing.T) {
	history := []models.ScoreSample{sample(0, -1), sample(2*day, -3)}

	agg, ok := Aggregate("w", history, asOf, 10*day, 2*day)
	require.True(t, ok)

	// weights 1 and 0.5
	assert.InDelta(t, (-1*1+-3*0.5)/1.5, agg.Score, 1e-12)
	assert.Equal(t, 2, agg.Samples)
	assert.Equal(t, "w", agg.WorkerID)
	assert.True(t, agg.AsOf.Equal(asOf))
}

func TestAggregate_CutoffExcludes(t *testing.T) {
	history := []models.ScoreSample{sample(11*day, -100), sample(time.Hour, -1)}

	agg, ok := Aggregate("w", history, asOf, 10*day, 2*day)
	require.True(t, ok)
	assert.InDelta(t, -1.0, agg.Score, 1e-12)
	assert.Equal(t, 1, agg.Samples)
}

func TestAggregate_NoParticipants(t *testing.T) {
	_, ok := Aggregate("w", []models.ScoreSample{sample(20*day, -1)}, asOf, 10*day, 2*day)
	assert.False(t, ok)

	_, ok = Aggregate("w", nil, asOf, 10*day, 2*day)
	assert.False(t, ok)

	_, ok = Aggregate("w", []models.ScoreSample{sample(-time.Hour, -1)}, asOf, 10*day, 2*day)
	assert.False(t, ok, "future samples do not participate")
}

func TestAggregate_SkipsNonFiniteScores(t *testing.T) {
	history := []models.ScoreSample{sample(0, math.NaN()), sample(time.Hour, math.Inf(-1)), sample(2*time.Hour, -2)}

	agg, ok := Aggregate("w", history, asOf, 10*day, 2*day)
	require.True(t, ok)
	assert.Equal(t, 1, agg.Samples)
	assert.InDelta(t, -2.0, agg.Score, 1e-12)

	_, ok = Aggregate("w", history[:2], asOf, 10*day, 2*day)
	assert.False(t, ok)

	_, ok = Aggregate("w", []models.ScoreSample{sample(0, -1e308), sample(time.Hour, -1e308)}, asOf, 10*day, 2*day)
	assert.False(t, ok, "overflowing mean")
}

func TestAggregate_SampleWeight(t *testing.T) {
	heavy := sample(0, -1)
	heavy.Weight = 3
	light := sample(0, -5)

	agg, ok := Aggregate("w", []models.ScoreSample{heavy, light}, asOf, 10*day, 2*day)
	require.True(t, ok)
	assert.InDelta(t, -2.0, agg.Score, 1e-12)

	unweighted := sample(0, -100)
	unweighted.Weight = 0
	negative := sample(0, -100)
	negative.Weight = -1
	agg, ok = Aggregate("w", []models.ScoreSample{light, unweighted, negative}, asOf, 10*day, 2*day)
	require.True(t, ok)
	assert.Equal(t, 1, agg.Samples)
	assert.InDelta(t, -5.0, agg.Score, 1e-12)
}

func TestAggregateAll(t *testing.T) {
	history := map[string][]models.ScoreSample{
		"a": {sample(day, -1)},
		"b": {sample(30*day, -1)},
	}

	got := AggregateAll(history, asOf, 10*day, 2*day)
	assert.Contains(t, got, "a")
	assert.NotContains(t, got, "b")
}

func scores(vals map[string]float64) map[string]models.AggregatedScore {
	out := make(map[string]models.AggregatedScore, len(vals))
	for id, v := range vals {
		out[id] = models.AggregatedScore{WorkerID: id, Score: v, AsOf: asOf}
	}
	return out
}

func TestNormalize_SumsToOne(t *testing.T) {
	inputs := []map[string]float64{
		{"a": -0.01},
		{"a": -0.01, "b": -0.02, "c": -0.5},
		{"a": 1000, "b": -1000},
		{"a": 0, "b": 0, "c": 0, "d": 0},
	}
	for _, in := range inputs {
		vec := Normalize(scores(in), nil, 50, asOf)
		assert.InDelta(t, 1.0, vec.Sum(), 1e-9)
		for _, w := range vec.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
		}
	}
}

func TestNormalize_SingleWorkerGetsAll(t *testing.T) {
	vec := Normalize(scores(map[string]float64{"solo": -0.3}), []string{"solo"}, 10, asOf)
	assert.Equal(t, map[string]float64{"solo": 1.0}, vec.Weights)
}

func TestNormalize_BetaSharpensLeader(t *testing.T) {
	in := scores(map[string]float64{"best": -0.01, "mid": -0.02, "worst": -0.05})

	prev := 0.0
	for _, beta := range []float64{1, 10, 50, 100, 500} {
		share := Normalize(in, nil, beta, asOf).Weights["best"]
		assert.Greater(t, share, prev, "beta=%v", beta)
		prev = share
	}
}

func TestNormalize_KnownWithoutScoreGetZero(t *testing.T) {
	vec := Normalize(scores(map[string]float64{"a": -0.1}), []string{"a", "silent"}, 10, asOf)

	require.Contains(t, vec.Weights, "silent")
	assert.Equal(t, 0.0, vec.Weights["silent"])
	assert.InDelta(t, 1.0, vec.Weights["a"], 1e-12)
}

func TestNormalize_NonFiniteScoresGetZero(t *testing.T) {
	in := scores(map[string]float64{"honest": -0.002, "nan": math.NaN(), "inf": math.Inf(-1), "huge": -1e307})

	vec := Normalize(in, []string{"honest", "nan", "inf", "huge"}, 200, asOf)

	assert.InDelta(t, 1.0, vec.Weights["honest"], 1e-12)
	for _, id := range []string{"nan", "inf", "huge"} {
		require.Contains(t, vec.Weights, id)
		assert.Equal(t, 0.0, vec.Weights[id], id)
	}
	assert.InDelta(t, 1.0, vec.Sum(), 1e-12)

	vec = Normalize(scores(map[string]float64{"nan": math.NaN()}), nil, 200, asOf)
	assert.True(t, vec.Empty())
}

func TestNormalize_Empty(t *testing.T) {
	vec := Normalize(nil, []string{"a", "b"}, 10, asOf)
	assert.True(t, vec.Empty())
}
