package scoring

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSynth/internal/domain/models"
)

func bruteCRPS(xs []float64, y float64) float64 {
	n := float64(len(xs))
	var a, b float64
	for _, x := range xs {
		a += math.Abs(x - y)
		for _, x2 := range xs {
			b += math.Abs(x - x2)
		}
	}
	return a/n - 0.5*b/(n*n)
}

func TestCRPS(t *testing.T) {
	assert.InDelta(t, 3.0, CRPS([]float64{5}, 2), 1e-12)
	assert.InDelta(t, 0.0, CRPS([]float64{7, 7, 7}, 7), 1e-12)

	xs := []float64{95, 98, 99, 101, 104, 110}
	for _, y := range []float64{90, 100, 103.5, 120} {
		assert.InDelta(t, bruteCRPS(xs, y), CRPS(xs, y), 1e-9, "y=%v", y)
	}
}

func TestCovered(t *testing.T) {
	xs := make([]float64, 100)
	for i := range xs {
		xs[i] = float64(i + 1)
	}
	assert.True(t, Covered(xs, 50, 0.05, 0.95))
	assert.False(t, Covered(xs, 1, 0.05, 0.95))
	assert.False(t, Covered(xs, 99.5, 0.05, 0.95))
}

var start = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

func req() models.SimulationRequest {
	return models.SimulationRequest{
		ID: "r1", Asset: "BTC", StartTime: start,
		TimeIncrement: 60, TimeLength: 180, NumSimulations: 3,
	}
}

func ensembleAround(r models.SimulationRequest, center, spread float64) *models.SimulationEnsemble {
	ts := r.Timestamps()
	paths := make([][]models.PricePoint, r.NumSimulations)
	for i := range paths {
		offset := (float64(i) - float64(r.NumSimulations-1)/2) * spread
		for _, t := range ts {
			paths[i] = append(paths[i], models.PricePoint{Time: t, Price: center + offset})
		}
	}
	return &models.SimulationEnsemble{RequestID: r.ID, Paths: paths}
}

func realizedFlat(r models.SimulationRequest, price float64) []Realized {
	var out []Realized
	for k, ts := range r.Timestamps() {
		out = append(out, Realized{Index: k, Time: ts, Price: price})
	}
	return out
}

func TestScore_CloserEnsembleScoresHigher(t *testing.T) {
	r := req()
	realized := realizedFlat(r, 100)

	good, ok := Score("good", r, ensembleAround(r, 100, 1), realized)
	require.True(t, ok)
	bad, ok := Score("bad", r, ensembleAround(r, 120, 1), realized)
	require.True(t, ok)

	assert.Greater(t, good.Score, bad.Score)
	assert.LessOrEqual(t, good.Score, 0.0)
	assert.Equal(t, 4, good.Scored)
	assert.Equal(t, 1.0, good.Weight)
	assert.True(t, good.Timestamp.Equal(start))
	assert.Equal(t, "r1", good.RequestID)
	assert.InDelta(t, -good.CRPS, good.Score, 1e-15)
}

func TestScore_IsScaleFree(t *testing.T) {
	r := req()
	a, _ := Score("w", r, ensembleAround(r, 100, 2), realizedFlat(r, 101))
	b, _ := Score("w", r, ensembleAround(r, 10000, 200), realizedFlat(r, 10100))

	assert.InDelta(t, a.Score, b.Score, 1e-12)
}

func TestScore_NoRealizedPrices(t *testing.T) {
	r := req()
	_, ok := Score("w", r, ensembleAround(r, 100, 1), nil)
	assert.False(t, ok)

	_, ok = Score("w", r, nil, realizedFlat(r, 100))
	assert.False(t, ok)
}

func ensembleOf(r models.SimulationRequest, pathPrices ...[]float64) *models.SimulationEnsemble {
	ts := r.Timestamps()
	paths := make([][]models.PricePoint, len(pathPrices))
	for i, prices := range pathPrices {
		for k, p := range prices {
			paths[i] = append(paths[i], models.PricePoint{Time: ts[k], Price: p})
		}
	}
	return &models.SimulationEnsemble{RequestID: r.ID, Paths: paths}
}

func TestRelativeCRPS(t *testing.T) {
	xs := []float64{95, 98, 99, 101, 104, 110}
	for _, y := range []float64{90, 100, 103.5, 120} {
		assert.InDelta(t, CRPS(xs, y)/y, RelativeCRPS(xs, y), 1e-12, "y=%v", y)
	}

	huge := []float64{1e308, 1e308, 1e308}
	got := RelativeCRPS(huge, 100)
	assert.False(t, math.IsInf(got, 0) || math.IsNaN(got))
	assert.InDelta(t, 1e306, got, 1e294)
}

func TestScore_HugePricesStayFinite(t *testing.T) {
	r := models.SimulationRequest{
		ID: "r1", Asset: "BTC", StartTime: start,
		TimeIncrement: 300, TimeLength: 600, NumSimulations: 3,
	}
	realized := realizedFlat(r, 100)

	honest, ok := Score("honest", r, ensembleOf(r, []float64{99, 100, 101}, []float64{99, 100, 101}, []float64{99, 100, 101}), realized)
	require.True(t, ok)

	row := []float64{1, 1e308, 1e308}
	hostile, ok := Score("hostile", r, ensembleOf(r, row, row, row), realized)
	require.True(t, ok)
	assert.False(t, math.IsInf(hostile.Score, 0) || math.IsNaN(hostile.Score))
	assert.Less(t, hostile.Score, honest.Score)
}

func TestScore_NonFiniteRejected(t *testing.T) {
	r := req()
	row := []float64{1e300, 1e300, 1e300, 1e300}
	_, ok := Score("w", r, ensembleOf(r, row, row, row), realizedFlat(r, 1e-10))
	assert.False(t, ok)
}

type recordingOracle struct {
	mu      sync.Mutex
	asked   []time.Time
	missing map[time.Time]bool
	fail    error
}

func (o *recordingOracle) PriceAt(_ context.Context, _ string, ts time.Time) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.asked = append(o.asked, ts)
	if o.missing[ts] {
		return 0, models.ErrDataUnavailable
	}
	if o.fail != nil {
		return 0, o.fail
	}
	return 100, nil
}

func TestRealizedPrices_NoLookAhead(t *testing.T) {
	r := req()
	oracle := &recordingOracle{}
	e := NewEngine(oracle, nil)

	scoredTime := start.Add(90 * time.Second)
	got, err := e.RealizedPrices(context.Background(), r, scoredTime)
	require.NoError(t, err)

	require.Len(t, got, 2)
	for _, ts := range oracle.asked {
		assert.False(t, ts.After(scoredTime), "looked up %v after %v", ts, scoredTime)
	}
}

func TestRealizedPrices_SkipsUnavailable(t *testing.T) {
	r := req()
	oracle := &recordingOracle{missing: map[time.Time]bool{start.Add(time.Minute): true}}
	e := NewEngine(oracle, nil)

	got, err := e.RealizedPrices(context.Background(), r, r.EndTime())
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 2, 3}, []int{got[0].Index, got[1].Index, got[2].Index})
}

func TestRealizedPrices_AllFailing(t *testing.T) {
	r := req()
	e := NewEngine(&recordingOracle{fail: errors.New("down")}, nil)

	got, err := e.RealizedPrices(context.Background(), r, r.EndTime())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRealizedPrices_Cancelled(t *testing.T) {
	r := req()
	e := NewEngine(&recordingOracle{fail: errors.New("down")}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.RealizedPrices(ctx, r, r.EndTime())
	assert.ErrorIs(t, err, context.Canceled)
}
