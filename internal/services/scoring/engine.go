package scoring

import (
	"context"
	"errors"
	"math"
	"time"

	"FinSynth/internal/domain/models"
	"FinSynth/internal/domain/repository"
	"FinSynth/pkg/logger"
)

const (
	coverageLow  = 0.05
	coverageHigh = 0.95
)

// Realized is the observed price at step Index of a request's horizon.
type Realized struct {
	Index int
	Time  time.Time
	Price float64
}

// Engine scores ensembles against realized prices.
type Engine struct {
	oracle repository.PriceOracle
	log    *logger.Logger
}

func NewEngine(oracle repository.PriceOracle, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{oracle: oracle, log: log}
}

// RealizedPrices fetches the realized price for every request timestamp at or
// before scoredTime. Later timestamps are never looked up. Unavailable
// timestamps are skipped; the result may be empty.
func (e *Engine) RealizedPrices(ctx context.Context, req models.SimulationRequest, scoredTime time.Time) ([]Realized, error) {
	var out []Realized
	for k, ts := range req.Timestamps() {
		if ts.After(scoredTime) {
			break
		}
		price, err := e.oracle.PriceAt(ctx, req.Asset, ts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			if !errors.Is(err, models.ErrDataUnavailable) {
				e.log.Warn("realized price lookup failed",
					logger.String("asset", req.Asset), logger.Time("ts", ts), logger.Error(err))
			}
			continue
		}
		if price <= 0 {
			continue
		}
		out = append(out, Realized{Index: k, Time: ts, Price: price})
	}
	return out, nil
}

// Score computes one sample for a validated ensemble. Returns false when no
// realized timestamp could be scored or the score is not finite.
func Score(workerID string, req models.SimulationRequest, ens *models.SimulationEnsemble, realized []Realized) (models.ScoreSample, bool) {
	if ens == nil || len(ens.Paths) == 0 {
		return models.ScoreSample{}, false
	}

	var sumCRPS float64
	var covered, scored int
	for _, r := range realized {
		prices := ens.PricesAt(r.Index)
		if len(prices) == 0 {
			continue
		}
		sorted := sortedCopy(prices)
		sumCRPS += RelativeCRPS(sorted, r.Price)
		if Covered(sorted, r.Price, coverageLow, coverageHigh) {
			covered++
		}
		scored++
	}
	if scored == 0 {
		return models.ScoreSample{}, false
	}

	meanCRPS := sumCRPS / float64(scored)
	if math.IsNaN(meanCRPS) || math.IsInf(meanCRPS, 0) {
		return models.ScoreSample{}, false
	}
	return models.ScoreSample{
		WorkerID:  workerID,
		RequestID: req.ID,
		Asset:     req.Asset,
		Timestamp: req.StartTime,
		Score:     -meanCRPS,
		Weight:    1,
		CRPS:      meanCRPS,
		Coverage:  float64(covered) / float64(scored),
		Scored:    scored,
	}, true
}
