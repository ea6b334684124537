package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"FinSynth/internal/domain/models"
	"FinSynth/internal/domain/repository"
	"FinSynth/internal/services/features"
	"FinSynth/pkg/logger"
)

const (
	secondsPerYear = 365 * 24 * 60 * 60

	// upper bound on oracle lookups spent on one calibration
	maxCalibrationPoints = 1000
)

// Params is an annualized (drift, volatility) pair.
type Params struct {
	Drift float64
	Sigma float64
}

// Generator produces GBM path ensembles. Safe for concurrent use; draws are
// serialized on one seeded source so a fixed seed replays the same sequence.
type Generator struct {
	oracle      repository.PriceOracle
	params      map[string]Params
	calibration map[string]time.Duration
	log         *logger.Logger

	mu     sync.Mutex
	normal distuv.Normal
}

type Option func(*Generator)

// WithSeed fixes the random source. Generators built with the same seed and
// fed the same requests produce identical ensembles.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.normal.Src = rand.NewPCG(seed, seed)
	}
}

// WithCalibration re-estimates sigma for asset from realized volatility over window.
func WithCalibration(asset string, window time.Duration) Option {
	return func(g *Generator) {
		if window > 0 {
			g.calibration[asset] = window
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(g *Generator) {
		g.log = l
	}
}

func NewGenerator(oracle repository.PriceOracle, params map[string]Params, opts ...Option) *Generator {
	seed := uint64(time.Now().UnixNano())
	g := &Generator{
		oracle:      oracle,
		params:      params,
		calibration: make(map[string]time.Duration),
		log:         logger.Nop(),
		normal:      distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate simulates req.NumSimulations independent paths from the oracle
// price at req.StartTime.
func (g *Generator) Generate(ctx context.Context, req models.SimulationRequest) (*models.SimulationEnsemble, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p, ok := g.params[req.Asset]
	if !ok {
		return nil, models.NewValidationError(models.ReasonInvalidRequest, "unknown asset %q", req.Asset)
	}

	start, err := g.startPrice(ctx, req.Asset, req.StartTime)
	if err != nil {
		return nil, err
	}

	if window, ok := g.calibration[req.Asset]; ok {
		if sigma, err := g.calibrate(ctx, req.Asset, req.StartTime, req.TimeIncrement, window); err != nil {
			g.log.Warn("sigma calibration failed, using configured value",
				logger.String("asset", req.Asset), logger.Error(err))
		} else {
			p.Sigma = sigma
		}
	}

	timestamps := req.Timestamps()
	dt := float64(req.TimeIncrement) / secondsPerYear
	drift := p.Drift * dt
	diffusion := p.Sigma * math.Sqrt(dt)

	paths := make([][]models.PricePoint, req.NumSimulations)

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range paths {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("generate %s: %w", req.ID, err)
		}
		path := make([]models.PricePoint, len(timestamps))
		price := start
		path[0] = models.PricePoint{Time: timestamps[0], Price: price}
		for k := 1; k < len(timestamps); k++ {
			price *= math.Exp(drift + diffusion*g.normal.Rand())
			path[k] = models.PricePoint{Time: timestamps[k], Price: price}
		}
		paths[i] = path
	}

	return &models.SimulationEnsemble{RequestID: req.ID, Paths: paths}, nil
}

func (g *Generator) startPrice(ctx context.Context, asset string, at time.Time) (float64, error) {
	price, err := g.oracle.PriceAt(ctx, asset, at)
	if err != nil {
		if errors.Is(err, models.ErrDataUnavailable) {
			return 0, fmt.Errorf("start price %s at %s: %w", asset, at.Format(time.RFC3339), err)
		}
		return 0, fmt.Errorf("start price %s at %s: %w: %w", asset, at.Format(time.RFC3339), models.ErrDataUnavailable, err)
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("start price %s: invalid value %v: %w", asset, price, models.ErrDataUnavailable)
	}
	return price, nil
}

// calibrate samples oracle prices every increment seconds over window ending
// at end and returns their annualized realized volatility.
func (g *Generator) calibrate(ctx context.Context, asset string, end time.Time, increment int, window time.Duration) (float64, error) {
	step := time.Duration(increment) * time.Second
	n := int(window / step)
	if n > maxCalibrationPoints {
		n = maxCalibrationPoints
	}
	if n < 2 {
		return 0, fmt.Errorf("window %s holds fewer than two steps of %s", window, step)
	}

	prices := make([]float64, 0, n+1)
	for k := n; k >= 0; k-- {
		price, err := g.oracle.PriceAt(ctx, asset, end.Add(-time.Duration(k)*step))
		if err != nil {
			return 0, fmt.Errorf("calibration price: %w", err)
		}
		prices = append(prices, price)
	}

	sigma := features.RealizedVolatility(features.ComputeLogReturns(prices), increment)
	if sigma <= 0 {
		return 0, errors.New("calibration produced zero volatility")
	}
	return sigma, nil
}
