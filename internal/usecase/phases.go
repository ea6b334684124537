package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinSynth/internal/domain/models"
	domrepo "FinSynth/internal/domain/repository"
	"FinSynth/internal/repository"
	"FinSynth/internal/services/scoring"
	"FinSynth/internal/services/validation"
	"FinSynth/internal/services/weights"
	applogger "FinSynth/pkg/logger"
	"FinSynth/pkg/util"
)

// Template is one recurring request shape.
type Template struct {
	Asset          string
	TimeIncrement  int
	TimeLength     int
	NumSimulations int
}

func (t Template) String() string {
	return fmt.Sprintf("%s/%d/%d/%d", t.Asset, t.TimeIncrement, t.TimeLength, t.NumSimulations)
}

// ScoringParams controls aggregation and normalization.
type ScoringParams struct {
	Cutoff      time.Duration
	HalfLife    time.Duration
	Beta        float64
	MinRealized float64
}

// Timing holds the phase offsets.
type Timing struct {
	Cadence    time.Duration
	StartDelay time.Duration
	ScoreDelay time.Duration
}

// Coordinator runs the query and score phases. The phases share state only
// through the request ledger and the score book.
type Coordinator struct {
	registry  domrepo.WorkerRegistry
	collector *Collector
	engine    *scoring.Engine
	ledger    *repository.RequestLedger
	book      *repository.ScoreBook
	publisher domrepo.WeightPublisher
	archive   domrepo.ScoreArchive
	metrics   domrepo.Metrics
	clock     util.Clock
	scoring   ScoringParams
	timing    Timing
	newID     func() string
	l         *applogger.Logger
}

type CoordinatorDeps struct {
	Registry  domrepo.WorkerRegistry
	Collector *Collector
	Engine    *scoring.Engine
	Ledger    *repository.RequestLedger
	Book      *repository.ScoreBook
	Publisher domrepo.WeightPublisher
	Archive   domrepo.ScoreArchive
	Metrics   domrepo.Metrics
	Clock     util.Clock
	Logger    *applogger.Logger
}

func NewCoordinator(d CoordinatorDeps, sp ScoringParams, timing Timing) *Coordinator {
	return &Coordinator{
		registry:  d.Registry,
		collector: d.Collector,
		engine:    d.Engine,
		ledger:    d.Ledger,
		book:      d.Book,
		publisher: d.Publisher,
		archive:   d.Archive,
		metrics:   d.Metrics,
		clock:     d.Clock,
		scoring:   sp,
		timing:    timing,
		newID:     uuid.NewString,
		l:         d.Logger,
	}
}

// QueryPhase issues one request for tpl to every active worker and records
// the replies in the ledger.
func (c *Coordinator) QueryPhase(ctx context.Context, tpl Template) error {
	began := time.Now()
	now := c.clock.Now()
	l := c.l.With(applogger.String("phase", "query"), applogger.String("asset", tpl.Asset))

	req := models.SimulationRequest{
		ID:             c.newID(),
		Asset:          tpl.Asset,
		StartTime:      now.Add(c.timing.StartDelay).Truncate(time.Second),
		TimeIncrement:  tpl.TimeIncrement,
		TimeLength:     tpl.TimeLength,
		NumSimulations: tpl.NumSimulations,
	}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("query %s: %w", tpl, err)
	}

	workers, err := c.registry.ListActive(ctx)
	if err != nil {
		c.metrics.RecordError("registry")
		return fmt.Errorf("list workers: %w", err)
	}
	if len(workers) == 0 {
		l.Info("no active workers, skipping request")
		return nil
	}

	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	c.book.MarkKnown(ids...)

	records := c.collector.Collect(ctx, req, workers)
	c.ledger.Add(models.PendingRequest{Request: req, Records: records, IssuedAt: now})

	responded := 0
	for _, r := range records {
		if r.Status == models.StatusResponded {
			responded++
		}
	}

	elapsed := time.Since(began)
	c.metrics.RecordPhase("query", tpl.Asset, elapsed.Seconds())
	l.Debug("query phase done",
		applogger.String("request_id", req.ID),
		applogger.Time("start_time", req.StartTime),
		applogger.Int("workers", len(workers)),
		applogger.Int("responded", responded),
		applogger.Duration("duration_ms", elapsed),
	)
	return nil
}

// ScorePhase scores every request for asset whose horizon has realized by
// now + score delay, then recomputes aggregates and weights and publishes.
// It returns the vector committed in this phase, or an empty vector when
// nothing new was scored.
func (c *Coordinator) ScorePhase(ctx context.Context, asset string) (models.WeightVector, error) {
	began := time.Now()
	l := c.l.With(applogger.String("phase", "score"), applogger.String("asset", asset))

	scoredTime := c.clock.Now().Add(c.timing.ScoreDelay)
	if err := c.clock.WaitUntil(ctx, scoredTime); err != nil {
		return models.WeightVector{}, fmt.Errorf("wait for scored time: %w", err)
	}

	due := c.ledger.TakeDue(asset, scoredTime, c.scoring.MinRealized)
	var samples []models.ScoreSample
	for _, p := range due {
		scored, ok := c.scoreRequest(ctx, l, p, scoredTime)
		if !ok {
			// cancelled before this request was scored; a later phase retries it
			c.ledger.Add(p)
			continue
		}
		samples = append(samples, scored...)
	}

	pruned := c.ledger.Prune(scoredTime.Add(-c.scoring.Cutoff))
	if pruned > 0 {
		l.Info("dropped unscored requests past the window", applogger.Int("count", pruned))
	}

	if len(samples) == 0 {
		l.Debug("nothing to score", applogger.Int("due", len(due)))
		c.metrics.RecordPhase("score", asset, time.Since(began).Seconds())
		return models.WeightVector{}, ctx.Err()
	}

	vec := c.book.Commit(samples, scoredTime.Add(-c.scoring.Cutoff), c.recompute(scoredTime))
	for id, w := range vec.Weights {
		c.metrics.RecordWeight(id, w)
	}

	c.persist(ctx, l, samples, vec)

	elapsed := time.Since(began)
	c.metrics.RecordPhase("score", asset, elapsed.Seconds())
	l.Info("score phase done",
		applogger.Int("requests", len(due)),
		applogger.Int("samples", len(samples)),
		applogger.Int("weights", len(vec.Weights)),
		applogger.Duration("duration_ms", elapsed),
	)
	return vec, nil
}

// scoreRequest validates and scores every reply to p. ok is false only when
// ctx ended before scoring finished.
func (c *Coordinator) scoreRequest(ctx context.Context, l *applogger.Logger, p models.PendingRequest, scoredTime time.Time) (samples []models.ScoreSample, ok bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	req := p.Request

	var valid []models.WorkerRecord
	for _, rec := range p.Records {
		if rec.Status != models.StatusResponded {
			continue
		}
		res := validation.Validate(req, rec.Ensemble)
		if !res.OK {
			c.metrics.RecordValidationFailure(req.Asset, string(res.Reason))
			l.Warn("invalid ensemble",
				applogger.String("request_id", req.ID),
				applogger.String("worker_id", rec.WorkerID),
				applogger.String("reason", string(res.Reason)),
				applogger.String("detail", res.Detail),
			)
			continue
		}
		valid = append(valid, rec)
	}
	if len(valid) == 0 {
		return nil, true
	}

	realized, err := c.engine.RealizedPrices(ctx, req, scoredTime)
	if err != nil {
		return nil, false
	}
	if len(realized) == 0 {
		c.metrics.RecordError("oracle")
		l.Warn("no realized prices, request dropped", applogger.String("request_id", req.ID))
		return nil, true
	}

	for _, rec := range valid {
		s, scored := scoring.Score(rec.WorkerID, req, rec.Ensemble, realized)
		if !scored {
			continue
		}
		c.metrics.RecordScore(rec.WorkerID, s.Score)
		samples = append(samples, s)
	}
	return samples, true
}

func (c *Coordinator) recompute(asOf time.Time) repository.Recompute {
	sp := c.scoring
	return func(history map[string][]models.ScoreSample, known []string) (map[string]models.AggregatedScore, models.WeightVector) {
		aggs := weights.AggregateAll(history, asOf, sp.Cutoff, sp.HalfLife)
		return aggs, weights.Normalize(aggs, known, sp.Beta, asOf)
	}
}

// persist publishes and archives. Failures are logged; the local vector
// stays authoritative.
func (c *Coordinator) persist(ctx context.Context, l *applogger.Logger, samples []models.ScoreSample, vec models.WeightVector) {
	if err := c.archive.SaveSamples(ctx, samples); err != nil {
		c.metrics.RecordError("archive")
		l.Error("archive samples failed", applogger.Error(err))
	}

	if vec.Empty() {
		l.Info("no aggregated scores, publication skipped")
		return
	}
	if err := c.publisher.Publish(ctx, vec); err != nil {
		c.metrics.RecordError("publish")
		l.Error("publish weights failed", applogger.Error(err))
	}
	if err := c.archive.SaveWeights(ctx, vec); err != nil {
		c.metrics.RecordError("archive")
		l.Error("archive weights failed", applogger.Error(err))
	}
}
