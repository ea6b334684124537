package repository

import (
	"context"
	"time"

	"FinSynth/internal/domain/models"
)

// Transport delivers a request to one worker and returns its ensemble.
// Timeouts and transport failures wrap models.ErrNoResponse.
type Transport interface {
	Send(ctx context.Context, worker models.Worker, req models.SimulationRequest) (*models.SimulationEnsemble, error)
}

type WorkerRegistry interface {
	ListActive(ctx context.Context) ([]models.Worker, error)
}

// PriceOracle returns the latest known price at or before ts.
// Returns models.ErrDataUnavailable when nothing usable exists.
type PriceOracle interface {
	PriceAt(ctx context.Context, asset string, ts time.Time) (float64, error)
}

type WeightPublisher interface {
	Publish(ctx context.Context, w models.WeightVector) error
}

// ScoreArchive persists score history and published weights.
type ScoreArchive interface {
	SaveSamples(ctx context.Context, samples []models.ScoreSample) error
	SaveWeights(ctx context.Context, w models.WeightVector) error
}

type Metrics interface {
	RecordDispatch(asset, outcome string, seconds float64)
	RecordValidationFailure(asset, reason string)
	RecordScore(workerID string, score float64)
	RecordWeight(workerID string, weight float64)
	RecordPhase(phase, asset string, seconds float64)
	RecordError(kind string)
}
