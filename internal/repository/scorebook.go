package repository

import (
	"sort"
	"sync"
	"time"

	"FinSynth/internal/domain/models"
)

// Recompute derives aggregates and weights from the full sample history.
// It runs inside the ScoreBook write lock and must not block.
type Recompute func(history map[string][]models.ScoreSample, known []string) (map[string]models.AggregatedScore, models.WeightVector)

// ScoreBook owns score history, aggregates, and the current weight vector.
// The score phase is the only writer; readers receive copies.
type ScoreBook struct {
	mu         sync.RWMutex
	samples    map[string][]models.ScoreSample
	aggregates map[string]models.AggregatedScore
	weights    models.WeightVector
	known      map[string]struct{}
}

func NewScoreBook() *ScoreBook {
	return &ScoreBook{
		samples:    make(map[string][]models.ScoreSample),
		aggregates: make(map[string]models.AggregatedScore),
		weights:    models.WeightVector{Weights: map[string]float64{}},
		known:      make(map[string]struct{}),
	}
}

// MarkKnown records workers that were sent a request. Known workers appear in
// the weight vector even without a score.
func (b *ScoreBook) MarkKnown(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		b.known[id] = struct{}{}
	}
}

// Commit appends samples, drops history older than pruneBefore, and replaces
// aggregates and weights with the output of recompute, all in one critical section.
func (b *ScoreBook) Commit(samples []models.ScoreSample, pruneBefore time.Time, recompute Recompute) models.WeightVector {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range samples {
		b.samples[s.WorkerID] = append(b.samples[s.WorkerID], s)
		b.known[s.WorkerID] = struct{}{}
	}
	for id, hist := range b.samples {
		kept := hist[:0]
		for _, s := range hist {
			if !s.Timestamp.Before(pruneBefore) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.samples, id)
			continue
		}
		b.samples[id] = kept
	}

	aggs, vec := recompute(b.samples, b.knownLocked())
	if aggs == nil {
		aggs = make(map[string]models.AggregatedScore)
	}
	if vec.Weights == nil {
		vec.Weights = map[string]float64{}
	}
	b.aggregates = aggs
	b.weights = vec
	return copyVector(vec)
}

func (b *ScoreBook) Weights() models.WeightVector {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyVector(b.weights)
}

func (b *ScoreBook) Aggregates() map[string]models.AggregatedScore {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]models.AggregatedScore, len(b.aggregates))
	for id, a := range b.aggregates {
		out[id] = a
	}
	return out
}

// Samples returns a copy of one worker's retained history.
func (b *ScoreBook) Samples(workerID string) []models.ScoreSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hist := b.samples[workerID]
	out := make([]models.ScoreSample, len(hist))
	copy(out, hist)
	return out
}

func (b *ScoreBook) Known() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.knownLocked()
}

func (b *ScoreBook) knownLocked() []string {
	ids := make([]string, 0, len(b.known))
	for id := range b.known {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func copyVector(v models.WeightVector) models.WeightVector {
	out := models.WeightVector{AsOf: v.AsOf, Weights: make(map[string]float64, len(v.Weights))}
	for id, w := range v.Weights {
		out.Weights[id] = w
	}
	return out
}
