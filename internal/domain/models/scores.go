package models

import "time"

// ScoreSample is the score of one worker on one request, timestamped at the
// request start time.
type ScoreSample struct {
	WorkerID  string
	RequestID string
	Asset     string
	Timestamp time.Time
	Score     float64
	// Weight scales the sample in the decayed mean; zero or below excludes it.
	Weight    float64
	CRPS      float64
	Coverage  float64
	Scored    int
}

// AggregatedScore is a worker's decayed mean score as of a moment.
// Recomputed every cycle; never updated incrementally.
type AggregatedScore struct {
	WorkerID string
	Score    float64
	AsOf     time.Time
	Samples  int
}

// WeightVector maps worker IDs to non-negative weights summing to 1.
// Empty when no worker has an aggregated score.
type WeightVector struct {
	AsOf    time.Time
	Weights map[string]float64
}

func (w WeightVector) Empty() bool { return len(w.Weights) == 0 }

// Sum of all weights.
func (w WeightVector) Sum() float64 {
	var s float64
	for _, v := range w.Weights {
		s += v
	}
	return s
}
