package models

import "time"

// Wire shapes for the worker and coordinator HTTP APIs.

// RequesterHeader carries the caller identity checked by the worker.
const RequesterHeader = "X-Requester-ID"

type SimulateRequest struct {
	RequestID      string    `json:"request_id" validate:"required"`
	Asset          string    `json:"asset" validate:"required"`
	StartTime      time.Time `json:"start_time" validate:"required"`
	TimeIncrement  int       `json:"time_increment" default:"300" validate:"gt=0"`
	TimeLength     int       `json:"time_length" default:"86400" validate:"gtefield=TimeIncrement,lte=2592000"`
	NumSimulations int       `json:"num_simulations" default:"100" validate:"gte=1,lte=10000"`
}

func NewSimulateRequest(r SimulationRequest) SimulateRequest {
	return SimulateRequest{
		RequestID:      r.ID,
		Asset:          r.Asset,
		StartTime:      r.StartTime.UTC(),
		TimeIncrement:  r.TimeIncrement,
		TimeLength:     r.TimeLength,
		NumSimulations: r.NumSimulations,
	}
}

func (r SimulateRequest) ToDomain() SimulationRequest {
	return SimulationRequest{
		ID:             r.RequestID,
		Asset:          r.Asset,
		StartTime:      r.StartTime.UTC(),
		TimeIncrement:  r.TimeIncrement,
		TimeLength:     r.TimeLength,
		NumSimulations: r.NumSimulations,
	}
}

type PricePointDTO struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

type SimulateResponse struct {
	RequestID string            `json:"request_id"`
	Paths     [][]PricePointDTO `json:"paths"`
}

func NewSimulateResponse(e *SimulationEnsemble) SimulateResponse {
	out := SimulateResponse{RequestID: e.RequestID, Paths: make([][]PricePointDTO, len(e.Paths))}
	for i, path := range e.Paths {
		out.Paths[i] = make([]PricePointDTO, len(path))
		for k, pt := range path {
			out.Paths[i][k] = PricePointDTO{Time: pt.Time.UTC(), Price: pt.Price}
		}
	}
	return out
}

func (r SimulateResponse) ToDomain() *SimulationEnsemble {
	e := &SimulationEnsemble{RequestID: r.RequestID, Paths: make([][]PricePoint, len(r.Paths))}
	for i, path := range r.Paths {
		e.Paths[i] = make([]PricePoint, len(path))
		for k, pt := range path {
			e.Paths[i][k] = PricePoint{Time: pt.Time.UTC(), Price: pt.Price}
		}
	}
	return e
}

// Coordinator status API.

type WeightsResponse struct {
	AsOf    time.Time          `json:"as_of"`
	Weights map[string]float64 `json:"weights"`
}

type AggregatedScoreDTO struct {
	WorkerID string    `json:"worker_id"`
	Score    float64   `json:"score"`
	AsOf     time.Time `json:"as_of"`
	Samples  int       `json:"samples"`
}

type ScoreSampleDTO struct {
	RequestID string    `json:"request_id"`
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	CRPS      float64   `json:"crps"`
	Coverage  float64   `json:"coverage"`
	Scored    int       `json:"scored"`
}

type SamplesQuery struct {
	ID    string `param:"id" validate:"required"`
	Limit int    `query:"limit" default:"100" validate:"gte=1,lte=10000"`
}

func NewWeightsResponse(w WeightVector) WeightsResponse {
	return WeightsResponse{AsOf: w.AsOf, Weights: w.Weights}
}

func NewAggregatedScoreDTO(a AggregatedScore) AggregatedScoreDTO {
	return AggregatedScoreDTO{WorkerID: a.WorkerID, Score: a.Score, AsOf: a.AsOf, Samples: a.Samples}
}

func NewScoreSampleDTO(s ScoreSample) ScoreSampleDTO {
	return ScoreSampleDTO{
		RequestID: s.RequestID,
		Asset:     s.Asset,
		Timestamp: s.Timestamp,
		Score:     s.Score,
		CRPS:      s.CRPS,
		Coverage:  s.Coverage,
		Scored:    s.Scored,
	}
}

type HealthResponse struct {
	Status          string `json:"status"`
	Role            string `json:"role"`
	Uptime          string `json:"uptime"`
	PendingRequests int    `json:"pending_requests,omitempty"`
	KnownWorkers    int    `json:"known_workers,omitempty"`
}
