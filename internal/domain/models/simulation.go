package models

import "time"

// SimulationRequest asks a worker for an ensemble of future price paths.
// Immutable once issued. Increment and length are in seconds.
type SimulationRequest struct {
	ID             string
	Asset          string
	StartTime      time.Time
	TimeIncrement  int
	TimeLength     int
	NumSimulations int
}

// Size limits on one request. A path holds at most MaxSteps points and an
// ensemble at most MaxPoints.
const (
	MaxSteps  = 100_000
	MaxPoints = 2_000_000
)

// Validate checks request shape and size. Errors wrap ErrValidation.
func (r SimulationRequest) Validate() error {
	switch {
	case r.Asset == "":
		return NewValidationError(ReasonInvalidRequest, "asset is required")
	case r.TimeIncrement <= 0:
		return NewValidationError(ReasonInvalidRequest, "time_increment must be positive, got %d", r.TimeIncrement)
	case r.TimeLength < r.TimeIncrement:
		return NewValidationError(ReasonInvalidRequest, "time_length %d shorter than time_increment %d", r.TimeLength, r.TimeIncrement)
	case r.NumSimulations < 1:
		return NewValidationError(ReasonInvalidRequest, "num_simulations must be at least 1, got %d", r.NumSimulations)
	case r.StartTime.IsZero():
		return NewValidationError(ReasonInvalidRequest, "start_time is required")
	}
	steps := r.Steps()
	if steps > MaxSteps {
		return NewValidationError(ReasonInvalidRequest, "%d steps per path exceeds %d", steps, MaxSteps)
	}
	if r.NumSimulations > MaxPoints/steps {
		return NewValidationError(ReasonInvalidRequest, "%d paths of %d steps exceeds %d points", r.NumSimulations, steps, MaxPoints)
	}
	return nil
}

// Steps is the number of points per path, start included.
func (r SimulationRequest) Steps() int {
	if r.TimeIncrement <= 0 {
		return 0
	}
	return r.TimeLength/r.TimeIncrement + 1
}

// Timestamps returns start + k*increment for k = 0..length/increment.
func (r SimulationRequest) Timestamps() []time.Time {
	n := r.Steps()
	out := make([]time.Time, n)
	step := time.Duration(r.TimeIncrement) * time.Second
	for k := 0; k < n; k++ {
		out[k] = r.StartTime.Add(time.Duration(k) * step)
	}
	return out
}

// EndTime is the last timestamp of the horizon.
func (r SimulationRequest) EndTime() time.Time {
	return r.StartTime.Add(time.Duration(r.TimeLength) * time.Second)
}

type PricePoint struct {
	Time  time.Time
	Price float64
}

// SimulationEnsemble is a worker's answer: NumSimulations paths over the same timestamps.
type SimulationEnsemble struct {
	RequestID string
	Paths     [][]PricePoint
}

// PricesAt collects the price of every path at step k. Paths shorter than k+1 are skipped.
func (e *SimulationEnsemble) PricesAt(k int) []float64 {
	out := make([]float64, 0, len(e.Paths))
	for _, p := range e.Paths {
		if k < len(p) {
			out = append(out, p[k].Price)
		}
	}
	return out
}

type ResponseStatus string

const (
	StatusResponded  ResponseStatus = "responded"
	StatusNoResponse ResponseStatus = "no_response"
)

// WorkerRecord is the outcome of dispatching one request to one worker.
type WorkerRecord struct {
	WorkerID string
	Status   ResponseStatus
	Ensemble *SimulationEnsemble
	Latency  time.Duration
	Err      error
}

// Worker identifies a registered worker and where to reach it.
type Worker struct {
	ID       string
	Endpoint string
}

// PendingRequest is a dispatched request waiting for its horizon to realize.
type PendingRequest struct {
	Request  SimulationRequest
	Records  []WorkerRecord
	IssuedAt time.Time
}
