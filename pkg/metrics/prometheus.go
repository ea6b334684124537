package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	dispatches         *prometheus.CounterVec
	dispatchLatency    *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	scores             *prometheus.GaugeVec
	weights            *prometheus.GaugeVec
	phaseDuration      *prometheus.HistogramVec
	errorsTotal        *prometheus.CounterVec
}

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsynth_dispatch_total",
				Help: "Requests dispatched to workers by outcome",
			},
			[]string{"asset", "outcome"},
		),
		dispatchLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsynth_dispatch_seconds",
				Help:    "Worker round-trip latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"asset"},
		),
		validationFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsynth_validation_failures_total",
				Help: "Ensembles rejected by the validator",
			},
			[]string{"asset", "reason"},
		),
		scores: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsynth_worker_score",
				Help: "Latest decayed aggregate score per worker",
			},
			[]string{"worker"},
		),
		weights: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finsynth_worker_weight",
				Help: "Latest normalized weight per worker",
			},
			[]string{"worker"},
		),
		phaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finsynth_phase_duration_seconds",
				Help:    "Duration of query and score phases",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase", "asset"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finsynth_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordDispatch(asset, outcome string, seconds float64) {
	r.dispatches.WithLabelValues(asset, outcome).Inc()
	r.dispatchLatency.WithLabelValues(asset).Observe(seconds)
}

func (r *Recorder) RecordValidationFailure(asset, reason string) {
	r.validationFailures.WithLabelValues(asset, reason).Inc()
}

func (r *Recorder) RecordScore(workerID string, score float64) {
	r.scores.WithLabelValues(workerID).Set(score)
}

func (r *Recorder) RecordWeight(workerID string, weight float64) {
	r.weights.WithLabelValues(workerID).Set(weight)
}

func (r *Recorder) RecordPhase(phase, asset string, seconds float64) {
	r.phaseDuration.WithLabelValues(phase, asset).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordDispatch(string, string, float64)  {}
func (Nop) RecordValidationFailure(string, string) {}
func (Nop) RecordScore(string, float64)             {}
func (Nop) RecordWeight(string, float64)            {}
func (Nop) RecordPhase(string, string, float64)     {}
func (Nop) RecordError(string)                      {}
