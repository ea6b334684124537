package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"FinSynth/internal/domain/models"
	xhttp "FinSynth/pkg/http"
	applogger "FinSynth/pkg/logger"
)

type simulateEnvelope struct {
	Status  int                      `json:"status"`
	Message string                   `json:"message"`
	Data    *models.SimulateResponse `json:"data"`
}

// HTTPTransport posts requests to worker /simulate endpoints. Each worker
// gets its own circuit breaker so a dead worker fails fast.
type HTTPTransport struct {
	client      *xhttp.Client
	requesterID string
	maxFailures uint32
	openTimeout time.Duration
	interval    time.Duration
	l           *applogger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

type TransportOption func(*HTTPTransport)

// WithBreaker sets consecutive failures before opening, how long the breaker
// stays open, and the closed-state counting interval.
func WithBreaker(maxFailures int, openTimeout, interval time.Duration) TransportOption {
	return func(t *HTTPTransport) {
		if maxFailures > 0 {
			t.maxFailures = uint32(maxFailures)
		}
		t.openTimeout = openTimeout
		t.interval = interval
	}
}

func WithTransportLogger(l *applogger.Logger) TransportOption {
	return func(t *HTTPTransport) { t.l = l }
}

func NewHTTPTransport(client *xhttp.Client, requesterID string, opts ...TransportOption) *HTTPTransport {
	t := &HTTPTransport{
		client:      client,
		requesterID: requesterID,
		maxFailures: 5,
		openTimeout: time.Minute,
		interval:    5 * time.Minute,
		l:           applogger.Nop(),
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) breaker(workerID string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cb, ok := t.breakers[workerID]; ok {
		return cb
	}
	maxFailures := t.maxFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "worker:" + workerID,
		Interval: t.interval,
		Timeout:  t.openTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			t.l.Warn("worker breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()))
		},
	})
	t.breakers[workerID] = cb
	return cb
}

// Send returns the worker's ensemble. Every failure wraps models.ErrNoResponse.
func (t *HTTPTransport) Send(ctx context.Context, worker models.Worker, req models.SimulationRequest) (*models.SimulationEnsemble, error) {
	out, err := t.breaker(worker.ID).Execute(func() (interface{}, error) {
		var env simulateEnvelope
		err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method:  xhttp.MethodPost,
			URL:     strings.TrimRight(worker.Endpoint, "/") + "/simulate",
			Headers: map[string]string{models.RequesterHeader: t.requesterID},
			Body:    models.NewSimulateRequest(req),
		}, &env)
		if err != nil {
			return nil, err
		}
		if env.Data == nil {
			return nil, errors.New("response has no data")
		}
		return env.Data.ToDomain(), nil
	})
	if err != nil {
		return nil, fmt.Errorf("send %s to %s: %w: %w", req.ID, worker.ID, models.ErrNoResponse, err)
	}
	return out.(*models.SimulationEnsemble), nil
}
