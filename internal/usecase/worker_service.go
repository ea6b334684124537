package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSynth/internal/domain/models"
	"FinSynth/internal/service/ratelimit"
	"FinSynth/internal/services/simulation"
	applogger "FinSynth/pkg/logger"
)

var (
	ErrNotAccepted = errors.New("requester not accepted")
	ErrRateLimited = errors.New("requester rate limited")
)

// AcceptFunc decides whether a requester may be served.
type AcceptFunc func(requesterID string) bool

// AllowList accepts the listed requesters. An empty list accepts everyone.
func AllowList(ids []string) AcceptFunc {
	if len(ids) == 0 {
		return func(string) bool { return true }
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(id string) bool {
		_, ok := set[id]
		return ok
	}
}

// WorkerService answers simulation requests on the worker side.
type WorkerService struct {
	generator *simulation.Generator
	accept    AcceptFunc
	limiter   *ratelimit.Limiter
	l         *applogger.Logger
}

func NewWorkerService(g *simulation.Generator, accept AcceptFunc, limiter *ratelimit.Limiter, l *applogger.Logger) *WorkerService {
	if accept == nil {
		accept = AllowList(nil)
	}
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}
	return &WorkerService{generator: g, accept: accept, limiter: limiter, l: l}
}

// Simulate checks the requester, validates req and generates its ensemble.
func (s *WorkerService) Simulate(ctx context.Context, requesterID string, req models.SimulationRequest) (*models.SimulationEnsemble, error) {
	if !s.accept(requesterID) {
		s.l.Warn("rejected requester", applogger.String("requester", requesterID))
		return nil, fmt.Errorf("%w: %q", ErrNotAccepted, requesterID)
	}
	if !s.limiter.Allow(requesterID) {
		return nil, fmt.Errorf("%w: %q", ErrRateLimited, requesterID)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	began := time.Now()
	ens, err := s.generator.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", req.ID, err)
	}
	s.l.Debug("simulation served",
		applogger.String("request_id", req.ID),
		applogger.String("requester", requesterID),
		applogger.String("asset", req.Asset),
		applogger.Int("paths", len(ens.Paths)),
		applogger.Duration("duration_ms", time.Since(began)),
	)
	return ens, nil
}
