package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSynth/internal/domain/models"
	"FinSynth/internal/usecase"
	xhttp "FinSynth/pkg/http"
	applogger "FinSynth/pkg/logger"
)

// Closer is an infrastructure resource released on shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// Closers are released in reverse order of acquisition.
type Closers []Closer

// CloseAll releases every resource, logging failures.
func (cs Closers) CloseAll(l *applogger.Logger) {
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil {
			l.Warn("close error", applogger.String("resource", cs[i].Name), applogger.Error(err))
		}
	}
}

// CoordinatorApp runs the epoch scheduler and the status API.
type CoordinatorApp struct {
	l               *applogger.Logger
	coordinator     *usecase.Coordinator
	scheduler       *usecase.Scheduler
	templates       []usecase.Template
	httpServer      *xhttp.Server
	shutdownTimeout time.Duration
	closers         Closers
}

func NewCoordinatorApp(
	l *applogger.Logger,
	coordinator *usecase.Coordinator,
	scheduler *usecase.Scheduler,
	templates []usecase.Template,
	httpServer *xhttp.Server,
	shutdownTimeout time.Duration,
	closers Closers,
) *CoordinatorApp {
	return &CoordinatorApp{
		l:               l,
		coordinator:     coordinator,
		scheduler:       scheduler,
		templates:       templates,
		httpServer:      httpServer,
		shutdownTimeout: shutdownTimeout,
		closers:         closers,
	}
}

// Run blocks until ctx is cancelled or the HTTP server fails.
func (a *CoordinatorApp) Run(ctx context.Context) error {
	if err := a.coordinator.Schedule(a.scheduler, a.templates); err != nil {
		a.closers.CloseAll(a.l)
		return fmt.Errorf("schedule: %w", err)
	}
	a.scheduler.Start()

	if err := a.httpServer.Start(); err != nil {
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	}
	a.l.Info("coordinator started", applogger.Int("templates", len(a.templates)))

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}
	a.shutdown()
	return runErr
}

func (a *CoordinatorApp) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if err := a.scheduler.Stop(ctx); err != nil {
		a.l.Warn("scheduler stop error", applogger.Error(err))
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	a.closers.CloseAll(a.l)
	a.l.Info("shutdown complete")
}

// Heartbeater announces a worker to the coordinator's registry.
type Heartbeater interface {
	Heartbeat(ctx context.Context, w models.Worker) error
	Deregister(ctx context.Context, workerID string) error
}

// WorkerApp serves /simulate and, with a registry, keeps the worker listed.
type WorkerApp struct {
	l               *applogger.Logger
	self            models.Worker
	httpServer      *xhttp.Server
	heartbeater     Heartbeater
	interval        time.Duration
	shutdownTimeout time.Duration
	closers         Closers
}

func NewWorkerApp(
	l *applogger.Logger,
	self models.Worker,
	httpServer *xhttp.Server,
	heartbeater Heartbeater,
	interval time.Duration,
	shutdownTimeout time.Duration,
	closers Closers,
) *WorkerApp {
	return &WorkerApp{
		l:               l,
		self:            self,
		httpServer:      httpServer,
		heartbeater:     heartbeater,
		interval:        interval,
		shutdownTimeout: shutdownTimeout,
		closers:         closers,
	}
}

func (a *WorkerApp) Run(ctx context.Context) error {
	if err := a.httpServer.Start(); err != nil {
		a.closers.CloseAll(a.l)
		return fmt.Errorf("http server: %w", err)
	}
	a.l.Info("worker started", applogger.String("worker_id", a.self.ID), applogger.String("endpoint", a.self.Endpoint))

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		a.heartbeatLoop(hbCtx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}
	stopHeartbeat()
	<-hbDone

	a.shutdown()
	return runErr
}

func (a *WorkerApp) heartbeatLoop(ctx context.Context) {
	if a.heartbeater == nil || a.interval <= 0 {
		return
	}
	beat := func() {
		if err := a.heartbeater.Heartbeat(ctx, a.self); err != nil && !errors.Is(err, context.Canceled) {
			a.l.Warn("heartbeat failed", applogger.Error(err))
		}
	}
	beat()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat()
		}
	}
}

func (a *WorkerApp) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.heartbeater != nil {
		if err := a.heartbeater.Deregister(ctx, a.self.ID); err != nil {
			a.l.Warn("deregister failed", applogger.Error(err))
		}
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	a.closers.CloseAll(a.l)
	a.l.Info("shutdown complete")
}
