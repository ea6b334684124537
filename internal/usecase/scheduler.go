package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	applogger "FinSynth/pkg/logger"
)

// Job is one scheduled unit of work. Run must honor ctx.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler triggers jobs on cron schedules. Every run gets a context bounded
// by the job's deadline, so a run that outlives its slot is cancelled
// instead of piling up behind the next one.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	l      *applogger.Logger
}

func NewScheduler(l *applogger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		ctx:    ctx,
		cancel: cancel,
		l:      l.With(applogger.String("component", "scheduler")),
	}
}

// AddJob registers job. Examples: "@every 60s", "0 */5 * * * *".
func (s *Scheduler) AddJob(schedule string, deadline time.Duration, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.run(job, deadline) }); err != nil {
		return fmt.Errorf("schedule %s (%s): %w", job.Name(), schedule, err)
	}
	s.l.Info("job registered",
		applogger.String("job", job.Name()),
		applogger.String("schedule", schedule),
	)
	return nil
}

func (s *Scheduler) run(job Job, deadline time.Duration) {
	s.wg.Add(1)
	defer s.wg.Done()

	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if deadline > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, deadline)
	}
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	switch {
	case err == nil:
		s.l.Debug("job completed", applogger.String("job", job.Name()), applogger.Duration("duration_ms", time.Since(start)))
	case ctx.Err() != nil && s.ctx.Err() == nil:
		s.l.Warn("job superseded by its deadline",
			applogger.String("job", job.Name()),
			applogger.Duration("deadline_ms", deadline),
			applogger.Error(err),
		)
	case s.ctx.Err() != nil:
		s.l.Debug("job cancelled on shutdown", applogger.String("job", job.Name()))
	default:
		s.l.Error("job failed", applogger.String("job", job.Name()), applogger.Error(err))
	}
}

// RunNow executes job once outside its schedule, synchronously.
func (s *Scheduler) RunNow(job Job, deadline time.Duration) {
	s.run(job, deadline)
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.l.Info("scheduler started", applogger.Int("jobs", len(s.cron.Entries())))
}

// Stop cancels running jobs and waits for them to return, or for ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.l.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

type queryJob struct {
	c   *Coordinator
	tpl Template
}

func (j queryJob) Name() string                  { return "query:" + j.tpl.String() }
func (j queryJob) Run(ctx context.Context) error { return j.c.QueryPhase(ctx, j.tpl) }

type scoreJob struct {
	c     *Coordinator
	asset string
}

func (j scoreJob) Name() string { return "score:" + j.asset }

func (j scoreJob) Run(ctx context.Context) error {
	_, err := j.c.ScorePhase(ctx, j.asset)
	return err
}

// Jobs returns a query job per template and one score job per distinct asset.
func (c *Coordinator) Jobs(templates []Template) []Job {
	var jobs []Job
	seen := make(map[string]bool)
	for _, tpl := range templates {
		jobs = append(jobs, queryJob{c: c, tpl: tpl})
	}
	for _, tpl := range templates {
		if seen[tpl.Asset] {
			continue
		}
		seen[tpl.Asset] = true
		jobs = append(jobs, scoreJob{c: c, asset: tpl.Asset})
	}
	return jobs
}

// Schedule registers c's jobs on s at the configured cadence.
func (c *Coordinator) Schedule(s *Scheduler, templates []Template) error {
	every := fmt.Sprintf("@every %s", c.timing.Cadence)
	for _, job := range c.Jobs(templates) {
		if err := s.AddJob(every, c.timing.Cadence, job); err != nil {
			return err
		}
	}
	return nil
}
