package usecase

import (
	"context"
	"time"

	"FinSynth/internal/domain/models"
	domrepo "FinSynth/internal/domain/repository"
	applogger "FinSynth/pkg/logger"
)

// Collector fans one request out to every worker and gathers the replies.
type Collector struct {
	transport domrepo.Transport
	timeout   time.Duration
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

func NewCollector(transport domrepo.Transport, timeout time.Duration, metrics domrepo.Metrics, l *applogger.Logger) *Collector {
	return &Collector{transport: transport, timeout: timeout, metrics: metrics, l: l}
}

// Collect returns one record per worker, in worker order. Each dispatch gets
// its own timeout; workers that have not answered when ctx ends are recorded
// as no_response. Late replies land in the buffered channel and are dropped.
func (c *Collector) Collect(ctx context.Context, req models.SimulationRequest, workers []models.Worker) []models.WorkerRecord {
	records := make([]models.WorkerRecord, len(workers))
	if len(workers) == 0 {
		return records
	}

	type item struct {
		idx int
		rec models.WorkerRecord
	}
	ch := make(chan item, len(workers))

	for i, w := range workers {
		go func(i int, w models.Worker) {
			wctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			ens, err := c.transport.Send(wctx, w, req)
			rec := models.WorkerRecord{WorkerID: w.ID, Latency: time.Since(start)}
			if err != nil {
				rec.Status, rec.Err = models.StatusNoResponse, err
			} else {
				rec.Status, rec.Ensemble = models.StatusResponded, ens
			}
			ch <- item{i, rec}
		}(i, w)
	}

	got := make([]bool, len(workers))
	received := 0
collect:
	for received < len(workers) {
		select {
		case it := <-ch:
			records[it.idx] = it.rec
			got[it.idx] = true
			received++
		case <-ctx.Done():
			break collect
		}
	}

	for i, w := range workers {
		if !got[i] {
			records[i] = models.WorkerRecord{WorkerID: w.ID, Status: models.StatusNoResponse, Err: ctx.Err()}
		}
		rec := records[i]
		c.metrics.RecordDispatch(req.Asset, string(rec.Status), rec.Latency.Seconds())
		if rec.Status == models.StatusNoResponse {
			c.l.Debug("worker did not respond",
				applogger.String("request_id", req.ID),
				applogger.String("worker_id", w.ID),
				applogger.Error(rec.Err),
			)
		}
	}
	return records
}
