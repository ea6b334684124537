package repository

import (
	"math"
	"sort"
	"sync"
	"time"

	"FinSynth/internal/domain/models"
)

// RequestLedger holds dispatched requests until they are scored. Taking due
// requests removes them, so each request is scored at most once.
type RequestLedger struct {
	mu      sync.Mutex
	pending map[string]models.PendingRequest
}

func NewRequestLedger() *RequestLedger {
	return &RequestLedger{pending: make(map[string]models.PendingRequest)}
}

func (l *RequestLedger) Add(p models.PendingRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[p.Request.ID] = p
}

// DueAt is the moment a request has realized enough of its horizon to be scored.
func DueAt(req models.SimulationRequest, minRealized float64) time.Time {
	secs := math.Ceil(minRealized * float64(req.TimeLength))
	return req.StartTime.Add(time.Duration(secs) * time.Second)
}

// TakeDue removes and returns every pending request for asset whose due time
// is at or before scoredTime, oldest first.
func (l *RequestLedger) TakeDue(asset string, scoredTime time.Time, minRealized float64) []models.PendingRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	var due []models.PendingRequest
	for id, p := range l.pending {
		if p.Request.Asset != asset {
			continue
		}
		if DueAt(p.Request, minRealized).After(scoredTime) {
			continue
		}
		due = append(due, p)
		delete(l.pending, id)
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].Request.StartTime.Before(due[j].Request.StartTime)
	})
	return due
}

// Prune drops requests that started before cutoff without ever being scored.
func (l *RequestLedger) Prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for id, p := range l.pending {
		if p.Request.StartTime.Before(cutoff) {
			delete(l.pending, id)
			n++
		}
	}
	return n
}

func (l *RequestLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
