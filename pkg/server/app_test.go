package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSynth/internal/domain/models"
	xhttp "FinSynth/pkg/http"
	applogger "FinSynth/pkg/logger"
)

type fakeHeartbeater struct {
	mu           sync.Mutex
	beats        int
	deregistered []string
}

func (h *fakeHeartbeater) Heartbeat(_ context.Context, _ models.Worker) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.beats++
	return nil
}

func (h *fakeHeartbeater) Deregister(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deregistered = append(h.deregistered, id)
	return nil
}

func (h *fakeHeartbeater) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.beats
}

func TestWorkerApp_HeartbeatAndShutdown(t *testing.T) {
	hb := &fakeHeartbeater{}
	var closed []string
	closers := Closers{
		{Name: "first", Close: func() error { closed = append(closed, "first"); return nil }},
		{Name: "second", Close: func() error { closed = append(closed, "second"); return nil }},
	}
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	app := NewWorkerApp(applogger.Nop(), models.Worker{ID: "w1", Endpoint: "http://w1"}, srv, hb, 10*time.Millisecond, time.Second, closers)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	assert.Eventually(t, func() bool { return hb.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("worker app did not stop")
	}
	assert.Equal(t, []string{"w1"}, hb.deregistered)
	assert.Equal(t, []string{"second", "first"}, closed)
}

func TestWorkerApp_NoHeartbeater(t *testing.T) {
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0))
	app := NewWorkerApp(applogger.Nop(), models.Worker{ID: "w1"}, srv, nil, time.Second, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, app.Run(ctx))
}
