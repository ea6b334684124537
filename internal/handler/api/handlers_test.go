package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSynth/internal/domain/models"
	"FinSynth/internal/repository"
	"FinSynth/internal/service/ratelimit"
	"FinSynth/internal/services/simulation"
	"FinSynth/internal/services/weights"
	"FinSynth/internal/usecase"
	xlogger "FinSynth/pkg/logger"
)

var t0 = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

type fixedOracle struct {
	price float64
	err   error
}

func (o fixedOracle) PriceAt(context.Context, string, time.Time) (float64, error) {
	return o.price, o.err
}

type envelope[T any] struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func do(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func workerEcho(oracle fixedOracle, allow []string, limiter *ratelimit.Limiter) *echo.Echo {
	g := simulation.NewGenerator(oracle, map[string]simulation.Params{"BTC": {Sigma: 0.5}}, simulation.WithSeed(3))
	svc := usecase.NewWorkerService(g, usecase.AllowList(allow), limiter, xlogger.Nop())
	e := echo.New()
	NewWorkerHandler(xlogger.Nop(), svc).RegisterRoutes(e)
	return e
}

const simulateBody = `{"request_id":"r1","asset":"BTC","start_time":"2025-07-01T00:00:00Z","time_increment":300,"time_length":600,"num_simulations":2}`

func TestWorkerHandler_Simulate(t *testing.T) {
	e := workerEcho(fixedOracle{price: 100}, nil, nil)

	rec := do(e, http.MethodPost, "/simulate", simulateBody, map[string]string{models.RequesterHeader: "coord"})
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode[models.SimulateResponse](t, rec)
	ens := env.Data.ToDomain()
	assert.Equal(t, "r1", ens.RequestID)
	require.Len(t, ens.Paths, 2)
	require.Len(t, ens.Paths[0], 3)
	assert.Equal(t, t0, ens.Paths[0][0].Time)
	assert.Equal(t, t0.Add(600*time.Second), ens.Paths[1][2].Time)
	assert.Equal(t, 100.0, ens.Paths[1][0].Price)
}

func TestWorkerHandler_Defaults(t *testing.T) {
	e := workerEcho(fixedOracle{price: 100}, nil, nil)

	body := `{"request_id":"r2","asset":"BTC","start_time":"2025-07-01T00:00:00Z"}`
	rec := do(e, http.MethodPost, "/simulate", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode[models.SimulateResponse](t, rec)
	require.Len(t, env.Data.Paths, 100)
	assert.Len(t, env.Data.Paths[0], 86400/300+1)
}

func TestWorkerHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		echo     *echo.Echo
		body     string
		headers  map[string]string
		wantCode int
		wantErr  string
	}{
		{
			name:     "unknown requester",
			echo:     workerEcho(fixedOracle{price: 100}, []string{"coord-1"}, nil),
			body:     simulateBody,
			headers:  map[string]string{models.RequesterHeader: "someone"},
			wantCode: http.StatusForbidden,
			wantErr:  "ERR_FORBIDDEN",
		},
		{
			name:     "missing request id",
			echo:     workerEcho(fixedOracle{price: 100}, nil, nil),
			body:     `{"asset":"BTC","start_time":"2025-07-01T00:00:00Z"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_REQUIRED",
		},
		{
			name:     "length shorter than increment",
			echo:     workerEcho(fixedOracle{price: 100}, nil, nil),
			body:     `{"request_id":"r","asset":"BTC","start_time":"2025-07-01T00:00:00Z","time_increment":300,"time_length":60}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_GTEFIELD",
		},
		{
			name:     "horizon too long",
			echo:     workerEcho(fixedOracle{price: 100}, nil, nil),
			body:     `{"request_id":"r","asset":"BTC","start_time":"2025-07-01T00:00:00Z","time_increment":1,"time_length":2000000000}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_LTE",
		},
		{
			name:     "ensemble too large",
			echo:     workerEcho(fixedOracle{price: 100}, nil, nil),
			body:     `{"request_id":"r","asset":"BTC","start_time":"2025-07-01T00:00:00Z","time_increment":1,"time_length":86400,"num_simulations":10000}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_BAD_REQUEST",
		},
		{
			name:     "unknown asset",
			echo:     workerEcho(fixedOracle{price: 100}, nil, nil),
			body:     `{"request_id":"r","asset":"DOGE","start_time":"2025-07-01T00:00:00Z","time_increment":300,"time_length":600,"num_simulations":1}`,
			wantCode: http.StatusBadRequest,
			wantErr:  "ERR_BAD_REQUEST",
		},
		{
			name:     "oracle down",
			echo:     workerEcho(fixedOracle{err: fmt.Errorf("%w: stale", models.ErrDataUnavailable)}, nil, nil),
			body:     simulateBody,
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "ERR_UNAVAILABLE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(tt.echo, http.MethodPost, "/simulate", tt.body, tt.headers)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantErr)
		})
	}
}

func TestWorkerHandler_RateLimited(t *testing.T) {
	e := workerEcho(fixedOracle{price: 100}, nil, ratelimit.New(0.001, 1))
	h := map[string]string{models.RequesterHeader: "coord"}

	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/simulate", simulateBody, h).Code)

	rec := do(e, http.MethodPost, "/simulate", simulateBody, h)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func statusEcho(t *testing.T) (*echo.Echo, *repository.ScoreBook) {
	t.Helper()
	book := repository.NewScoreBook()
	ledger := repository.NewRequestLedger()
	ledger.Add(models.PendingRequest{Request: models.SimulationRequest{ID: "pending", Asset: "BTC", StartTime: t0}})

	asOf := t0.Add(time.Hour)
	book.MarkKnown("a", "b", "idle")
	book.Commit([]models.ScoreSample{
		{WorkerID: "a", RequestID: "r1", Asset: "BTC", Timestamp: t0, Score: -0.01, Weight: 1, Scored: 3},
		{WorkerID: "a", RequestID: "r2", Asset: "BTC", Timestamp: t0.Add(time.Minute), Score: -0.02, Weight: 1, Scored: 3},
		{WorkerID: "b", RequestID: "r1", Asset: "BTC", Timestamp: t0, Score: -0.05, Weight: 1, Scored: 3},
	}, t0.Add(-24*time.Hour), func(history map[string][]models.ScoreSample, known []string) (map[string]models.AggregatedScore, models.WeightVector) {
		aggs := weights.AggregateAll(history, asOf, 10*24*time.Hour, 84*time.Hour)
		return aggs, weights.Normalize(aggs, known, 200, asOf)
	})

	e := echo.New()
	NewStatusHandler(xlogger.Nop(), book, ledger).RegisterRoutes(e)
	return e, book
}

func TestStatusHandler_Weights(t *testing.T) {
	e, book := statusEcho(t)

	rec := do(e, http.MethodGet, "/api/weights", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode[models.WeightsResponse](t, rec)
	want := book.Weights()
	assert.True(t, want.AsOf.Equal(env.Data.AsOf))
	require.Len(t, env.Data.Weights, 3)
	assert.InDelta(t, want.Weights["a"], env.Data.Weights["a"], 1e-12)
	assert.Zero(t, env.Data.Weights["idle"])
}

func TestStatusHandler_Scores(t *testing.T) {
	e, _ := statusEcho(t)

	rec := do(e, http.MethodGet, "/api/scores", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env := decode[[]models.AggregatedScoreDTO](t, rec)
	require.Len(t, env.Data, 2)
	assert.Equal(t, "a", env.Data[0].WorkerID)
	assert.Equal(t, 2, env.Data[0].Samples)
	assert.Equal(t, "b", env.Data[1].WorkerID)
}

func TestStatusHandler_Samples(t *testing.T) {
	e, _ := statusEcho(t)

	rec := do(e, http.MethodGet, "/api/workers/a/samples?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[[]models.ScoreSampleDTO](t, rec)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "r2", env.Data[0].RequestID)

	rec = do(e, http.MethodGet, "/api/workers/idle/samples", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.ScoreSampleDTO](t, rec).Data)

	rec = do(e, http.MethodGet, "/api/workers/ghost/samples", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/workers/a/samples?limit=20000", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusHandler_Health(t *testing.T) {
	e, _ := statusEcho(t)

	rec := do(e, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[models.HealthResponse](t, rec)
	assert.Equal(t, "coordinator", env.Data.Role)
	assert.Equal(t, 1, env.Data.PendingRequests)
	assert.Equal(t, 3, env.Data.KnownWorkers)
}
