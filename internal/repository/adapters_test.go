package repository

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSynth/internal/domain/models"
	"FinSynth/pkg/cache"
	pkgch "FinSynth/pkg/clickhouse"
	xhttp "FinSynth/pkg/http"
)

func testRequest() models.SimulationRequest {
	return models.SimulationRequest{
		ID: "r1", Asset: "BTC", StartTime: t0, TimeIncrement: 300, TimeLength: 600, NumSimulations: 1,
	}
}

func TestHTTPTransport_Send(t *testing.T) {
	var gotRequester string
	var gotBody models.SimulateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simulate", r.URL.Path)
		gotRequester = r.Header.Get(models.RequesterHeader)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		resp := models.SimulateResponse{RequestID: gotBody.RequestID, Paths: [][]models.PricePointDTO{{
			{Time: t0, Price: 100}, {Time: t0.Add(5 * time.Minute), Price: 101}, {Time: t0.Add(10 * time.Minute), Price: 102},
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 200, "message": "OK", "data": resp})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(xhttp.NewClient(), "coordinator")
	ens, err := tr.Send(context.Background(), models.Worker{ID: "w1", Endpoint: srv.URL + "/"}, testRequest())
	require.NoError(t, err)

	assert.Equal(t, "coordinator", gotRequester)
	assert.Equal(t, "r1", gotBody.RequestID)
	assert.Equal(t, 600, gotBody.TimeLength)
	require.Len(t, ens.Paths, 1)
	assert.Equal(t, 102.0, ens.Paths[0][2].Price)
}

func TestHTTPTransport_RejectionIsNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(xhttp.NewClient(), "stranger")
	_, err := tr.Send(context.Background(), models.Worker{ID: "w1", Endpoint: srv.URL}, testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNoResponse)

	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.Code)
}

func TestHTTPTransport_BreakerOpens(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(xhttp.NewClient(), "c", WithBreaker(2, time.Hour, time.Hour))
	worker := models.Worker{ID: "w1", Endpoint: srv.URL}

	for i := 0; i < 2; i++ {
		_, err := tr.Send(context.Background(), worker, testRequest())
		require.Error(t, err)
	}
	_, err := tr.Send(context.Background(), worker, testRequest())
	assert.ErrorIs(t, err, models.ErrNoResponse)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	// other workers keep their own breaker
	_, err = tr.Send(context.Background(), models.Worker{ID: "w2", Endpoint: srv.URL}, testRequest())
	assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestHTTPTransport_Timeout(t *testing.T) {
	// the server only sees the disconnect once the body is read, so the
	// handler is released explicitly before Close.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	tr := NewHTTPTransport(xhttp.NewClient(), "c")
	_, err := tr.Send(ctx, models.Worker{ID: "w1", Endpoint: srv.URL}, testRequest())
	assert.ErrorIs(t, err, models.ErrNoResponse)
}

func TestStaticRegistry(t *testing.T) {
	workers := []models.Worker{{ID: "a", Endpoint: "http://a"}}
	r := NewStaticRegistry(workers)
	workers[0].ID = "mutated"

	got, err := r.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", got[0].ID)
}

func TestRedisRegistry(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(true)

	reg := NewRedisRegistry(db, "fs", 90*time.Second)
	now := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return now }

	mock.ExpectHSet("fs:workers:endpoints", "w1", "http://w1:8080").SetVal(1)
	mock.ExpectZAdd("fs:workers:heartbeat", redis.Z{Score: float64(now.Unix()), Member: "w1"}).SetVal(1)
	require.NoError(t, reg.Heartbeat(context.Background(), models.Worker{ID: "w1", Endpoint: "http://w1:8080"}))

	minScore := "1699999910"
	mock.ExpectZRemRangeByScore("fs:workers:heartbeat", "-inf", "("+minScore).SetVal(1)
	mock.ExpectZRangeByScore("fs:workers:heartbeat", &redis.ZRangeBy{Min: minScore, Max: "+inf"}).SetVal([]string{"w2", "w1", "w3"})
	mock.ExpectHMGet("fs:workers:endpoints", "w2", "w1", "w3").SetVal([]interface{}{"http://w2", "http://w1:8080", nil})

	got, err := reg.ListActive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Worker{
		{ID: "w1", Endpoint: "http://w1:8080"},
		{ID: "w2", Endpoint: "http://w2"},
	}, got)

	mock.ExpectZRem("fs:workers:heartbeat", "w1").SetVal(1)
	mock.ExpectHDel("fs:workers:endpoints", "w1").SetVal(1)
	require.NoError(t, reg.Deregister(context.Background(), "w1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRegistry_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	reg := NewRedisRegistry(db, "fs", time.Minute)
	reg.now = func() time.Time { return time.Unix(120, 0) }

	mock.ExpectZRemRangeByScore("fs:workers:heartbeat", "-inf", "(60").SetErr(errors.New("conn refused"))
	_, err := reg.ListActive(context.Background())
	assert.ErrorContains(t, err, "conn refused")
}

func TestClickHouseOracle(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	o := NewClickHouseOracle(db, "rt_ticks_raw", map[string]string{"BTC": "BINANCE:BTCUSDT"}, 5*time.Minute, nil)
	q := "SELECT price FROM rt_ticks_raw WHERE symbol = ? AND ts <= ? AND ts >= ? ORDER BY ts DESC LIMIT 1"

	mock.ExpectQuery(q).
		WithArgs("BINANCE:BTCUSDT", t0, t0.Add(-5*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"price"}).AddRow(64000.5))
	mock.ExpectQuery(q).
		WithArgs("ETH", t0, t0.Add(-5*time.Minute)).
		WillReturnRows(sqlmock.NewRows([]string{"price"}))
	mock.ExpectQuery(q).WillReturnError(errors.New("timeout"))

	p, err := o.PriceAt(context.Background(), "BTC", t0)
	require.NoError(t, err)
	assert.Equal(t, 64000.5, p)

	_, err = o.PriceAt(context.Background(), "ETH", t0)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)

	_, err = o.PriceAt(context.Background(), "BTC", t0)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
	assert.ErrorContains(t, err, "timeout")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClickHouseScoreArchive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := NewClickHouseScoreArchive(db, pkgch.DefaultArchiveTables())
	samples := []models.ScoreSample{
		{WorkerID: "w1", RequestID: "r1", Asset: "BTC", Timestamp: t0, Score: -0.01, CRPS: 12, Coverage: 1, Scored: 3},
		{WorkerID: "w2", RequestID: "r1", Asset: "BTC", Timestamp: t0, Score: -0.02, CRPS: 24, Coverage: 0.5, Scored: 3},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO score_samples (ts, worker_id, request_id, asset, score, crps, coverage, scored) VALUES (?, ?, ?, ?, ?, ?, ?, ?),(?, ?, ?, ?, ?, ?, ?, ?)")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO weight_vectors (as_of, worker_id, weight) VALUES (?, ?, ?),(?, ?, ?)")).
		WithArgs(t0, "w1", 0.75, t0, "w2", 0.25).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, a.SaveSamples(context.Background(), samples))
	require.NoError(t, a.SaveWeights(context.Background(), models.WeightVector{AsOf: t0, Weights: map[string]float64{"w2": 0.25, "w1": 0.75}}))
	require.NoError(t, a.SaveSamples(context.Background(), nil))
	require.NoError(t, a.SaveWeights(context.Background(), models.WeightVector{AsOf: t0}))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func hermesServer(t *testing.T, publish int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var publishTime int64
		switch r.URL.Path {
		case "/v2/updates/price/1751328000":
			publishTime = publish
		case "/v2/updates/price/latest":
			publishTime = time.Now().Unix()
		default:
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "feed-btc", r.URL.Query().Get("ids[]"))
		assert.Equal(t, "true", r.URL.Query().Get("parsed"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"parsed": []map[string]interface{}{{
				"id": "feed-btc",
				"price": map[string]interface{}{
					"price": "6400050000000", "conf": "100", "expo": -8, "publish_time": publishTime,
				},
			}},
		})
	}))
}

func TestHTTPOracle(t *testing.T) {
	srv := hermesServer(t, t0.Unix())
	defer srv.Close()

	o := NewHTTPOracle(xhttp.NewClient(), srv.URL+"/", map[string]string{"BTC": "feed-btc"}, time.Minute)

	p, err := o.PriceAt(context.Background(), "BTC", t0)
	require.NoError(t, err)
	assert.InDelta(t, 64000.5, p, 1e-6)

	_, err = o.PriceAt(context.Background(), "BTC", t0.Add(time.Second))
	assert.ErrorIs(t, err, models.ErrDataUnavailable, "404 maps to unavailable")

	_, err = o.PriceAt(context.Background(), "DOGE", t0)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)

	p, err = o.PriceAt(context.Background(), "BTC", time.Now().Add(8*time.Second))
	require.NoError(t, err, "future start times resolve to the latest update")
	assert.InDelta(t, 64000.5, p, 1e-6)
}

func TestHTTPOracle_StalePublish(t *testing.T) {
	srv := hermesServer(t, t0.Add(-10*time.Minute).Unix())
	defer srv.Close()

	o := NewHTTPOracle(xhttp.NewClient(), srv.URL, map[string]string{"BTC": "feed-btc"}, time.Minute)
	_, err := o.PriceAt(context.Background(), "BTC", t0)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
}

type countingOracle struct {
	calls int
	price float64
	err   error
}

func (o *countingOracle) PriceAt(context.Context, string, time.Time) (float64, error) {
	o.calls++
	return o.price, o.err
}

func TestCachedOracle(t *testing.T) {
	next := &countingOracle{price: 101.5}
	mc := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	defer mc.Close()

	o := NewCachedOracle(next, mc, time.Hour, nil)
	o.now = func() time.Time { return t0.Add(time.Hour) }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := o.PriceAt(ctx, "BTC", t0)
		require.NoError(t, err)
		assert.Equal(t, 101.5, p)
	}
	assert.Equal(t, 1, next.calls)

	recent := t0.Add(time.Hour - 10*time.Second)
	_, _ = o.PriceAt(ctx, "BTC", recent)
	_, _ = o.PriceAt(ctx, "BTC", recent)
	assert.Equal(t, 3, next.calls, "unsettled timestamps are not cached")

	next.err = models.ErrDataUnavailable
	_, err := o.PriceAt(ctx, "ETH", t0)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
	_, err = o.PriceAt(ctx, "ETH", t0)
	assert.ErrorIs(t, err, models.ErrDataUnavailable)
	assert.Equal(t, 5, next.calls)
}

type fakeProducer struct {
	topic string
	key   []byte
	value interface{}
	err   error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	p.topic, p.key, p.value = topic, key, value
	return p.err
}

func TestKafkaPublishers(t *testing.T) {
	fp := &fakeProducer{}
	wp := NewKafkaWeightPublisher(fp, "finsynth.weights")
	require.NoError(t, wp.Publish(context.Background(), models.WeightVector{AsOf: t0, Weights: map[string]float64{"a": 0.5, "b": 0.5}}))

	assert.Equal(t, "finsynth.weights", fp.topic)
	assert.Equal(t, "2025-07-01T00:00:00Z", string(fp.key))
	msg := fp.value.(WeightMessage)
	assert.InDelta(t, 1.0, msg.Sum, 1e-12)

	lp := NewKafkaLogPublisher(fp, "worker-1")
	require.NoError(t, lp.PublishMessage(context.Background(), "finsynth.logs", "digest"))
	assert.Equal(t, "finsynth.logs", fp.topic)
	assert.Equal(t, "worker-1", string(fp.key))

	fp.err = errors.New("broker down")
	assert.Error(t, wp.Publish(context.Background(), models.WeightVector{AsOf: t0}))
}
