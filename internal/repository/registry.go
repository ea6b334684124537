package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"FinSynth/internal/domain/models"
)

// StaticRegistry serves a fixed worker list from configuration.
type StaticRegistry struct {
	workers []models.Worker
}

func NewStaticRegistry(workers []models.Worker) *StaticRegistry {
	cp := make([]models.Worker, len(workers))
	copy(cp, workers)
	return &StaticRegistry{workers: cp}
}

func (r *StaticRegistry) ListActive(_ context.Context) ([]models.Worker, error) {
	out := make([]models.Worker, len(r.workers))
	copy(out, r.workers)
	return out, nil
}

// RedisRegistry tracks workers through heartbeats. Workers ZADD their last
// heartbeat and HSET their endpoint; active means a heartbeat within ttl.
type RedisRegistry struct {
	rdb          *redis.Client
	heartbeatKey string
	endpointKey  string
	ttl          time.Duration
	now          func() time.Time
}

func NewRedisRegistry(rdb *redis.Client, prefix string, ttl time.Duration) *RedisRegistry {
	if prefix == "" {
		prefix = "finsynth"
	}
	return &RedisRegistry{
		rdb:          rdb,
		heartbeatKey: prefix + ":workers:heartbeat",
		endpointKey:  prefix + ":workers:endpoints",
		ttl:          ttl,
		now:          time.Now,
	}
}

// Heartbeat registers or refreshes a worker.
func (r *RedisRegistry) Heartbeat(ctx context.Context, w models.Worker) error {
	if err := r.rdb.HSet(ctx, r.endpointKey, w.ID, w.Endpoint).Err(); err != nil {
		return fmt.Errorf("registry endpoint: %w", err)
	}
	score := float64(r.now().Unix())
	if err := r.rdb.ZAdd(ctx, r.heartbeatKey, redis.Z{Score: score, Member: w.ID}).Err(); err != nil {
		return fmt.Errorf("registry heartbeat: %w", err)
	}
	return nil
}

// Deregister removes a worker immediately.
func (r *RedisRegistry) Deregister(ctx context.Context, workerID string) error {
	if err := r.rdb.ZRem(ctx, r.heartbeatKey, workerID).Err(); err != nil {
		return fmt.Errorf("registry deregister: %w", err)
	}
	if err := r.rdb.HDel(ctx, r.endpointKey, workerID).Err(); err != nil {
		return fmt.Errorf("registry deregister: %w", err)
	}
	return nil
}

// ListActive returns workers with a fresh heartbeat and a known endpoint,
// sorted by ID. Stale heartbeats are pruned.
func (r *RedisRegistry) ListActive(ctx context.Context) ([]models.Worker, error) {
	minScore := strconv.FormatInt(r.now().Add(-r.ttl).Unix(), 10)

	if err := r.rdb.ZRemRangeByScore(ctx, r.heartbeatKey, "-inf", "("+minScore).Err(); err != nil {
		return nil, fmt.Errorf("registry prune: %w", err)
	}

	ids, err := r.rdb.ZRangeByScore(ctx, r.heartbeatKey, &redis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("registry list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	endpoints, err := r.rdb.HMGet(ctx, r.endpointKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("registry endpoints: %w", err)
	}

	out := make([]models.Worker, 0, len(ids))
	for i, id := range ids {
		ep, ok := endpoints[i].(string)
		if !ok || ep == "" {
			continue
		}
		out = append(out, models.Worker{ID: id, Endpoint: ep})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
