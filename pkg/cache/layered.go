package cache

import (
	"context"
	"time"
)

// LayeredCache reads memory first and falls back to the remote layer,
// writing through to both.
type LayeredCache struct {
	local  *MemoryCache
	remote Service
	// ttl applied to entries promoted from remote into local
	promoteTTL time.Duration
}

func NewLayeredCache(remote Service, local *MemoryCache, promoteTTL time.Duration) *LayeredCache {
	if local == nil {
		local = NewMemoryCache()
	}
	return &LayeredCache{local: local, remote: remote, promoteTTL: promoteTTL}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, value, expiration)
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if err := lc.local.Get(ctx, key, dest); err == nil {
		return nil
	}
	if err := lc.remote.Get(ctx, key, dest); err != nil {
		return err
	}
	_ = lc.local.Set(ctx, key, dest, lc.promoteTTL)
	return nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	if ok, _ := lc.local.Exists(ctx, keys...); ok {
		return true, nil
	}
	return lc.remote.Exists(ctx, keys...)
}

// Close closes the local layer only; the remote client is owned elsewhere.
func (lc *LayeredCache) Close() error {
	return lc.local.Close()
}
