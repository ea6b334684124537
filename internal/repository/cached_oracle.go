package repository

import (
	"context"
	"errors"
	"time"

	domrepo "FinSynth/internal/domain/repository"
	"FinSynth/pkg/cache"
	applogger "FinSynth/pkg/logger"
)

// CachedOracle memoizes realized prices. Only timestamps older than
// settle are cached since a recent tick may still be revised or missing.
type CachedOracle struct {
	next   domrepo.PriceOracle
	cache  cache.Service
	ttl    time.Duration
	settle time.Duration
	now    func() time.Time
	l      *applogger.Logger
}

func NewCachedOracle(next domrepo.PriceOracle, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedOracle {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedOracle{next: next, cache: c, ttl: ttl, settle: time.Minute, now: time.Now, l: l}
}

func (o *CachedOracle) PriceAt(ctx context.Context, asset string, ts time.Time) (float64, error) {
	key := cache.Key("price", asset, ts.Unix())

	var price float64
	err := o.cache.Get(ctx, key, &price)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		o.l.Warn("price cache read failed", applogger.String("key", key), applogger.Error(err))
	}

	price, err = o.next.PriceAt(ctx, asset, ts)
	if err != nil {
		return 0, err
	}

	if ts.Before(o.now().Add(-o.settle)) {
		if err := o.cache.Set(ctx, key, price, o.ttl); err != nil {
			o.l.Warn("price cache write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
	return price, nil
}
