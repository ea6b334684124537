package di

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrepo "FinSynth/internal/repository"
	"FinSynth/pkg/cache"
	"FinSynth/pkg/config"
	applogger "FinSynth/pkg/logger"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestProviders_Defaults(t *testing.T) {
	cfg := defaultConfig(t)
	l := applogger.Nop()

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	assert.Nil(t, producer)

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)

	priceCache := ProvidePriceCache(cfg, rc)
	assert.IsType(t, &cache.MemoryCache{}, priceCache)

	oracle, err := ProvidePriceOracle(cfg, ch, priceCache, l)
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.CachedOracle{}, oracle)

	registry, err := ProvideWorkerRegistry(cfg, rc)
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.StaticRegistry{}, registry)

	assert.IsType(t, &internalrepo.LogWeightPublisher{}, ProvideWeightPublisher(cfg, producer, l))
	assert.IsType(t, internalrepo.NoopArchive{}, ProvideScoreArchive(cfg, ch))
	assert.Nil(t, ProvideHeartbeater(cfg, rc))

	closers := ProvideClosers(l, producer, ch, rc, priceCache)
	require.Len(t, closers, 2)
	assert.Equal(t, "price-cache", closers[0].Name)
	closers.CloseAll(l)
}

func TestProviders_ClickHouseOracleNeedsClient(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Oracle.Type = "clickhouse"

	_, err := ProvidePriceOracle(cfg, nil, nil, applogger.Nop())
	require.Error(t, err)
}

func TestProviders_UncachedOracle(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Oracle.Cache.Disabled = true

	priceCache := ProvidePriceCache(cfg, nil)
	assert.Nil(t, priceCache)

	oracle, err := ProvidePriceOracle(cfg, nil, priceCache, applogger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &internalrepo.HTTPOracle{}, oracle)
}

func TestProvideTemplatesAndCoordinator(t *testing.T) {
	cfg := defaultConfig(t)

	templates := ProvideTemplates(cfg)
	require.Len(t, templates, 1)
	assert.Equal(t, "BTC/300/86400/100", templates[0].String())

	reg := ProvidePrometheusRegistry()
	m := ProvideMetrics(reg)
	m.RecordError("test")
	n, err := testutil.GatherAndCount(reg, "finsynth_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
