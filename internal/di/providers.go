package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"FinSynth/internal/domain/models"
	domrepo "FinSynth/internal/domain/repository"
	"FinSynth/internal/handler/api"
	internalrepo "FinSynth/internal/repository"
	"FinSynth/internal/service/ratelimit"
	"FinSynth/internal/services/scoring"
	"FinSynth/internal/services/simulation"
	"FinSynth/internal/usecase"
	"FinSynth/pkg/cache"
	pkgch "FinSynth/pkg/clickhouse"
	"FinSynth/pkg/config"
	xhttp "FinSynth/pkg/http"
	pkgkafka "FinSynth/pkg/kafka"
	applogger "FinSynth/pkg/logger"
	"FinSynth/pkg/metrics"
	"FinSynth/pkg/server"
	"FinSynth/pkg/util"
)

// Role names the process for log digests.
type Role string

// ProvidePrometheusRegistry creates the registry served on the metrics path.
func ProvidePrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	pkgkafka.RegisterMetrics(reg)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideKafkaProducer creates a Kafka producer. Nil when no brokers are configured.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the process logger. With a digest topic, warn and
// error entries are also shipped to Kafka in periodic digests.
func ProvideLogger(cfg *config.Config, role Role, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Logging.DigestTopic != "" && producer != nil {
		source := string(role)
		if role == "worker" {
			source += ":" + cfg.Worker.ID
		}
		l.AddCollector(&applogger.CollectionConfig{
			Source:         source,
			TimeInterval:   cfg.Logging.DigestInterval,
			CountThreshold: cfg.Logging.DigestThreshold,
			Topic:          cfg.Logging.DigestTopic,
			Publisher:      internalrepo.NewKafkaLogPublisher(producer, source),
		})
	}
	return l, nil
}

// ProvideClickHouseClient connects when a host is configured and creates the
// archive tables when the archive is enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.ClickHouse.Host == "" {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.Archive.Type == "clickhouse" {
		if err := client.InitArchive(ctx, pkgch.DefaultArchiveTables()); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, nil
}

// ProvideRedisCache connects when redis is enabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvidePriceCache returns nil when caching is disabled, a memory cache, or
// memory in front of redis when redis is available.
func ProvidePriceCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	if cfg.Oracle.Cache.Disabled {
		return nil
	}
	local := cache.NewMemoryCache(
		cache.WithMemoryMaxSize(cfg.Oracle.Cache.MaxSize),
		cache.WithMemoryCleanup(5*time.Minute),
	)
	if rc == nil {
		return local
	}
	return cache.NewLayeredCache(rc, local, time.Hour)
}

// ProvidePriceOracle selects the oracle backend and wraps it in the price cache.
func ProvidePriceOracle(cfg *config.Config, ch *pkgch.Client, priceCache cache.Service, l *applogger.Logger) (domrepo.PriceOracle, error) {
	var oracle domrepo.PriceOracle
	switch cfg.Oracle.Type {
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("clickhouse oracle: no clickhouse client")
		}
		symbols := make(map[string]string, len(cfg.Assets))
		for name, a := range cfg.Assets {
			symbols[name] = a.Symbol
		}
		oracle = internalrepo.NewClickHouseOracle(ch.DB(), cfg.Oracle.Table, symbols, cfg.Oracle.MaxStaleness, l)
	default:
		feeds := make(map[string]string, len(cfg.Assets))
		for name, a := range cfg.Assets {
			feeds[name] = a.PythFeedID
		}
		client := xhttp.NewClient(xhttp.WithTimeout(cfg.Oracle.Timeout))
		oracle = internalrepo.NewHTTPOracle(client, cfg.Oracle.BaseURL, feeds, cfg.Oracle.MaxStaleness)
	}

	if priceCache == nil {
		return oracle, nil
	}
	return internalrepo.NewCachedOracle(oracle, priceCache, cfg.Oracle.Cache.TTL, l), nil
}

// ProvideTransport creates the worker transport. Per-request deadlines come
// from the collector, so the client itself has no timeout.
func ProvideTransport(cfg *config.Config, l *applogger.Logger) domrepo.Transport {
	client := xhttp.NewClient(xhttp.WithTimeout(0), xhttp.WithMaxIdleConnsPerHost(4))
	b := cfg.Transport.Breaker
	return internalrepo.NewHTTPTransport(client, cfg.Transport.RequesterID,
		internalrepo.WithBreaker(b.MaxFailures, b.OpenTimeout, b.Interval),
		internalrepo.WithTransportLogger(l),
	)
}

// ProvideWorkerRegistry returns the redis registry when selected, else the static list.
func ProvideWorkerRegistry(cfg *config.Config, rc *cache.RedisCache) (domrepo.WorkerRegistry, error) {
	if cfg.Registry.Type == "redis" {
		if rc == nil {
			return nil, fmt.Errorf("redis registry: redis is not enabled")
		}
		return internalrepo.NewRedisRegistry(rc.Client(), rc.Prefix(), cfg.Registry.HeartbeatTTL), nil
	}
	workers := make([]models.Worker, len(cfg.Registry.Workers))
	for i, w := range cfg.Registry.Workers {
		workers[i] = models.Worker{ID: w.ID, Endpoint: w.Endpoint}
	}
	return internalrepo.NewStaticRegistry(workers), nil
}

func ProvideWeightPublisher(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) domrepo.WeightPublisher {
	if cfg.Publisher.Type == "kafka" && producer != nil {
		return internalrepo.NewKafkaWeightPublisher(producer, cfg.Publisher.Topic)
	}
	return internalrepo.NewLogWeightPublisher(l)
}

func ProvideScoreArchive(cfg *config.Config, ch *pkgch.Client) domrepo.ScoreArchive {
	if cfg.Archive.Type == "clickhouse" && ch != nil {
		return internalrepo.NewClickHouseScoreArchive(ch.DB(), pkgch.DefaultArchiveTables())
	}
	return internalrepo.NoopArchive{}
}

func ProvideCollector(cfg *config.Config, transport domrepo.Transport, m domrepo.Metrics, l *applogger.Logger) *usecase.Collector {
	return usecase.NewCollector(transport, cfg.Transport.RequestTimeout, m, l.With(applogger.String("component", "collector")))
}

func ProvideScoringEngine(oracle domrepo.PriceOracle, l *applogger.Logger) *scoring.Engine {
	return scoring.NewEngine(oracle, l.With(applogger.String("component", "scoring")))
}

func ProvideCoordinator(
	cfg *config.Config,
	registry domrepo.WorkerRegistry,
	collector *usecase.Collector,
	engine *scoring.Engine,
	ledger *internalrepo.RequestLedger,
	book *internalrepo.ScoreBook,
	publisher domrepo.WeightPublisher,
	archive domrepo.ScoreArchive,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Coordinator {
	return usecase.NewCoordinator(usecase.CoordinatorDeps{
		Registry:  registry,
		Collector: collector,
		Engine:    engine,
		Ledger:    ledger,
		Book:      book,
		Publisher: publisher,
		Archive:   archive,
		Metrics:   m,
		Clock:     util.SystemClock{},
		Logger:    l.With(applogger.String("component", "coordinator")),
	}, usecase.ScoringParams{
		Cutoff:      util.DaysToDuration(cfg.Scoring.CutoffDays),
		HalfLife:    util.DaysToDuration(cfg.Scoring.HalfLifeDays),
		Beta:        cfg.Scoring.SoftmaxBeta,
		MinRealized: cfg.Scoring.MinRealized,
	}, usecase.Timing{
		Cadence:    cfg.Schedule.Cadence,
		StartDelay: cfg.Schedule.StartDelay,
		ScoreDelay: cfg.Schedule.ScoreDelay,
	})
}

func ProvideTemplates(cfg *config.Config) []usecase.Template {
	out := make([]usecase.Template, len(cfg.Templates))
	for i, t := range cfg.Templates {
		out[i] = usecase.Template{
			Asset:          t.Asset,
			TimeIncrement:  t.TimeIncrement,
			TimeLength:     t.TimeLength,
			NumSimulations: t.NumSimulations,
		}
	}
	return out
}

func ProvideScheduler(l *applogger.Logger) *usecase.Scheduler {
	return usecase.NewScheduler(l)
}

func ProvideStatusHandler(l *applogger.Logger, book *internalrepo.ScoreBook, ledger *internalrepo.RequestLedger) *api.StatusHandler {
	return api.NewStatusHandler(l, book, ledger)
}

func serverOptions(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) []xhttp.ServerOption {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg))
	}
	return opts
}

func ProvideCoordinatorServer(cfg *config.Config, h *api.StatusHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, append(serverOptions(cfg, reg, l), xhttp.WithCORS(true))...)
}

// ProvideClosers lists resources in acquisition order.
func ProvideClosers(
	l *applogger.Logger,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *cache.RedisCache,
	priceCache cache.Service,
) server.Closers {
	var cs server.Closers
	if producer != nil {
		cs = append(cs, server.Closer{Name: "kafka", Close: producer.Close})
	}
	if ch != nil {
		cs = append(cs, server.Closer{Name: "clickhouse", Close: ch.Close})
	}
	if rc != nil {
		cs = append(cs, server.Closer{Name: "redis", Close: rc.Close})
	}
	if priceCache != nil {
		cs = append(cs, server.Closer{Name: "price-cache", Close: priceCache.Close})
	}
	// the digest flush publishes through the producer, so it must run first
	cs = append(cs, server.Closer{Name: "log-digest", Close: func() error {
		l.RemoveCollector()
		return nil
	}})
	return cs
}

func ProvideCoordinatorApp(
	cfg *config.Config,
	l *applogger.Logger,
	coordinator *usecase.Coordinator,
	scheduler *usecase.Scheduler,
	templates []usecase.Template,
	srv *xhttp.Server,
	closers server.Closers,
) *server.CoordinatorApp {
	return server.NewCoordinatorApp(l, coordinator, scheduler, templates, srv, cfg.Server.ShutdownTimeout, closers)
}

// Worker side.

func ProvideGenerator(cfg *config.Config, oracle domrepo.PriceOracle, l *applogger.Logger) *simulation.Generator {
	params := make(map[string]simulation.Params, len(cfg.Assets))
	for name, a := range cfg.Assets {
		params[name] = simulation.Params{Drift: a.Drift, Sigma: a.Sigma}
	}
	opts := []simulation.Option{simulation.WithLogger(l.With(applogger.String("component", "generator")))}
	if cfg.Worker.Seed != 0 {
		opts = append(opts, simulation.WithSeed(cfg.Worker.Seed))
	}
	for _, t := range cfg.Templates {
		if t.CalibrationWindow > 0 {
			opts = append(opts, simulation.WithCalibration(t.Asset, t.CalibrationWindow))
		}
	}
	return simulation.NewGenerator(oracle, params, opts...)
}

func ProvideWorkerService(cfg *config.Config, g *simulation.Generator, l *applogger.Logger) *usecase.WorkerService {
	return usecase.NewWorkerService(g,
		usecase.AllowList(cfg.Worker.AllowedRequesters),
		ratelimit.New(cfg.Worker.RateLimit, cfg.Worker.RateBurst),
		l.With(applogger.String("component", "worker")),
	)
}

func ProvideWorkerHandler(l *applogger.Logger, svc *usecase.WorkerService) *api.WorkerHandler {
	return api.NewWorkerHandler(l, svc)
}

func ProvideWorkerServer(cfg *config.Config, h *api.WorkerHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	return xhttp.NewServer(h, serverOptions(cfg, reg, l)...)
}

// ProvideHeartbeater returns the redis registry for self-registration, or nil.
func ProvideHeartbeater(cfg *config.Config, rc *cache.RedisCache) server.Heartbeater {
	if cfg.Registry.Type != "redis" || rc == nil {
		return nil
	}
	return internalrepo.NewRedisRegistry(rc.Client(), rc.Prefix(), cfg.Registry.HeartbeatTTL)
}

func ProvideWorkerApp(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, hb server.Heartbeater, closers server.Closers) *server.WorkerApp {
	endpoint := cfg.Worker.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	self := models.Worker{ID: cfg.Worker.ID, Endpoint: endpoint}
	return server.NewWorkerApp(l, self, srv, hb, cfg.Worker.HeartbeatInterval, cfg.Server.ShutdownTimeout, closers)
}

// Simulator is a generator with the resources it holds.
type Simulator struct {
	Generator *simulation.Generator
	Logger    *applogger.Logger
	Closers   server.Closers
}
