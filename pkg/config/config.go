package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"FinSynth/internal/domain/models"
)

// Error marks configuration problems. Always fatal at startup.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Logging     LoggingConfig    `yaml:"logging"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Templates   []TemplateConfig `yaml:"templates" validate:"dive"`
	Assets      map[string]Asset `yaml:"assets"`
	Scoring     ScoringConfig    `yaml:"scoring"`
	Schedule    ScheduleConfig   `yaml:"schedule"`
	Transport   TransportConfig  `yaml:"transport"`
	Registry    RegistryConfig   `yaml:"registry"`
	Oracle      OracleConfig     `yaml:"oracle"`
	Publisher   PublisherConfig  `yaml:"publisher"`
	Archive     ArchiveConfig    `yaml:"archive"`
	Worker      WorkerConfig     `yaml:"worker"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Redis       RedisConfig      `yaml:"redis"`
}

type LoggingConfig struct {
	Level           string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format          string        `yaml:"format" default:"json" validate:"oneof=json console"`
	Output          string        `yaml:"output" default:"stdout"`
	DigestTopic     string        `yaml:"digest_topic"`
	DigestInterval  time.Duration `yaml:"digest_interval" default:"30s"`
	DigestThreshold int           `yaml:"digest_threshold" default:"100"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" default:"/metrics"`
}

// TemplateConfig is one request template. Each template gets its own query
// and score jobs.
type TemplateConfig struct {
	Asset             string        `yaml:"asset" default:"BTC" validate:"required"`
	TimeIncrement     int           `yaml:"time_increment" default:"300"`
	TimeLength        int           `yaml:"time_length" default:"86400"`
	NumSimulations    int           `yaml:"num_simulations" default:"100"`
	CalibrationWindow time.Duration `yaml:"calibration_window"`
}

// Asset carries per-asset model parameters and oracle identifiers.
type Asset struct {
	Drift      float64 `yaml:"drift"`
	Sigma      float64 `yaml:"sigma"`
	PythFeedID string  `yaml:"pyth_feed_id"`
	Symbol     string  `yaml:"symbol"`
}

type ScoringConfig struct {
	CutoffDays   float64 `yaml:"cutoff_days" default:"10"`
	HalfLifeDays float64 `yaml:"half_life_days" default:"3.5"`
	SoftmaxBeta  float64 `yaml:"softmax_beta" default:"200"`
	MinRealized  float64 `yaml:"min_realized" default:"1.0"`
}

type ScheduleConfig struct {
	Cadence    time.Duration `yaml:"cadence" default:"60s"`
	StartDelay time.Duration `yaml:"start_delay" default:"8s"`
	ScoreDelay time.Duration `yaml:"score_delay" default:"5s"`
}

type TransportConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
	RequesterID    string        `yaml:"requester_id" default:"coordinator"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

type BreakerConfig struct {
	MaxFailures int           `yaml:"max_failures" default:"5"`
	OpenTimeout time.Duration `yaml:"open_timeout" default:"60s"`
	Interval    time.Duration `yaml:"interval" default:"5m"`
}

type RegistryConfig struct {
	Type         string         `yaml:"type" default:"static" validate:"oneof=static redis"`
	Workers      []StaticWorker `yaml:"workers" validate:"dive"`
	HeartbeatTTL time.Duration  `yaml:"heartbeat_ttl" default:"90s"`
}

type StaticWorker struct {
	ID       string `yaml:"id" validate:"required"`
	Endpoint string `yaml:"endpoint" validate:"required,url"`
}

type OracleConfig struct {
	Type         string        `yaml:"type" default:"http" validate:"oneof=http clickhouse"`
	BaseURL      string        `yaml:"base_url" default:"https://hermes.pyth.network"`
	Table        string        `yaml:"table" default:"rt_ticks_raw"`
	MaxStaleness time.Duration `yaml:"max_staleness" default:"5m"`
	Timeout      time.Duration `yaml:"timeout" default:"10s"`
	Cache        struct {
		Disabled bool          `yaml:"disabled"`
		TTL      time.Duration `yaml:"ttl" default:"48h"`
		MaxSize  int           `yaml:"max_size" default:"20000"`
	} `yaml:"cache"`
}

type PublisherConfig struct {
	Type  string `yaml:"type" default:"log" validate:"oneof=log kafka"`
	Topic string `yaml:"topic" default:"finsynth.weights"`
}

type ArchiveConfig struct {
	Type string `yaml:"type" default:"none" validate:"oneof=none clickhouse"`
}

type WorkerConfig struct {
	ID                string        `yaml:"id" default:"worker-0"`
	Endpoint          string        `yaml:"endpoint"`
	AllowedRequesters []string      `yaml:"allowed_requesters"`
	RateLimit         float64       `yaml:"rate_limit" default:"5"`
	RateBurst         int           `yaml:"rate_burst" default:"10"`
	Seed              uint64        `yaml:"seed"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" default:"30s"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"gzip"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"100ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	} `yaml:"producer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"finsynth"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"finsynth"`
}

// DefaultAssets returns the built-in model parameters. Drift and sigma are annualized.
func DefaultAssets() map[string]Asset {
	return map[string]Asset{
		"BTC": {Drift: 0, Sigma: 0.5, Symbol: "BINANCE:BTCUSDT", PythFeedID: "e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"},
		"ETH": {Drift: 0, Sigma: 0.65, Symbol: "BINANCE:ETHUSDT", PythFeedID: "ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"},
		"SOL": {Drift: 0, Sigma: 0.85, Symbol: "BINANCE:SOLUSDT", PythFeedID: "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"},
		"XAU": {Drift: 0, Sigma: 0.15, Symbol: "OANDA:XAU_USD", PythFeedID: "765d2ba906dbc32ca17cc11f5310a89e9ee1f6420508c63861f2f8ba4ee34bb2"},
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), then YAML, and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &Error{Field: ".env", Err: err}
	}

	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINSYNTH_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("FINSYNTH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FINSYNTH_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FINSYNTH_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("FINSYNTH_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("FINSYNTH_REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("FINSYNTH_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("FINSYNTH_WORKER_ID"); v != "" {
		c.Worker.ID = v
	}
	if v := os.Getenv("FINSYNTH_WORKER_ENDPOINT"); v != "" {
		c.Worker.Endpoint = v
	}
	if v := os.Getenv("FINSYNTH_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, &Error{Field: "FINSYNTH_SERVER_PORT", Err: err}
		}
		c.Server.Port = port
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("read config: %w", err)}
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, &Error{Err: fmt.Errorf("parse config: %w", err)}
		}
	}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() error {
	if len(c.Templates) == 0 {
		c.Templates = []TemplateConfig{{}}
	}
	if err := defaults.Set(c); err != nil {
		return &Error{Err: fmt.Errorf("apply defaults: %w", err)}
	}

	builtin := DefaultAssets()
	if c.Assets == nil {
		c.Assets = make(map[string]Asset, len(builtin))
	}
	for name, a := range builtin {
		if _, ok := c.Assets[name]; !ok {
			c.Assets[name] = a
		}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &Error{Field: verrs[0].Namespace(), Err: fmt.Errorf("failed %q check", verrs[0].Tag())}
		}
		return &Error{Err: err}
	}

	for i, t := range c.Templates {
		field := fmt.Sprintf("templates[%d]", i)
		if err := ValidateTemplate(t.TimeIncrement, t.TimeLength, t.NumSimulations); err != nil {
			return &Error{Field: field, Err: err}
		}
		if _, ok := c.Assets[t.Asset]; !ok {
			return &Error{Field: field + ".asset", Err: fmt.Errorf("unknown asset %q", t.Asset)}
		}
		if t.CalibrationWindow < 0 {
			return &Error{Field: field + ".calibration_window", Err: errors.New("must not be negative")}
		}
	}
	for name, a := range c.Assets {
		if a.Sigma < 0 {
			return &Error{Field: "assets." + name + ".sigma", Err: errors.New("must not be negative")}
		}
	}

	if c.Scoring.CutoffDays <= 0 {
		return &Error{Field: "scoring.cutoff_days", Err: errors.New("must be positive")}
	}
	if c.Scoring.HalfLifeDays <= 0 {
		return &Error{Field: "scoring.half_life_days", Err: errors.New("must be positive")}
	}
	if c.Scoring.SoftmaxBeta <= 0 {
		return &Error{Field: "scoring.softmax_beta", Err: errors.New("must be positive")}
	}
	if c.Scoring.MinRealized <= 0 || c.Scoring.MinRealized > 1 {
		return &Error{Field: "scoring.min_realized", Err: errors.New("must be in (0, 1]")}
	}

	if c.Schedule.Cadence <= 0 {
		return &Error{Field: "schedule.cadence", Err: errors.New("must be positive")}
	}
	if c.Schedule.StartDelay < 0 || c.Schedule.ScoreDelay < 0 {
		return &Error{Field: "schedule", Err: errors.New("delays must not be negative")}
	}
	if c.Transport.RequestTimeout <= 0 {
		return &Error{Field: "transport.request_timeout", Err: errors.New("must be positive")}
	}
	if c.Transport.RequestTimeout > c.Schedule.Cadence {
		return &Error{Field: "transport.request_timeout", Err: errors.New("must not exceed schedule.cadence")}
	}
	// a score job runs under a deadline of one cadence and first waits score_delay
	if c.Schedule.ScoreDelay >= c.Schedule.Cadence {
		return &Error{Field: "schedule.score_delay", Err: errors.New("must be shorter than schedule.cadence")}
	}
	cutoff := time.Duration(c.Scoring.CutoffDays * float64(24*time.Hour))
	for i, t := range c.Templates {
		due := time.Duration(math.Ceil(c.Scoring.MinRealized*float64(t.TimeLength))) * time.Second
		if cutoff < due+c.Schedule.Cadence {
			return &Error{
				Field: "scoring.cutoff_days",
				Err:   fmt.Errorf("window %s cannot score templates[%d], due %s after start plus one cadence", cutoff, i, due),
			}
		}
	}

	if c.Registry.Type == "redis" && !c.Redis.Enabled {
		return &Error{Field: "registry.type", Err: errors.New("redis registry requires redis.enabled")}
	}
	if c.Oracle.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return &Error{Field: "oracle.type", Err: errors.New("clickhouse oracle requires clickhouse.host")}
	}
	if c.Archive.Type == "clickhouse" && c.ClickHouse.Host == "" {
		return &Error{Field: "archive.type", Err: errors.New("clickhouse archive requires clickhouse.host")}
	}
	if c.Publisher.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return &Error{Field: "publisher.type", Err: errors.New("kafka publisher requires kafka.brokers")}
	}
	if c.Logging.DigestTopic != "" && len(c.Kafka.Brokers) == 0 {
		return &Error{Field: "logging.digest_topic", Err: errors.New("log digest requires kafka.brokers")}
	}
	if c.Worker.RateLimit < 0 || c.Worker.RateBurst < 0 {
		return &Error{Field: "worker.rate_limit", Err: errors.New("must not be negative")}
	}
	return nil
}

// ValidateTemplate checks the shape of a request template.
func ValidateTemplate(increment, length, num int) error {
	if increment <= 0 {
		return fmt.Errorf("time_increment must be positive, got %d", increment)
	}
	if length < increment {
		return fmt.Errorf("time_length %d must be at least time_increment %d", length, increment)
	}
	if length%increment != 0 {
		return fmt.Errorf("time_length %d must be a multiple of time_increment %d", length, increment)
	}
	if num < 1 {
		return fmt.Errorf("num_simulations must be at least 1, got %d", num)
	}
	steps := length/increment + 1
	if steps > models.MaxSteps || num > models.MaxPoints/steps {
		return fmt.Errorf("%d paths of %d steps exceeds the request size limit", num, steps)
	}
	return nil
}
