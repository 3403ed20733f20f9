package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ScheduleParser accepts 5 or 6 field cron expressions and @every descriptors.
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type SourceConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	BaseURL string `yaml:"base_url"`
	// HistoryURL is only used by sources that serve history from a separate host.
	HistoryURL string        `yaml:"history_url"`
	Timeout    time.Duration `yaml:"timeout" default:"8s"`
	RateLimit  struct {
		Burst     float64 `yaml:"burst" default:"20"`
		PerSecond float64 `yaml:"per_second" default:"10"`
	} `yaml:"rate_limit"`
}

type FinnhubConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIKey         string        `yaml:"api_key"`
	WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
	Symbols        []string      `yaml:"symbols"`
	MaxAge         time.Duration `yaml:"max_age" default:"5m"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
	PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Cache struct {
		Backend         string        `yaml:"backend" default:"memory"`
		MaxSize         int           `yaml:"max_size" default:"10000"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
		Prefix          string        `yaml:"prefix" default:"coinflow"`
		TTL             struct {
			Spot        time.Duration `yaml:"spot" default:"60s"`
			Fiat        time.Duration `yaml:"fiat" default:"60s"`
			Official    time.Duration `yaml:"official" default:"60m"`
			Equity      time.Duration `yaml:"equity" default:"5m"`
			Marketplace time.Duration `yaml:"marketplace" default:"5m"`
			History     time.Duration `yaml:"history" default:"60m"`
		} `yaml:"ttl"`
	} `yaml:"cache"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
	} `yaml:"redis"`
	Symbols struct {
		Crypto []string `yaml:"crypto" default:"[\"BTC\",\"ETH\",\"USDT\",\"BNB\",\"SOL\",\"XRP\",\"ADA\",\"DOGE\",\"TON\",\"TRX\",\"DOT\",\"LTC\",\"AVAX\",\"LINK\"]"`
		Fiat   []string `yaml:"fiat" default:"[\"USD\",\"EUR\",\"RUB\",\"GBP\",\"JPY\",\"CNY\",\"CHF\",\"KZT\",\"TRY\",\"AED\"]"`
	} `yaml:"symbols"`
	Sources struct {
		Binance      SourceConfig  `yaml:"binance"`
		Bybit        SourceConfig  `yaml:"bybit"`
		KuCoin       SourceConfig  `yaml:"kucoin"`
		GateIO       SourceConfig  `yaml:"gateio"`
		HTX          SourceConfig  `yaml:"htx"`
		ExchangeRate SourceConfig  `yaml:"exchangerate"`
		CBR          SourceConfig  `yaml:"cbr"`
		Yahoo        SourceConfig  `yaml:"yahoo"`
		Steam        SourceConfig  `yaml:"steam"`
		Finnhub      FinnhubConfig `yaml:"finnhub"`
	} `yaml:"sources"`
	Aggregator struct {
		Primary            []string      `yaml:"primary" default:"[\"binance\",\"exchangerate\",\"cbr\",\"yahoo\",\"steam\"]"`
		Timeout            time.Duration `yaml:"timeout" default:"11s"`
		Retries            int           `yaml:"retries"`
		OutlierStdDevs     float64       `yaml:"outlier_std_devs" default:"2"`
		SpreadThresholdPct float64       `yaml:"spread_threshold_pct" default:"1.5"`
		Bridge             string        `yaml:"bridge" default:"USD"`
		ReferenceQuote     string        `yaml:"reference_quote" default:"USD"`
	} `yaml:"aggregator"`
	Breaker struct {
		Enabled          bool          `yaml:"enabled" default:"true"`
		FailureThreshold int           `yaml:"failure_threshold" default:"3"`
		Cooldown         time.Duration `yaml:"cooldown" default:"2m"`
	} `yaml:"breaker"`
	Forecast struct {
		DefaultModel string `yaml:"default_model" default:"arima"`
		ARIMA        struct {
			P int `yaml:"p" default:"5"`
			D int `yaml:"d" default:"1"`
		} `yaml:"arima"`
		MinHistoryPoints int           `yaml:"min_history_points" default:"10"`
		RecordAllPoints  bool          `yaml:"record_all_points"`
		HistorySources   []string      `yaml:"history_sources" default:"[\"yahoo\",\"cbr\",\"clickhouse\"]"`
		Timeout          time.Duration `yaml:"timeout" default:"30s"`
	} `yaml:"forecast"`
	Accuracy struct {
		Schedule    string        `yaml:"schedule" default:"@every 6h"`
		WindowDays  int           `yaml:"window_days" default:"30"`
		BatchSize   int           `yaml:"batch_size" default:"500"`
		Concurrency int           `yaml:"concurrency" default:"4"`
		MinSamples  int           `yaml:"min_samples" default:"3"`
		Timeout     time.Duration `yaml:"timeout" default:"5m"`
	} `yaml:"accuracy"`
	Alerts struct {
		Schedule    string        `yaml:"schedule" default:"@every 5m"`
		Concurrency int           `yaml:"concurrency" default:"8"`
		Timeout     time.Duration `yaml:"timeout" default:"2m"`
	} `yaml:"alerts"`
	Scheduler struct {
		RunOnStart bool `yaml:"run_on_start"`
	} `yaml:"scheduler"`
	SQLite struct {
		Path        string        `yaml:"path" default:"data/coinflow.db"`
		BusyTimeout time.Duration `yaml:"busy_timeout" default:"5s"`
	} `yaml:"sqlite"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"coinflow"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		UseHTTP     bool          `yaml:"use_http"`
		AsyncInsert bool          `yaml:"async_insert" default:"true"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
		Table       string        `yaml:"table" default:"aggregated_quotes"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
		AlertTopic   string   `yaml:"alert_topic" default:"coinflow.alerts.triggered"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"coinflow-alert-delivery"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"5"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"500ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"30s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"coinflow.alerts.dlq"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Name       string        `yaml:"name" default:"alerts"`
		Workers    int           `yaml:"workers" default:"2"`
		MaxRetries int           `yaml:"max_retries" default:"5"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
	} `yaml:"queue"`
	Telegram struct {
		BotToken   string        `yaml:"bot_token"`
		BaseURL    string        `yaml:"base_url" default:"https://api.telegram.org"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		MaxRetries int           `yaml:"max_retries" default:"3"`
	} `yaml:"telegram"`
	Notifications struct {
		// Backend is where triggered alerts are handed off: log, kafka or redis.
		Backend string `yaml:"backend" default:"log"`
		// Deliver runs the Telegram delivery worker in this process.
		Deliver bool `yaml:"deliver" default:"true"`
	} `yaml:"notifications"`
}

// Default returns a config populated only from default tags.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"COINFLOW_ENV":            &c.Environment,
		"COINFLOW_LOG_LEVEL":      &c.Log.Level,
		"COINFLOW_CACHE_BACKEND":  &c.Cache.Backend,
		"COINFLOW_NOTIFY_BACKEND": &c.Notifications.Backend,
		"COINFLOW_SQLITE_PATH":    &c.SQLite.Path,
		"TELEGRAM_BOT_TOKEN":      &c.Telegram.BotToken,
		"FINNHUB_API_KEY":         &c.Sources.Finnhub.APIKey,
		"REDIS_HOST":              &c.Redis.Host,
		"REDIS_PASSWORD":          &c.Redis.Password,
		"CLICKHOUSE_HOST":         &c.ClickHouse.Host,
		"CLICKHOUSE_PASSWORD":     &c.ClickHouse.Password,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("COINFLOW_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("COINFLOW_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FINNHUB_SYMBOLS"); v != "" {
		c.Sources.Finnhub.Symbols = strings.Split(v, ",")
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Cache.Backend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	ttls := map[string]time.Duration{
		"spot":        c.Cache.TTL.Spot,
		"fiat":        c.Cache.TTL.Fiat,
		"official":    c.Cache.TTL.Official,
		"equity":      c.Cache.TTL.Equity,
		"marketplace": c.Cache.TTL.Marketplace,
		"history":     c.Cache.TTL.History,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("cache.ttl.%s must be positive", name)
		}
	}

	if c.Aggregator.Timeout <= 0 {
		return fmt.Errorf("aggregator.timeout must be positive")
	}
	if c.Aggregator.Retries < 0 {
		return fmt.Errorf("aggregator.retries cannot be negative")
	}
	if c.Aggregator.OutlierStdDevs <= 0 || c.Aggregator.SpreadThresholdPct <= 0 {
		return fmt.Errorf("aggregator outlier thresholds must be positive")
	}
	if c.Aggregator.ReferenceQuote == "" {
		return fmt.Errorf("aggregator.reference_quote is required")
	}
	if c.Breaker.Enabled && (c.Breaker.FailureThreshold < 1 || c.Breaker.Cooldown <= 0) {
		return fmt.Errorf("breaker needs failure_threshold >= 1 and a positive cooldown")
	}

	if m := c.Forecast.DefaultModel; m != "arima" && m != "linreg" {
		return fmt.Errorf("forecast.default_model must be 'arima' or 'linreg', got '%s'", m)
	}
	if c.Forecast.ARIMA.P < 1 || c.Forecast.ARIMA.D < 0 || c.Forecast.ARIMA.D > 2 {
		return fmt.Errorf("forecast.arima needs p >= 1 and 0 <= d <= 2")
	}
	for _, s := range c.Forecast.HistorySources {
		switch s {
		case "yahoo", "cbr", "clickhouse":
		default:
			return fmt.Errorf("unknown forecast.history_sources entry '%s'", s)
		}
	}

	for name, spec := range map[string]string{"alerts.schedule": c.Alerts.Schedule, "accuracy.schedule": c.Accuracy.Schedule} {
		if _, err := ScheduleParser.Parse(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Alerts.Concurrency < 1 || c.Accuracy.Concurrency < 1 {
		return fmt.Errorf("alerts.concurrency and accuracy.concurrency must be >= 1")
	}

	if c.SQLite.Path == "" {
		return fmt.Errorf("sqlite.path is required")
	}

	switch c.Notifications.Backend {
	case "log":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.AlertTopic == "" {
			return fmt.Errorf("kafka notifications need kafka.brokers and kafka.alert_topic")
		}
	case "redis":
		if c.Queue.Name == "" {
			return fmt.Errorf("redis notifications need queue.name")
		}
	default:
		return fmt.Errorf("notifications.backend must be 'log', 'kafka' or 'redis', got '%s'", c.Notifications.Backend)
	}
	if c.Notifications.Deliver && c.Notifications.Backend != "log" && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required to deliver notifications")
	}

	if c.Sources.Finnhub.Enabled && c.Sources.Finnhub.APIKey == "" {
		return fmt.Errorf("sources.finnhub.api_key is required when finnhub is enabled")
	}
	return nil
}
