package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var klineIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// Load reads the YAML file at path. A .env file in the working directory is
// loaded first when present; environment variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	setDefault := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	setDefault(&cfg.Server.ReadTimeoutStr, "10s")
	setDefault(&cfg.Server.WriteTimeoutStr, "30s")
	setDefault(&cfg.Server.ShutdownTimeoutStr, "30s")

	setDefault(&cfg.PostgreSQL.SSLMode, "disable")
	setDefault(&cfg.PostgreSQL.ConnMaxLifetimeStr, "30m")

	setDefault(&cfg.Redis.TTLStr, "1m")

	setDefault(&cfg.Binance.BaseURL, "https://api.binance.com")
	setDefault(&cfg.Binance.TimeoutStr, "10s")

	if len(cfg.TestGenerator.Pairs) == 0 {
		cfg.TestGenerator.Pairs = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "ETHBTC", "BNBBUSD"}
	}

	setDefault(&cfg.Mode, "live")

	setDefault(&cfg.Scheduler.RefreshIntervalStr, "10s")
	setDefault(&cfg.Scheduler.CandleInterval, "1m")
	setDefault(&cfg.Scheduler.DefaultSymbol, "BTCUSDT")
	if cfg.Scheduler.CandleLimit == 0 {
		cfg.Scheduler.CandleLimit = 100
	}

	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = 2
	}
	if cfg.Workers.QueueSize == 0 {
		cfg.Workers.QueueSize = 64
	}
	setDefault(&cfg.Workers.PublishTimeoutStr, "5s")

	setDefault(&cfg.Logging.Level, "info")
	setDefault(&cfg.Logging.Format, "json")
}

func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeoutStr, &cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeoutStr, &cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutStr, &cfg.Server.ShutdownTimeout},
		{"postgresql.conn_max_lifetime", cfg.PostgreSQL.ConnMaxLifetimeStr, &cfg.PostgreSQL.ConnMaxLifetime},
		{"redis.ttl", cfg.Redis.TTLStr, &cfg.Redis.TTL},
		{"binance.timeout", cfg.Binance.TimeoutStr, &cfg.Binance.Timeout},
		{"scheduler.refresh_interval", cfg.Scheduler.RefreshIntervalStr, &cfg.Scheduler.RefreshInterval},
		{"workers.publish_timeout", cfg.Workers.PublishTimeoutStr, &cfg.Workers.PublishTimeout},
	}

	for _, f := range fields {
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Scheduler.RefreshInterval <= 0 {
		return fmt.Errorf("scheduler.refresh_interval must be positive")
	}
	if !klineIntervals[c.Scheduler.CandleInterval] {
		return fmt.Errorf("unsupported scheduler.candle_interval %q", c.Scheduler.CandleInterval)
	}
	if c.Scheduler.CandleLimit < 1 || c.Scheduler.CandleLimit > 1000 {
		return fmt.Errorf("scheduler.candle_limit must be within 1..1000, got %d", c.Scheduler.CandleLimit)
	}
	if c.Scheduler.Threshold > 100 {
		return fmt.Errorf("scheduler.threshold must not exceed 100, got %v", c.Scheduler.Threshold)
	}
	if c.Mode != "live" && c.Mode != "test" {
		return fmt.Errorf("mode must be live or test, got %q", c.Mode)
	}
	if c.Webhook.Enabled && c.Webhook.URL == "" {
		return fmt.Errorf("webhook.url is required when webhook is enabled")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	// PostgreSQL
	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.PostgreSQL.Host = v
	}
	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.PostgreSQL.Port = port
		}
	}
	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.PostgreSQL.User = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.PostgreSQL.Password = v
	}
	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.PostgreSQL.Database = v
	}

	// Redis
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Market data
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.Binance.BaseURL = v
	}
	if v := os.Getenv("TAILWATCH_MODE"); v != "" {
		cfg.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("TAIL_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scheduler.Threshold = t
		}
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		cfg.Webhook.URL = v
		cfg.Webhook.Enabled = true
	}

	// Server
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host, c.PostgreSQL.Port, c.PostgreSQL.User,
		c.PostgreSQL.Password, c.PostgreSQL.Database, c.PostgreSQL.SSLMode,
	)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
