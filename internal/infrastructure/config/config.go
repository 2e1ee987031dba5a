package config

import "time"

type Config struct {
	Server struct {
		Port               int           `yaml:"port"`
		ReadTimeoutStr     string        `yaml:"read_timeout"`
		WriteTimeoutStr    string        `yaml:"write_timeout"`
		ShutdownTimeoutStr string        `yaml:"shutdown_timeout"`
		ReadTimeout        time.Duration `yaml:"-"`
		WriteTimeout       time.Duration `yaml:"-"`
		ShutdownTimeout    time.Duration `yaml:"-"`
	} `yaml:"server"`

	PostgreSQL struct {
		Enabled            bool          `yaml:"enabled"`
		Host               string        `yaml:"host"`
		Port               int           `yaml:"port"`
		User               string        `yaml:"user"`
		Password           string        `yaml:"password"`
		Database           string        `yaml:"database"`
		SSLMode            string        `yaml:"sslmode"`
		MaxOpenConns       int           `yaml:"max_open_conns"`
		ConnMaxLifetimeStr string        `yaml:"conn_max_lifetime"`
		ConnMaxLifetime    time.Duration `yaml:"-"`
	} `yaml:"postgresql"`

	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Host     string        `yaml:"host"`
		Port     int           `yaml:"port"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		TTLStr   string        `yaml:"ttl"`
		TTL      time.Duration `yaml:"-"`
	} `yaml:"redis"`

	Binance struct {
		BaseURL    string        `yaml:"base_url"`
		TimeoutStr string        `yaml:"timeout"`
		Timeout    time.Duration `yaml:"-"`
	} `yaml:"binance"`

	TestGenerator struct {
		Pairs []string `yaml:"pairs"`
		Seed  int64    `yaml:"seed"`
	} `yaml:"test_generator"`

	Mode string `yaml:"mode"`

	Scheduler struct {
		RefreshIntervalStr string        `yaml:"refresh_interval"`
		CandleInterval     string        `yaml:"candle_interval"`
		CandleLimit        int           `yaml:"candle_limit"`
		Threshold          float64       `yaml:"threshold"`
		DefaultSymbol      string        `yaml:"default_symbol"`
		SerializeCycles    bool          `yaml:"serialize_cycles"`
		RefreshInterval    time.Duration `yaml:"-"`
	} `yaml:"scheduler"`

	Workers struct {
		Count             int           `yaml:"count"`
		QueueSize         int           `yaml:"queue_size"`
		PublishTimeoutStr string        `yaml:"publish_timeout"`
		PublishTimeout    time.Duration `yaml:"-"`
	} `yaml:"workers"`

	Webhook struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"webhook"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}
