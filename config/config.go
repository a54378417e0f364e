// Package config loads exchange settings from an optional YAML file and
// environment variables. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Servers
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// Books
	Symbols []string `yaml:"symbols"`

	// Accounts are created on first use with these settings.
	StartingCash       decimal.Decimal `yaml:"starting_cash"`
	MaxOrdersPerMinute int             `yaml:"max_orders_per_minute"`
	MaxLongPosition    int64           `yaml:"max_long_position"`
	MaxShortPosition   int64           `yaml:"max_short_position"`

	// Paper venue
	PaperFillProb    float64 `yaml:"paper_fill_prob"`
	PaperPartialProb float64 `yaml:"paper_partial_prob"`
	PaperSeed        int64   `yaml:"paper_seed"`

	// Audit sinks. Empty values disable the sink.
	AuditCSVPath  string   `yaml:"audit_csv_path"`
	SQLitePath    string   `yaml:"sqlite_path"`
	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisStream   string   `yaml:"redis_stream"`
	KafkaBrokers  []string `yaml:"kafka_brokers"`
	KafkaTopic    string   `yaml:"kafka_topic"`

	// TOTPSecret, when set, guards mutating gateway routes.
	TOTPSecret string `yaml:"totp_secret"`

	// AlertWebhookURL receives operational alerts as JSON POSTs.
	AlertWebhookURL string `yaml:"alert_webhook_url"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		HTTPAddr:           ":8080",
		MetricsAddr:        ":9090",
		LogLevel:           "info",
		Symbols:            []string{"ACME"},
		StartingCash:       decimal.NewFromInt(100000),
		MaxOrdersPerMinute: 60,
		MaxLongPosition:    1000,
		MaxShortPosition:   1000,
		PaperFillProb:      0.6,
		PaperPartialProb:   0.25,
		AuditCSVPath:       "data/audit_log.csv",
		RedisStream:        "audit:events",
		KafkaTopic:         "exchange.audit",
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// EXCHANGE_CONFIG if set, then environment overrides.
func Load() (*Config, error) {
	cfg := Default()
	if path := os.Getenv("EXCHANGE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) overrideWithEnv() error {
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.Symbols = getEnvList("SYMBOLS", c.Symbols)

	c.AuditCSVPath = getEnv("AUDIT_CSV_PATH", c.AuditCSVPath)
	c.SQLitePath = getEnv("SQLITE_PATH", c.SQLitePath)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisStream = getEnv("REDIS_STREAM", c.RedisStream)
	c.KafkaBrokers = getEnvList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaTopic = getEnv("KAFKA_TOPIC", c.KafkaTopic)
	c.TOTPSecret = getEnv("TOTP_SECRET", c.TOTPSecret)
	c.AlertWebhookURL = getEnv("ALERT_WEBHOOK_URL", c.AlertWebhookURL)

	var errs []error
	if v := os.Getenv("STARTING_CASH"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STARTING_CASH: %w", err))
		} else {
			c.StartingCash = d
		}
	}
	errs = append(errs,
		envInt("MAX_ORDERS_PER_MINUTE", &c.MaxOrdersPerMinute),
		envInt64("MAX_LONG_POSITION", &c.MaxLongPosition),
		envInt64("MAX_SHORT_POSITION", &c.MaxShortPosition),
		envFloat("PAPER_FILL_PROB", &c.PaperFillProb),
		envFloat("PAPER_PARTIAL_PROB", &c.PaperPartialProb),
		envInt64("PAPER_SEED", &c.PaperSeed),
	)
	return errors.Join(errs...)
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("at least one symbol is required"))
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s == "" || seen[s] {
			errs = append(errs, fmt.Errorf("symbol %q is empty or duplicated", s))
		}
		seen[s] = true
	}
	if c.StartingCash.IsNegative() {
		errs = append(errs, fmt.Errorf("starting cash must not be negative, got %s", c.StartingCash))
	}
	if c.MaxOrdersPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("max orders per minute must be positive, got %d", c.MaxOrdersPerMinute))
	}
	if c.MaxLongPosition < 0 || c.MaxShortPosition < 0 {
		errs = append(errs, fmt.Errorf("position limits must not be negative, got %d/%d", c.MaxLongPosition, c.MaxShortPosition))
	}
	if !prob(c.PaperFillProb) || !prob(c.PaperPartialProb) {
		errs = append(errs, fmt.Errorf("paper probabilities must be in [0,1], got %v/%v", c.PaperFillProb, c.PaperPartialProb))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

func prob(p float64) bool { return p >= 0 && p <= 1 }

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}
