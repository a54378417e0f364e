package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EXCHANGE_CONFIG", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxOrdersPerMinute != 60 || cfg.PaperFillProb != 0.6 || len(cfg.Symbols) != 1 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.StartingCash.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("starting cash %s", cfg.StartingCash)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.yaml")
	yml := `
symbols: [ACME, GLOBEX]
starting_cash: "2500.50"
max_orders_per_minute: 5
redis_addr: localhost:6379
kafka_brokers: [k1:9092]
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("EXCHANGE_CONFIG", path)
	t.Setenv("MAX_ORDERS_PER_MINUTE", "7")
	t.Setenv("SYMBOLS", "ACME, INITECH ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.StartingCash.Equal(decimal.RequireFromString("2500.50")) {
		t.Errorf("starting cash %s", cfg.StartingCash)
	}
	if cfg.MaxOrdersPerMinute != 7 {
		t.Errorf("env must override file, got %d", cfg.MaxOrdersPerMinute)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[1] != "INITECH" {
		t.Errorf("symbols %v", cfg.Symbols)
	}
	if cfg.RedisAddr != "localhost:6379" || len(cfg.KafkaBrokers) != 1 || cfg.KafkaTopic != "exchange.audit" {
		t.Errorf("sinks %+v", cfg)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("EXCHANGE_CONFIG", "")
	t.Setenv("PAPER_FILL_PROB", "often")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PAPER_FILL_PROB") {
		t.Fatalf("got %v, want PAPER_FILL_PROB parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no symbols", func(c *Config) { c.Symbols = nil }},
		{"duplicate symbol", func(c *Config) { c.Symbols = []string{"A", "A"} }},
		{"zero rate", func(c *Config) { c.MaxOrdersPerMinute = 0 }},
		{"negative cash", func(c *Config) { c.StartingCash = decimal.NewFromInt(-1) }},
		{"probability", func(c *Config) { c.PaperPartialProb = 1.5 }},
		{"kafka without topic", func(c *Config) { c.KafkaBrokers = []string{"k:9092"}; c.KafkaTopic = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}
