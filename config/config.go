// Package config holds the runtime configuration for the paper trading
// server and backtester. Files may be YAML or JSON; a .env file and
// PAPERTRADE_* environment variables override file values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Market  MarketConfig  `json:"market" yaml:"market"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// ServerConfig contains the HTTP listener parameters.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// EngineConfig contains execution parameters.
type EngineConfig struct {
	FeeRate              float64 `json:"fee_rate" yaml:"fee_rate"`
	FillStopsAtStopPrice bool    `json:"fill_stops_at_stop_price" yaml:"fill_stops_at_stop_price"`
	DefaultBalance       float64 `json:"default_balance" yaml:"default_balance"`
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "sqlite", "memory" or "none"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// MarketConfig contains price source parameters.
type MarketConfig struct {
	Source       string            `json:"source" yaml:"source"` // "coingecko" or "static"
	PollSchedule string            `json:"poll_schedule" yaml:"poll_schedule"`
	BaseURL      string            `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	CoinIDs      map[string]string `json:"coin_ids,omitempty" yaml:"coin_ids,omitempty"`
	StaticPrices map[string]float64 `json:"static_prices,omitempty" yaml:"static_prices,omitempty"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // zerolog level name
	Pretty bool   `json:"pretty" yaml:"pretty"` // console writer instead of JSON
}

// LoadFromFile loads configuration from a file (JSON or YAML based on
// content), then applies environment overrides.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load returns the default configuration with environment overrides
// applied, for running without a config file.
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnv overlays PAPERTRADE_* environment variables, loading a .env
// file first if one exists.
func (c *Config) applyEnv() {
	_ = godotenv.Load()

	if v := os.Getenv("PAPERTRADE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PAPERTRADE_FEE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Engine.FeeRate = f
		}
	}
	if v := os.Getenv("PAPERTRADE_DEFAULT_BALANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Engine.DefaultBalance = f
		}
	}
	if v := os.Getenv("PAPERTRADE_JOURNAL_TYPE"); v != "" {
		c.Journal.Type = v
	}
	if v := os.Getenv("PAPERTRADE_JOURNAL_DB"); v != "" {
		c.Journal.DBPath = v
	}
	if v := os.Getenv("PAPERTRADE_MARKET_SOURCE"); v != "" {
		c.Market.Source = v
	}
	if v := os.Getenv("PAPERTRADE_POLL_SCHEDULE"); v != "" {
		c.Market.PollSchedule = v
	}
	if v := os.Getenv("PAPERTRADE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON
// otherwise).
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Engine.FeeRate < 0 || c.Engine.FeeRate >= 1 {
		return fmt.Errorf("engine.fee_rate must be in [0, 1)")
	}
	if c.Engine.DefaultBalance <= 0 {
		return fmt.Errorf("engine.default_balance must be positive")
	}
	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal.db_path required for sqlite type")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("journal.type must be 'sqlite', 'memory' or 'none'")
	}
	switch c.Market.Source {
	case "coingecko":
	case "static":
		if len(c.Market.StaticPrices) == 0 {
			return fmt.Errorf("market.static_prices required for static source")
		}
	default:
		return fmt.Errorf("market.source must be 'coingecko' or 'static'")
	}
	if c.Market.PollSchedule == "" {
		return fmt.Errorf("market.poll_schedule is required")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Engine: EngineConfig{
			FeeRate:        0.001,
			DefaultBalance: 100000,
		},
		Journal: JournalConfig{
			Type:   "sqlite",
			DBPath: "./papertrade.sqlite",
		},
		Market: MarketConfig{
			Source:       "coingecko",
			PollSchedule: "@every 30s",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
