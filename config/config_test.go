package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  addr: ":9090"
engine:
  fee_rate: 0.002
  default_balance: 25000
journal:
  type: memory
market:
  source: static
  poll_schedule: "@every 5s"
  static_prices:
    BTC/USD: 50000
log:
  level: debug
  pretty: true
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 0.002, cfg.Engine.FeeRate)
	assert.Equal(t, 25000.0, cfg.Engine.DefaultBalance)
	assert.Equal(t, "memory", cfg.Journal.Type)
	assert.Equal(t, "static", cfg.Market.Source)
	assert.Equal(t, 50000.0, cfg.Market.StaticPrices["BTC/USD"])
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "server": {"addr": ":7000"},
  "engine": {"fee_rate": 0.001, "default_balance": 100000},
  "journal": {"type": "sqlite", "db_path": "/tmp/j.db"},
  "market": {"source": "coingecko", "poll_schedule": "@every 30s"},
  "log": {"level": "info"}
}`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "/tmp/j.db", cfg.Journal.DBPath)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  addr: ":9999"
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.001, cfg.Engine.FeeRate)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, "coingecko", cfg.Market.Source)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadGarbageFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "::: not valid {{{")
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PAPERTRADE_ADDR", ":4444")
	t.Setenv("PAPERTRADE_FEE_RATE", "0.005")
	t.Setenv("PAPERTRADE_JOURNAL_TYPE", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":4444", cfg.Server.Addr)
	assert.Equal(t, 0.005, cfg.Engine.FeeRate)
	assert.Equal(t, "memory", cfg.Journal.Type)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }},
		{"negative fee", func(c *Config) { c.Engine.FeeRate = -0.1 }},
		{"fee of one", func(c *Config) { c.Engine.FeeRate = 1 }},
		{"zero balance", func(c *Config) { c.Engine.DefaultBalance = 0 }},
		{"bad journal type", func(c *Config) { c.Journal.Type = "postgres" }},
		{"sqlite without path", func(c *Config) { c.Journal.DBPath = "" }},
		{"bad market source", func(c *Config) { c.Market.Source = "binance" }},
		{"static without prices", func(c *Config) { c.Market.Source = "static" }},
		{"empty schedule", func(c *Config) { c.Market.PollSchedule = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"out.yaml", "out.json"} {
		path := filepath.Join(dir, name)
		cfg := Default()
		cfg.Server.Addr = ":1234"
		require.NoError(t, cfg.SaveToFile(path))

		got, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, ":1234", got.Server.Addr)
	}
}
