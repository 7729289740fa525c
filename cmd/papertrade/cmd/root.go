package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marketforge/papertrade/config"
)

var rootCmd = &cobra.Command{
	Use:   "papertrade",
	Short: "A paper trading and backtesting engine for crypto markets",
	Long: `Papertrade simulates order execution and accounting against live or
historical prices without touching a real exchange.

It provides tools for:
  - Running a paper trading HTTP server with live price polling
  - Virtual accounts, market/limit/stop orders, positions and trades
  - Backtesting strategies over historical OHLCV bars
  - SQLite trade and equity journaling
  - Performance statistics: win rate, profit factor, Sharpe, drawdown`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}
