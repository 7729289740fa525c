package cmd

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marketforge/papertrade/backtest"
	"github.com/marketforge/papertrade/config"
	"github.com/marketforge/papertrade/journal"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a strategy over historical OHLCV bars",
	Long: `Backtest replays a CSV of OHLCV bars through a strategy and reports
round trips, equity curve and summary statistics.

Supported strategies:
  - sma-cross: SMA crossover with configurable fast/slow periods

Example:
  papertrade backtest --bars data/btcusd_daily.csv --symbol BTC/USD --fast 10 --slow 30`,
	RunE: runBacktest,
}

var (
	btBarsPath string
	btDBPath   string
	btSymbol   string
	btBalance  float64
	btFeeRate  float64
	btStrategy string
	btQuantity float64
	btFast     int
	btSlow     int
	btPeriods  float64
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&btBarsPath, "bars", "b", "", "path to OHLCV bar CSV (time,open,high,low,close,volume) (required)")
	backtestCmd.Flags().StringVarP(&btDBPath, "db", "d", "", "optional SQLite journal DB for fills and equity")
	backtestCmd.Flags().StringVarP(&btSymbol, "symbol", "y", "BTC/USD", "instrument symbol for reporting and journaling")
	backtestCmd.Flags().Float64Var(&btBalance, "balance", 10_000, "starting cash balance")
	backtestCmd.Flags().Float64Var(&btFeeRate, "fee", 0.001, "proportional fee rate per fill")

	backtestCmd.Flags().StringVarP(&btStrategy, "strategy", "s", "sma-cross", "strategy name (sma-cross)")
	backtestCmd.Flags().Float64VarP(&btQuantity, "quantity", "q", 1, "per-entry quantity (clamped to available cash)")
	backtestCmd.Flags().IntVar(&btFast, "fast", 10, "sma-cross: fast SMA period")
	backtestCmd.Flags().IntVar(&btSlow, "slow", 30, "sma-cross: slow SMA period")
	backtestCmd.Flags().Float64Var(&btPeriods, "periods-per-year", 0, "bar periods per year for Sharpe annualization (0 = daily)")

	backtestCmd.MarkFlagRequired("bars")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	var j journal.Journal
	if btDBPath != "" {
		sq, err := journal.NewSQLite(btDBPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sq.Close()
		j = sq
	}

	strat, err := strategyByName(btStrategy)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	feed, err := backtest.NewCSVBarFeed(btBarsPath)
	if err != nil {
		return fmt.Errorf("open bars: %w", err)
	}

	log := newLogger(config.LogConfig{Level: zerolog.LevelWarnValue})
	engine, err := backtest.NewEngine(backtest.Config{
		Symbol:         btSymbol,
		InitialBalance: btBalance,
		FeeRate:        btFeeRate,
		PeriodsPerYear: btPeriods,
	}, j, log)
	if err != nil {
		return err
	}

	fmt.Printf("Running backtest with strategy: %s\n", strat.Name())
	fmt.Printf("  Bars: %s\n", btBarsPath)
	if btDBPath != "" {
		fmt.Printf("  Journal: %s\n", btDBPath)
	}
	fmt.Println()

	res, err := engine.Run(feed, strat)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	fmt.Printf("Backtest Complete!\n")
	fmt.Printf("  Period: %s .. %s (%d bars)\n", res.Start.Format("2006-01-02"), res.End.Format("2006-01-02"), res.Periods)
	fmt.Printf("  Final Equity: $%.2f\n", res.FinalEquity)
	fmt.Printf("  Total Return: %.2f%%\n", res.TotalReturnPct)
	fmt.Printf("  Trades: %d (wins %d / losses %d, win rate %.1f%%)\n", res.TotalTrades, res.Wins, res.Losses, res.WinRate)
	fmt.Printf("  Profit Factor: %.2f\n", res.ProfitFactor)
	fmt.Printf("  Sharpe Ratio: %.2f\n", res.SharpeRatio)
	fmt.Printf("  Max Drawdown: %.2f%%\n", res.MaxDrawdown)

	return nil
}

func strategyByName(name string) (backtest.Strategy, error) {
	switch name {
	case "sma-cross", "smacross":
		return backtest.NewSMACross(btFast, btSlow, btQuantity), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: sma-cross)", name)
	}
}
