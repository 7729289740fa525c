// Package perf derives aggregate performance statistics from trade
// history and equity curves: win rate, profit factor, Sharpe ratio and
// drawdown. Everything is computed on demand; nothing here mutates
// engine state.
package perf

import (
	"math"

	"github.com/marketforge/papertrade/sim"
	"gonum.org/v1/gonum/stat"
)

// PeriodsPerYear is the default Sharpe annualization factor (daily bars,
// 252 trading days). Pass a different value to SharpeRatio for other bar
// timeframes.
const PeriodsPerYear = 252

// Stats summarizes one account's performance.
type Stats struct {
	TotalValue      float64 `json:"total_value"`
	CashBalance     float64 `json:"cash_balance"`
	PositionsValue  float64 `json:"positions_value"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPercent float64 `json:"total_pnl_percent"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
}

// Summarize computes account-level stats from the open positions (marked
// to caller-supplied prices) and the full trade history.
func Summarize(acct sim.Account, positions []sim.PositionView, trades []sim.Trade) Stats {
	positionsValue := 0.0
	for _, p := range positions {
		positionsValue += p.Quantity * p.CurrentPrice
	}
	totalValue := acct.CashBalance + positionsValue

	totalPnL := totalValue - acct.InitialBalance
	totalPnLPct := 0.0
	if acct.InitialBalance > 0 {
		totalPnLPct = totalPnL / acct.InitialBalance * 100
	}

	wins, losses := Classify(trades)

	return Stats{
		TotalValue:      totalValue,
		CashBalance:     acct.CashBalance,
		PositionsValue:  positionsValue,
		TotalPnL:        totalPnL,
		TotalPnLPercent: totalPnLPct,
		TotalTrades:     len(trades),
		WinningTrades:   wins,
		LosingTrades:    losses,
		WinRate:         WinRate(wins, losses),
	}
}

// Classify splits sell trades into winners and losers. For each sell it
// averages the prices of all earlier buys in the same symbol and counts
// a win when the sell price exceeds that average. Sells with no prior
// buy are excluded. This is an average-price approximation, not FIFO or
// LIFO lot matching.
func Classify(trades []sim.Trade) (wins, losses int) {
	for _, sell := range trades {
		if sell.Side != sim.Sell {
			continue
		}
		sum, n := 0.0, 0
		for _, buy := range trades {
			if buy.Side == sim.Buy && buy.Symbol == sell.Symbol && buy.ExecutedAt.Before(sell.ExecutedAt) {
				sum += buy.Price
				n++
			}
		}
		if n == 0 {
			continue
		}
		if sell.Price > sum/float64(n) {
			wins++
		} else {
			losses++
		}
	}
	return wins, losses
}

// WinRate is winners over classified trades, as a percentage.
func WinRate(wins, losses int) float64 {
	if wins+losses == 0 {
		return 0
	}
	return float64(wins) / float64(wins+losses) * 100
}

// ProfitFactor is gross profit over gross loss for a set of per-trade
// P&L values. Zero when there are no losses.
func ProfitFactor(pnls []float64) float64 {
	grossProfit, grossLoss := 0.0, 0.0
	for _, pnl := range pnls {
		if pnl > 0 {
			grossProfit += pnl
		} else {
			grossLoss += -pnl
		}
	}
	if grossLoss == 0 {
		return 0
	}
	return grossProfit / grossLoss
}

// SharpeRatio is the mean period-over-period percentage return of the
// equity curve over its (population) standard deviation, annualized by
// sqrt(periodsPerYear). Zero with fewer than two samples or zero
// variance.
func SharpeRatio(equity []float64, periodsPerYear float64) float64 {
	if len(equity) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	if len(returns) == 0 {
		return 0
	}

	mean := stat.Mean(returns, nil)
	std := stat.PopStdDev(returns, nil)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// DrawdownCurve maps an equity curve to percentage declines from the
// running peak.
func DrawdownCurve(equity []float64) []float64 {
	out := make([]float64, len(equity))
	peak := math.Inf(-1)
	for i, eq := range equity {
		if eq > peak {
			peak = eq
		}
		if peak > 0 && eq < peak {
			out[i] = (peak - eq) / peak * 100
		}
	}
	return out
}

// MaxDrawdown is the largest value of a drawdown curve.
func MaxDrawdown(drawdown []float64) float64 {
	max := 0.0
	for _, dd := range drawdown {
		if dd > max {
			max = dd
		}
	}
	return max
}
