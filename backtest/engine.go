// Package backtest replays historical bars through a strategy and
// accounts for the resulting executions: entries and exits at bar close,
// per-bar equity and drawdown sampling, and summary statistics.
package backtest

import (
	"fmt"
	"time"

	"github.com/marketforge/papertrade/journal"
	"github.com/marketforge/papertrade/perf"
	"github.com/marketforge/papertrade/pkg/id"
	"github.com/rs/zerolog"
)

// entryFraction caps a single buy at this share of available cash, so a
// strategy asking for more than the account affords still gets a fill.
const entryFraction = 0.95

// Config controls one backtest run.
type Config struct {
	Symbol         string
	InitialBalance float64
	FeeRate        float64

	// PeriodsPerYear annualizes the Sharpe ratio; zero means
	// perf.PeriodsPerYear (daily bars).
	PeriodsPerYear float64
}

// lot is one open entry awaiting its exit. Exits pop the oldest lot
// first.
type lot struct {
	entryTime  time.Time
	entryPrice float64
	quantity   float64
}

// RoundTrip is one completed entry/exit pair. PnL is price difference
// times quantity; fees are charged to cash but excluded from PnL,
// mirroring the live ledger's fee-exclusive cost basis.
type RoundTrip struct {
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	ReturnPct  float64   `json:"return_pct"`
}

// Result is the outcome of a run.
type Result struct {
	RunID          string      `json:"run_id"`
	Symbol         string      `json:"symbol"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	Periods        int         `json:"periods"`
	FinalEquity    float64     `json:"final_equity"`
	TotalReturnPct float64     `json:"total_return_pct"`
	TotalTrades    int         `json:"total_trades"`
	Wins           int         `json:"wins"`
	Losses         int         `json:"losses"`
	WinRate        float64     `json:"win_rate"`
	ProfitFactor   float64     `json:"profit_factor"`
	SharpeRatio    float64     `json:"sharpe_ratio"`
	MaxDrawdown    float64     `json:"max_drawdown"`
	AvgTradeReturn float64     `json:"avg_trade_return"`
	GrossProfit    float64     `json:"gross_profit"`
	GrossLoss      float64     `json:"gross_loss"`
	Trades         []RoundTrip `json:"trades"`
	EquityCurve    []float64   `json:"equity_curve"`
	DrawdownCurve  []float64   `json:"drawdown_curve"`
}

// Engine runs strategies over bar feeds.
type Engine struct {
	cfg     Config
	journal journal.Journal // optional audit copy of fills and equity
	log     zerolog.Logger

	runID  string
	cash   float64
	lots   []lot
	trades []RoundTrip

	equity   []float64
	drawdown []float64
	peak     float64
}

// NewEngine builds a backtest engine. j may be nil.
func NewEngine(cfg Config, j journal.Journal, log zerolog.Logger) (*Engine, error) {
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("backtest: initial balance must be positive")
	}
	if cfg.PeriodsPerYear == 0 {
		cfg.PeriodsPerYear = perf.PeriodsPerYear
	}
	return &Engine{
		cfg:     cfg,
		journal: j,
		log:     log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run replays the feed through the strategy and returns the result.
// Open lots remaining at the last bar are force-closed at its close.
func (e *Engine) Run(feed BarFeed, strat Strategy) (Result, error) {
	if feed == nil {
		return Result{}, fmt.Errorf("backtest: feed is required")
	}
	if strat == nil {
		return Result{}, fmt.Errorf("backtest: strategy is required")
	}
	defer feed.Close()

	e.runID = id.New()
	e.cash = e.cfg.InitialBalance
	e.lots = nil
	e.trades = nil
	e.equity = []float64{e.cfg.InitialBalance}
	e.drawdown = []float64{0}
	e.peak = e.cfg.InitialBalance

	strat.Reset()

	var (
		start, end time.Time
		last       Bar
		seen       bool
		idx        int
	)

	for {
		b, ok, err := feed.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}
		if !seen {
			start = b.Time
			seen = true
		}
		end = b.Time
		last = b

		ctx := &Context{
			Time:         b.Time,
			Index:        idx,
			Cash:         e.cash,
			OpenQuantity: e.openQuantity(),
		}
		strat.OnBar(ctx, b)

		for _, in := range ctx.intents {
			switch in.kind {
			case intentBuy:
				e.enter(b.Time, b.Close, in.quantity)
			case intentSell:
				e.exitOldest(b.Time, b.Close)
			case intentCloseAll:
				for len(e.lots) > 0 {
					e.exitOldest(b.Time, b.Close)
				}
			}
		}

		e.sampleEquity(b.Time, b.Close)
		idx++
	}

	if seen {
		for len(e.lots) > 0 {
			e.exitOldest(last.Time, last.Close)
		}
	}

	return e.result(start, end, idx), nil
}

func (e *Engine) openQuantity() float64 {
	q := 0.0
	for _, l := range e.lots {
		q += l.quantity
	}
	return q
}

// enter opens a new lot at price. The requested quantity is clamped to
// entryFraction of cash/price; a buy the account cannot afford is
// skipped, not an error.
func (e *Engine) enter(t time.Time, price, quantity float64) {
	if price <= 0 || quantity <= 0 {
		return
	}
	if maxQty := e.cash / price * entryFraction; quantity > maxQty {
		quantity = maxQty
	}
	if quantity <= 0 {
		return
	}

	notional := price * quantity
	fee := notional * e.cfg.FeeRate
	if notional+fee > e.cash {
		return
	}

	e.cash -= notional + fee
	e.lots = append(e.lots, lot{entryTime: t, entryPrice: price, quantity: quantity})
	e.recordFill(t, "buy", quantity, price, fee)
}

// exitOldest closes the oldest open lot at price.
func (e *Engine) exitOldest(t time.Time, price float64) {
	if len(e.lots) == 0 {
		return
	}
	l := e.lots[0]
	e.lots = e.lots[1:]

	notional := price * l.quantity
	fee := notional * e.cfg.FeeRate
	e.cash += notional - fee

	rt := RoundTrip{
		EntryTime:  l.entryTime,
		ExitTime:   t,
		EntryPrice: l.entryPrice,
		ExitPrice:  price,
		Quantity:   l.quantity,
		PnL:        (price - l.entryPrice) * l.quantity,
	}
	if l.entryPrice > 0 {
		rt.ReturnPct = (price - l.entryPrice) / l.entryPrice * 100
	}
	e.trades = append(e.trades, rt)
	e.recordFill(t, "sell", l.quantity, price, fee)
}

// sampleEquity appends cash plus mark-to-market lot value to the equity
// curve and updates the running-peak drawdown curve.
func (e *Engine) sampleEquity(t time.Time, close float64) {
	eq := e.cash
	for _, l := range e.lots {
		eq += l.quantity * close
	}
	e.equity = append(e.equity, eq)

	dd := 0.0
	if eq > e.peak {
		e.peak = eq
	} else if e.peak > 0 {
		dd = (e.peak - eq) / e.peak * 100
	}
	e.drawdown = append(e.drawdown, dd)

	if e.journal != nil {
		err := e.journal.RecordEquity(journal.EquitySnapshot{
			AccountID: e.runID,
			Time:      t,
			Cash:      e.cash,
			Equity:    eq,
			Drawdown:  dd,
		})
		if err != nil {
			e.log.Warn().Err(err).Msg("journal equity write failed")
		}
	}
}

func (e *Engine) recordFill(t time.Time, side string, quantity, price, fee float64) {
	if e.journal == nil {
		return
	}
	total := quantity*price + fee
	if side == "sell" {
		total = quantity*price - fee
	}
	err := e.journal.RecordTrade(journal.TradeRecord{
		TradeID:    id.New(),
		AccountID:  e.runID,
		Symbol:     e.cfg.Symbol,
		Side:       side,
		Quantity:   quantity,
		Price:      price,
		Fee:        fee,
		Total:      total,
		ExecutedAt: t,
	})
	if err != nil {
		e.log.Warn().Err(err).Msg("journal trade write failed")
	}
}

func (e *Engine) result(start, end time.Time, periods int) Result {
	finalEquity := e.cash
	totalReturn := 0.0
	if e.cfg.InitialBalance > 0 {
		totalReturn = (finalEquity - e.cfg.InitialBalance) / e.cfg.InitialBalance * 100
	}

	wins, losses := 0, 0
	pnls := make([]float64, 0, len(e.trades))
	grossProfit, grossLoss := 0.0, 0.0
	sumReturn := 0.0
	for _, rt := range e.trades {
		pnls = append(pnls, rt.PnL)
		sumReturn += rt.ReturnPct
		if rt.PnL > 0 {
			wins++
			grossProfit += rt.PnL
		} else if rt.PnL < 0 {
			losses++
			grossLoss += -rt.PnL
		}
	}

	winRate := 0.0
	avgReturn := 0.0
	if len(e.trades) > 0 {
		winRate = float64(wins) / float64(len(e.trades)) * 100
		avgReturn = sumReturn / float64(len(e.trades))
	}

	return Result{
		RunID:          e.runID,
		Symbol:         e.cfg.Symbol,
		Start:          start,
		End:            end,
		Periods:        periods,
		FinalEquity:    finalEquity,
		TotalReturnPct: totalReturn,
		TotalTrades:    len(e.trades),
		Wins:           wins,
		Losses:         losses,
		WinRate:        winRate,
		ProfitFactor:   perf.ProfitFactor(pnls),
		SharpeRatio:    perf.SharpeRatio(e.equity, e.cfg.PeriodsPerYear),
		MaxDrawdown:    perf.MaxDrawdown(e.drawdown),
		AvgTradeReturn: avgReturn,
		GrossProfit:    grossProfit,
		GrossLoss:      grossLoss,
		Trades:         e.trades,
		EquityCurve:    e.equity,
		DrawdownCurve:  e.drawdown,
	}
}
