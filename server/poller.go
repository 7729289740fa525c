package server

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/marketforge/papertrade/journal"
	"github.com/marketforge/papertrade/market"
	"github.com/marketforge/papertrade/sim"
)

// Poller periodically fetches prices, sweeps pending orders, and samples
// each account's equity into the journal.
type Poller struct {
	cron    *cron.Cron
	engine  *sim.Engine
	source  market.Source
	journal journal.Journal // may be nil
	log     zerolog.Logger
}

// NewPoller creates a poller. Schedule is a cron expression or a
// descriptor like "@every 30s". j may be nil to skip equity sampling.
func NewPoller(engine *sim.Engine, source market.Source, j journal.Journal, schedule string, log zerolog.Logger) (*Poller, error) {
	p := &Poller{
		cron:    cron.New(),
		engine:  engine,
		source:  source,
		journal: j,
		log:     log.With().Str("component", "poller").Logger(),
	}
	if _, err := p.cron.AddFunc(schedule, p.Poll); err != nil {
		return nil, err
	}
	return p, nil
}

// Start begins polling on the configured schedule.
func (p *Poller) Start() {
	p.cron.Start()
	p.log.Info().Msg("Price poller started")
}

// Stop stops polling and waits for an in-flight poll to finish.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
	p.log.Info().Msg("Price poller stopped")
}

// Poll runs one fetch-sweep-sample cycle.
func (p *Poller) Poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	symbols := p.pollSymbols()
	if len(symbols) == 0 {
		// Nothing to price: all-cash accounts still get a sample.
		p.sampleEquity(nil)
		return
	}

	prices, err := p.source.Prices(ctx, symbols)
	if err != nil {
		p.log.Error().Err(err).Msg("price poll failed")
		return
	}
	if len(prices) == 0 {
		p.log.Debug().Msg("price poll returned no prices")
		return
	}

	filled := p.engine.Sweep(prices)
	if len(filled) > 0 {
		p.log.Info().Int("filled", len(filled)).Msg("sweep filled pending orders")
	}

	p.sampleEquity(prices)
}

// pollSymbols is the union of symbols with pending orders and symbols
// with open positions, so one fetch serves both the sweep and the
// equity samples.
func (p *Poller) pollSymbols() []string {
	seen := make(map[string]struct{})
	for _, sym := range p.engine.PendingSymbols() {
		seen[sym] = struct{}{}
	}
	for _, acct := range p.engine.ListAccounts() {
		open, err := p.engine.ListPositions(acct.ID, nil)
		if err != nil {
			continue
		}
		for _, pos := range open {
			seen[pos.Symbol] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for sym := range seen {
		out = append(out, sym)
	}
	return out
}

// sampleEquity journals one cash+positions snapshot per account.
// Drawdown is left zero; curves are derived offline from the stored
// samples.
func (p *Poller) sampleEquity(prices map[string]float64) {
	if p.journal == nil {
		return
	}
	now := time.Now().UTC()
	for _, acct := range p.engine.ListAccounts() {
		positions, err := p.engine.ListPositions(acct.ID, prices)
		if err != nil {
			continue
		}
		equity := acct.CashBalance
		for _, pos := range positions {
			equity += pos.Quantity * pos.CurrentPrice
		}
		err = p.journal.RecordEquity(journal.EquitySnapshot{
			AccountID: acct.ID,
			Time:      now,
			Cash:      acct.CashBalance,
			Equity:    equity,
		})
		if err != nil {
			p.log.Warn().Err(err).Str("account_id", acct.ID).Msg("journal equity write failed")
		}
	}
}
