// Package journal persists execution records and equity samples so that
// simulated runs survive process restarts and can be analyzed offline.
// The in-memory ledger stays the source of truth; the journal is an
// append-only audit copy.
package journal

import "time"

// TradeRecord is one executed fill.
type TradeRecord struct {
	TradeID    string
	AccountID  string
	OrderID    string
	Symbol     string
	Side       string
	Quantity   float64
	Price      float64
	Fee        float64
	Total      float64
	ExecutedAt time.Time
}

// EquitySnapshot is one sample of total account value over time.
// Drawdown is the percentage decline from the running peak at the time
// of the sample.
type EquitySnapshot struct {
	AccountID string
	Time      time.Time
	Cash      float64
	Equity    float64
	Drawdown  float64
}

// Journal records fills and equity samples.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}
