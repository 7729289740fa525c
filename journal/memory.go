package journal

import "sync"

// Memory is an in-process journal for tests and ephemeral runs.
type Memory struct {
	mu     sync.Mutex
	Trades []TradeRecord
	Equity []EquitySnapshot
}

func NewMemory() *Memory {
	return &Memory{}
}

func (j *Memory) RecordTrade(t TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Trades = append(j.Trades, t)
	return nil
}

func (j *Memory) RecordEquity(e EquitySnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Equity = append(j.Equity, e)
	return nil
}

func (j *Memory) Close() error { return nil }
