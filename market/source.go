// Package market supplies current prices to the paper trading layer.
// The execution engine never fetches prices itself; a Source is polled
// by the server (or driven by tests) and its snapshots are handed to the
// engine's sweep.
package market

import (
	"context"
	"fmt"
	"sync"
)

// Source resolves current prices for a set of symbols. Symbols a source
// cannot price are simply absent from the returned map; pending orders
// in those symbols stay untouched.
type Source interface {
	Prices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// Static is a fixed, mutable price table. Used by tests, demos and the
// manual price-update endpoint.
type Static struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewStatic(prices map[string]float64) *Static {
	cp := make(map[string]float64, len(prices))
	for k, v := range prices {
		cp[k] = v
	}
	return &Static{prices: cp}
}

func (s *Static) Prices(_ context.Context, symbols []string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(symbols))
	for _, sym := range symbols {
		if px, ok := s.prices[sym]; ok {
			out[sym] = px
		}
	}
	return out, nil
}

// Set updates one symbol's price.
func (s *Static) Set(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// Price returns one symbol's price from a source.
func Price(ctx context.Context, src Source, symbol string) (float64, error) {
	prices, err := src.Prices(ctx, []string{symbol})
	if err != nil {
		return 0, err
	}
	px, ok := prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %q", symbol)
	}
	return px, nil
}
