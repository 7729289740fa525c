package backtest

import (
	"fmt"

	"github.com/marketforge/papertrade/indicators"
)

// SMACross is a reference strategy: buy when the fast SMA crosses above
// the slow SMA, close everything when it crosses back below.
type SMACross struct {
	fast *indicators.SMA
	slow *indicators.SMA

	quantity float64
	prevDiff float64
	hasPrev  bool
}

// NewSMACross builds the strategy with the given periods and per-entry
// quantity (clamped by the engine to what cash affords).
func NewSMACross(fastPeriod, slowPeriod int, quantity float64) *SMACross {
	return &SMACross{
		fast:     indicators.NewSMA(fastPeriod),
		slow:     indicators.NewSMA(slowPeriod),
		quantity: quantity,
	}
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma-cross(%d,%d)", s.fast.Warmup(), s.slow.Warmup())
}

func (s *SMACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.prevDiff = 0
	s.hasPrev = false
}

func (s *SMACross) OnBar(ctx *Context, b Bar) {
	s.fast.Update(b.Close)
	s.slow.Update(b.Close)
	if !s.slow.Ready() {
		return
	}

	diff := s.fast.Value() - s.slow.Value()
	defer func() {
		s.prevDiff = diff
		s.hasPrev = true
	}()

	if !s.hasPrev {
		return
	}
	switch {
	case s.prevDiff <= 0 && diff > 0 && ctx.OpenQuantity == 0:
		ctx.Buy(s.quantity)
	case s.prevDiff >= 0 && diff < 0 && ctx.OpenQuantity > 0:
		ctx.CloseAll()
	}
}
