// Package indicators provides streaming technical indicators that
// consume one value per bar, for use inside backtest strategies.
package indicators

import "fmt"

// SMA is a streaming simple moving average.
type SMA struct {
	period int
	window []float64
}

func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		window: make([]float64, 0, period),
	}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA(%d)", s.period)
}

// Warmup is the number of updates needed before Value is meaningful.
func (s *SMA) Warmup() int {
	return s.period
}

func (s *SMA) Reset() {
	s.window = s.window[:0]
}

func (s *SMA) Update(v float64) {
	s.window = append(s.window, v)
	if len(s.window) > s.period {
		s.window = s.window[1:]
	}
}

func (s *SMA) Ready() bool {
	return len(s.window) >= s.period
}

func (s *SMA) Value() float64 {
	if !s.Ready() {
		return 0
	}
	sum := 0.0
	for _, v := range s.window {
		sum += v
	}
	return sum / float64(len(s.window))
}

// EMA is a streaming exponential moving average, seeded with the SMA of
// the first period values.
type EMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

func (e *EMA) Warmup() int {
	return e.period
}

func (e *EMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *EMA) Update(v float64) {
	if e.count < e.period {
		e.warmupSum += v
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (v-e.ema)*e.multiplier + e.ema
}

func (e *EMA) Ready() bool {
	return e.count >= e.period
}

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}
