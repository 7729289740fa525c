package backtest

import "time"

// Context is handed to the strategy once per bar. Intents queued through
// it are resolved at the bar's closing price before the next bar; there
// is no pending-order queue across bars.
type Context struct {
	Time  time.Time
	Index int

	// Cash is the engine's cash at the start of the bar, before any of
	// this bar's intents execute.
	Cash float64

	// OpenQuantity is the total open quantity at the start of the bar.
	OpenQuantity float64

	intents []intent
}

type intentKind int

const (
	intentBuy intentKind = iota
	intentSell
	intentCloseAll
)

type intent struct {
	kind     intentKind
	quantity float64
}

// Buy queues a buy of quantity units at this bar's close.
func (c *Context) Buy(quantity float64) {
	c.intents = append(c.intents, intent{kind: intentBuy, quantity: quantity})
}

// Sell queues an exit of the oldest open lot at this bar's close. Lots
// exit whole; there are no partial exits.
func (c *Context) Sell() {
	c.intents = append(c.intents, intent{kind: intentSell})
}

// CloseAll queues an exit of every open lot at this bar's close.
func (c *Context) CloseAll() {
	c.intents = append(c.intents, intent{kind: intentCloseAll})
}

// Strategy observes bars and emits trade intents through the Context.
type Strategy interface {
	Name() string
	Reset()
	OnBar(ctx *Context, b Bar)
}
