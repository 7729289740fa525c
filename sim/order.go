package sim

import (
	"fmt"
	"time"
)

// Side is the direction of an order or trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderType selects how an order is priced and triggered.
type OrderType string

const (
	Market     OrderType = "market"
	Limit      OrderType = "limit"
	StopLoss   OrderType = "stop_loss"
	TakeProfit OrderType = "take_profit"
)

// OrderStatus is the lifecycle state of an order.
//
// PartiallyFilled is reserved for a future partial-fill model; fills are
// currently all-or-nothing and no code path produces it.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusFilled          OrderStatus = "filled"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
)

// Order is a single buy/sell intent against one account.
type Order struct {
	ID               string      `json:"id"`
	AccountID        string      `json:"account_id"`
	Symbol           string      `json:"symbol"`
	Side             Side        `json:"side"`
	Type             OrderType   `json:"type"`
	Quantity         float64     `json:"quantity"`
	FilledQuantity   float64     `json:"filled_quantity"`
	Price            *float64    `json:"price"`      // limit price, required for limit orders
	StopPrice        *float64    `json:"stop_price"` // trigger price for stop_loss/take_profit
	AverageFillPrice *float64    `json:"average_fill_price"`
	Status           OrderStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	FilledAt         *time.Time  `json:"filled_at"`
	CancelledAt      *time.Time  `json:"cancelled_at"`
}

// Terminal reports whether the order has reached a final state.
// Terminal orders are immutable.
func (o *Order) Terminal() bool {
	switch o.Status {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// OrderRequest carries the caller-supplied fields of a new order.
type OrderRequest struct {
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Type      OrderType `json:"type"`
	Quantity  float64   `json:"quantity"`
	Price     *float64  `json:"price,omitempty"`
	StopPrice *float64  `json:"stop_price,omitempty"`
}

// Validate checks the request shape before any account state is touched.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if r.Side != Buy && r.Side != Sell {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	switch r.Type {
	case Market:
	case Limit:
		if r.Price == nil || *r.Price <= 0 {
			return fmt.Errorf("limit orders require a positive price")
		}
	case StopLoss, TakeProfit:
		if r.StopPrice == nil || *r.StopPrice <= 0 {
			return fmt.Errorf("%s orders require a positive stop_price", r.Type)
		}
	default:
		return fmt.Errorf("invalid order type %q", r.Type)
	}
	return nil
}

// triggered evaluates the order's trigger condition against the current
// price and returns the execution price when the condition holds.
//
// Limit orders fill at the limit price. Stop-loss and take-profit orders
// fill at the current market price, not the stop price; see
// Options.FillStopsAtStopPrice for the alternative.
func (o *Order) triggered(current float64, stopsAtStopPrice bool) (price float64, ok bool) {
	switch o.Type {
	case Limit:
		if o.Price == nil {
			return 0, false
		}
		if (o.Side == Buy && current <= *o.Price) || (o.Side == Sell && current >= *o.Price) {
			return *o.Price, true
		}
	case StopLoss:
		if o.StopPrice != nil && current <= *o.StopPrice {
			if stopsAtStopPrice {
				return *o.StopPrice, true
			}
			return current, true
		}
	case TakeProfit:
		if o.StopPrice != nil && current >= *o.StopPrice {
			if stopsAtStopPrice {
				return *o.StopPrice, true
			}
			return current, true
		}
	}
	return 0, false
}
