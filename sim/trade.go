package sim

import "time"

// Trade is an immutable execution record for a filled order.
//
// Total is the cash impact of the execution: quantity*price+fee for a
// buy (what the account paid), quantity*price-fee for a sell (net
// proceeds credited).
type Trade struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	OrderID    string    `json:"order_id"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Fee        float64   `json:"fee"`
	Total      float64   `json:"total"`
	ExecutedAt time.Time `json:"executed_at"`
}
