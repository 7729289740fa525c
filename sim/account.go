package sim

import "time"

// Account is one simulated brokerage account. CashBalance never goes
// negative: the engine checks affordability before mutating anything.
type Account struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	InitialBalance float64   `json:"initial_balance"`
	CashBalance    float64   `json:"cash_balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
