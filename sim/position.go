package sim

import "time"

// positionEpsilon is the residual quantity below which a position is
// deleted instead of being kept at (numerically) zero.
const positionEpsilon = 1e-4

// PositionSide is the direction of open exposure.
type PositionSide string

const (
	Long  PositionSide = "long"
	Short PositionSide = "short"
)

// Position is the aggregate open exposure in one symbol for one account.
// CostBasis is the cumulative notional paid for the open quantity,
// excluding fees.
type Position struct {
	ID        string       `json:"id"`
	AccountID string       `json:"account_id"`
	Symbol    string       `json:"symbol"`
	Side      PositionSide `json:"side"`
	Quantity  float64      `json:"quantity"`
	CostBasis float64      `json:"cost_basis"`
	OpenedAt  time.Time    `json:"opened_at"`
}

// AverageEntryPrice is CostBasis spread over the open quantity.
func (p *Position) AverageEntryPrice() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return p.CostBasis / p.Quantity
}

// PositionView is the caller-facing shape of a position, marked to a
// caller-supplied current price. The engine holds no price cache.
type PositionView struct {
	ID                   string       `json:"id"`
	AccountID            string       `json:"account_id"`
	Symbol               string       `json:"symbol"`
	Side                 PositionSide `json:"side"`
	Quantity             float64      `json:"quantity"`
	AverageEntryPrice    float64      `json:"average_entry_price"`
	CurrentPrice         float64      `json:"current_price"`
	UnrealizedPnL        float64      `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64      `json:"unrealized_pnl_percent"`
	OpenedAt             time.Time    `json:"opened_at"`
}

// View marks the position to currentPrice.
func (p *Position) View(currentPrice float64) PositionView {
	pnl := (currentPrice - p.AverageEntryPrice()) * p.Quantity
	pnlPct := 0.0
	if p.CostBasis > 0 {
		pnlPct = pnl / p.CostBasis * 100
	}
	return PositionView{
		ID:                   p.ID,
		AccountID:            p.AccountID,
		Symbol:               p.Symbol,
		Side:                 p.Side,
		Quantity:             p.Quantity,
		AverageEntryPrice:    p.AverageEntryPrice(),
		CurrentPrice:         currentPrice,
		UnrealizedPnL:        pnl,
		UnrealizedPnLPercent: pnlPct,
		OpenedAt:             p.OpenedAt,
	}
}
