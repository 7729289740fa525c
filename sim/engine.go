// Package sim implements the virtual execution and accounting engine
// behind paper trading: accounts, orders, positions, trades, and the
// trigger sweep that fills conditional orders against price snapshots.
//
// The engine never reads prices itself. Market order creation takes the
// current price from the caller, and pending orders are only re-evaluated
// when a caller hands Sweep a snapshot.
package sim

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/marketforge/papertrade/journal"
	"github.com/marketforge/papertrade/pkg/id"
	"github.com/rs/zerolog"
)

// DefaultFeeRate is the flat fee charged on notional value per execution.
const DefaultFeeRate = 0.001

// Options configures a new Engine.
type Options struct {
	// FeeRate is the flat fee fraction of notional charged per fill.
	// Zero means no fees; use DefaultFeeRate for the standard 0.1%.
	FeeRate float64

	// FillStopsAtStopPrice fills triggered stop-loss/take-profit orders
	// at their stop price instead of the sweep-time market price. The
	// default (false) preserves market-price fills.
	FillStopsAtStopPrice bool

	// Journal, when set, receives an audit record for every fill.
	// Journal failures are logged and never fail the execution; the
	// in-memory ledger remains authoritative.
	Journal journal.Journal

	Log zerolog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// accountState is the unit of consistency: one account, its orders,
// positions and trades, serialized by one mutex. Operations on distinct
// accounts never block each other.
type accountState struct {
	mu        sync.Mutex
	acct      Account
	orders    map[string]*Order
	positions map[string]*Position
	trades    []*Trade
}

func (st *accountState) findPosition(symbol string) *Position {
	for _, p := range st.positions {
		if p.Symbol == symbol {
			return p
		}
	}
	return nil
}

// Engine owns all simulated accounts. Construct one instance at process
// start and pass it to callers; there is no package-level singleton.
type Engine struct {
	mu       sync.RWMutex // guards the accounts map only
	accounts map[string]*accountState

	// idxMu guards the global ID indexes. It is always the innermost
	// lock: taken after an account's mutex, never before.
	idxMu     sync.RWMutex
	orderAcct map[string]string // order ID -> account ID
	posAcct   map[string]string // position ID -> account ID

	feeRate        float64
	stopsAtStopPx  bool
	journal        journal.Journal
	log            zerolog.Logger
	now            func() time.Time
}

// NewEngine builds an engine from opts.
func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		accounts:      make(map[string]*accountState),
		orderAcct:     make(map[string]string),
		posAcct:       make(map[string]string),
		feeRate:       opts.FeeRate,
		stopsAtStopPx: opts.FillStopsAtStopPrice,
		journal:       opts.Journal,
		log:           opts.Log.With().Str("component", "sim").Logger(),
		now:           now,
	}
}

// Account management

// CreateAccount registers a new account funded with initialBalance.
func (e *Engine) CreateAccount(name string, initialBalance float64) (Account, error) {
	if name == "" {
		return Account{}, fmt.Errorf("account name is required")
	}
	if initialBalance <= 0 {
		return Account{}, fmt.Errorf("initial balance must be positive")
	}

	now := e.now()
	acct := Account{
		ID:             id.New(),
		Name:           name,
		InitialBalance: initialBalance,
		CashBalance:    initialBalance,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	e.mu.Lock()
	e.accounts[acct.ID] = &accountState{
		acct:      acct,
		orders:    make(map[string]*Order),
		positions: make(map[string]*Position),
	}
	e.mu.Unlock()

	e.log.Info().Str("account_id", acct.ID).Float64("balance", initialBalance).Msg("account created")
	return acct, nil
}

// GetAccount returns the account by ID.
func (e *Engine) GetAccount(accountID string) (Account, error) {
	st, err := e.state(accountID)
	if err != nil {
		return Account{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.acct, nil
}

// ListAccounts returns all accounts ordered by creation time.
func (e *Engine) ListAccounts() []Account {
	e.mu.RLock()
	states := make([]*accountState, 0, len(e.accounts))
	for _, st := range e.accounts {
		states = append(states, st)
	}
	e.mu.RUnlock()

	out := make([]Account, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		out = append(out, st.acct)
		st.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// DeleteAccount removes the account and everything it owns.
func (e *Engine) DeleteAccount(accountID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.accounts[accountID]
	if !ok {
		return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	st.mu.Lock()
	e.idxMu.Lock()
	for oid := range st.orders {
		delete(e.orderAcct, oid)
	}
	for pid := range st.positions {
		delete(e.posAcct, pid)
	}
	e.idxMu.Unlock()
	st.mu.Unlock()
	delete(e.accounts, accountID)
	return nil
}

// Order management

// CreateOrder registers an order and attempts immediate execution where
// the type allows it: market orders fill at currentPrice, limit orders
// fill at the limit price if currentPrice already satisfies it. Stop
// orders always wait for a sweep. The returned order carries the
// resulting status, including REJECTED for unaffordable fills.
func (e *Engine) CreateOrder(req OrderRequest, currentPrice float64) (Order, error) {
	if err := req.Validate(); err != nil {
		return Order{}, err
	}
	st, err := e.state(req.AccountID)
	if err != nil {
		return Order{}, err
	}

	o := &Order{
		ID:        id.New(),
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Price:     req.Price,
		StopPrice: req.StopPrice,
		Status:    StatusPending,
		CreatedAt: e.now(),
	}

	st.mu.Lock()
	st.orders[o.ID] = o

	switch o.Type {
	case Market:
		e.execute(st, o, currentPrice)
	case Limit:
		if px, ok := o.triggered(currentPrice, e.stopsAtStopPx); ok {
			e.execute(st, o, px)
		}
	}
	e.idxMu.Lock()
	e.orderAcct[o.ID] = req.AccountID
	e.idxMu.Unlock()

	out := cloneOrder(o)
	st.mu.Unlock()

	return out, nil
}

// GetOrder returns an order by ID.
func (e *Engine) GetOrder(orderID string) (Order, error) {
	st, err := e.orderOwner(orderID)
	if err != nil {
		return Order{}, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return cloneOrder(o), nil
}

// ListOrders returns the account's orders, newest first. A non-empty
// status restricts the result.
func (e *Engine) ListOrders(accountID string, status OrderStatus) ([]Order, error) {
	st, err := e.state(accountID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	out := make([]Order, 0, len(st.orders))
	for _, o := range st.orders {
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	st.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CancelOrder cancels a pending order. Cancelling a terminal order is an
// ErrInvalidTransition; the cancel is checked under the same per-account
// lock as Sweep, so an order can never be cancelled and filled for the
// same snapshot.
func (e *Engine) CancelOrder(orderID string) (Order, error) {
	st, err := e.orderOwner(orderID)
	if err != nil {
		return Order{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	o, ok := st.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	if o.Status != StatusPending {
		return Order{}, fmt.Errorf("cancel order %s with status %s: %w", o.ID, o.Status, ErrInvalidTransition)
	}
	now := e.now()
	o.Status = StatusCancelled
	o.CancelledAt = &now
	return cloneOrder(o), nil
}

// Positions and trades

// GetPosition returns the position marked to currentPrice.
func (e *Engine) GetPosition(positionID string, currentPrice float64) (PositionView, error) {
	e.idxMu.RLock()
	acctID, ok := e.posAcct[positionID]
	e.idxMu.RUnlock()
	if !ok {
		return PositionView{}, fmt.Errorf("position %s: %w", positionID, ErrNotFound)
	}
	st, err := e.state(acctID)
	if err != nil {
		return PositionView{}, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	p, ok := st.positions[positionID]
	if !ok {
		return PositionView{}, fmt.Errorf("position %s: %w", positionID, ErrNotFound)
	}
	return p.View(currentPrice), nil
}

// ListPositions returns the account's open positions marked to the
// caller-supplied prices. Symbols absent from prices are marked to zero.
func (e *Engine) ListPositions(accountID string, prices map[string]float64) ([]PositionView, error) {
	st, err := e.state(accountID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	out := make([]PositionView, 0, len(st.positions))
	for _, p := range st.positions {
		out = append(out, p.View(prices[p.Symbol]))
	}
	st.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// ListTrades returns up to limit trades, most recent execution first.
// limit <= 0 means no bound.
func (e *Engine) ListTrades(accountID string, limit int) ([]Trade, error) {
	st, err := e.state(accountID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	out := make([]Trade, 0, len(st.trades))
	for _, t := range st.trades {
		out = append(out, *t)
	}
	st.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].ExecutedAt.After(out[j].ExecutedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Sweep

// Sweep evaluates every pending order whose symbol appears in prices and
// executes the ones whose trigger condition holds. It returns the orders
// that changed status during this call (FILLED or REJECTED). Orders with
// no price in the snapshot stay pending untouched.
//
// Each call is one atomic pass per account: the per-account lock is held
// while that account's pending orders are evaluated and executed, so no
// order can fill twice for one snapshot or race a concurrent cancel.
func (e *Engine) Sweep(prices map[string]float64) []Order {
	e.mu.RLock()
	states := make([]*accountState, 0, len(e.accounts))
	for _, st := range e.accounts {
		states = append(states, st)
	}
	e.mu.RUnlock()

	var changed []Order
	for _, st := range states {
		st.mu.Lock()

		pending := make([]*Order, 0)
		for _, o := range st.orders {
			if o.Status == StatusPending {
				pending = append(pending, o)
			}
		}
		sort.Slice(pending, func(i, j int) bool {
			if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
				return pending[i].ID < pending[j].ID
			}
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		})

		for _, o := range pending {
			current, ok := prices[o.Symbol]
			if !ok {
				continue
			}
			px, ok := o.triggered(current, e.stopsAtStopPx)
			if !ok {
				continue
			}
			e.execute(st, o, px)
			changed = append(changed, cloneOrder(o))
		}

		st.mu.Unlock()
	}
	return changed
}

// PendingSymbols returns the distinct symbols that have at least one
// pending order, across all accounts. Pollers use it to bound the price
// lookup for the next sweep.
func (e *Engine) PendingSymbols() []string {
	e.mu.RLock()
	states := make([]*accountState, 0, len(e.accounts))
	for _, st := range e.accounts {
		states = append(states, st)
	}
	e.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, st := range states {
		st.mu.Lock()
		for _, o := range st.orders {
			if o.Status == StatusPending {
				seen[o.Symbol] = struct{}{}
			}
		}
		st.mu.Unlock()
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Execution

// execute fills or rejects o at price. Caller holds st.mu.
//
// The mutation is all-or-nothing: an unaffordable buy or an oversized
// sell flips the order to REJECTED and leaves cash and positions exactly
// as they were.
func (e *Engine) execute(st *accountState, o *Order, price float64) {
	notional := o.Quantity * price
	fee := notional * e.feeRate
	now := e.now()

	switch o.Side {
	case Buy:
		total := notional + fee
		if st.acct.CashBalance < total {
			o.Status = StatusRejected
			e.log.Debug().Str("order_id", o.ID).Float64("total", total).
				Float64("cash", st.acct.CashBalance).Msg("order rejected: insufficient funds")
			return
		}
		st.acct.CashBalance -= total
		e.applyBuy(st, o, notional, now)

	case Sell:
		pos := st.findPosition(o.Symbol)
		if pos == nil || pos.Quantity < o.Quantity {
			o.Status = StatusRejected
			e.log.Debug().Str("order_id", o.ID).Str("symbol", o.Symbol).
				Msg("order rejected: insufficient position")
			return
		}
		st.acct.CashBalance += notional - fee
		e.reducePosition(st, pos, o.Quantity)
	}

	o.Status = StatusFilled
	o.FilledQuantity = o.Quantity
	fillPx := price
	o.AverageFillPrice = &fillPx
	filledAt := now
	o.FilledAt = &filledAt
	st.acct.UpdatedAt = now

	total := notional + fee
	if o.Side == Sell {
		total = notional - fee
	}
	tr := &Trade{
		ID:         id.New(),
		AccountID:  o.AccountID,
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   o.Quantity,
		Price:      price,
		Fee:        fee,
		Total:      total,
		ExecutedAt: now,
	}
	st.trades = append(st.trades, tr)

	if e.journal != nil {
		err := e.journal.RecordTrade(journal.TradeRecord{
			TradeID:    tr.ID,
			AccountID:  tr.AccountID,
			OrderID:    tr.OrderID,
			Symbol:     tr.Symbol,
			Side:       string(tr.Side),
			Quantity:   tr.Quantity,
			Price:      tr.Price,
			Fee:        tr.Fee,
			Total:      tr.Total,
			ExecutedAt: tr.ExecutedAt,
		})
		if err != nil {
			e.log.Warn().Err(err).Str("trade_id", tr.ID).Msg("journal write failed")
		}
	}

	e.log.Info().Str("order_id", o.ID).Str("symbol", o.Symbol).Str("side", string(o.Side)).
		Float64("quantity", o.Quantity).Float64("price", price).Float64("fee", fee).
		Msg("order filled")
}

// applyBuy adds quantity/notional to the symbol's position, creating it
// on first buy. Fees never enter the cost basis.
func (e *Engine) applyBuy(st *accountState, o *Order, notional float64, now time.Time) {
	if pos := st.findPosition(o.Symbol); pos != nil {
		pos.Quantity += o.Quantity
		pos.CostBasis += notional
		return
	}
	p := &Position{
		ID:        id.New(),
		AccountID: o.AccountID,
		Symbol:    o.Symbol,
		Side:      Long,
		Quantity:  o.Quantity,
		CostBasis: notional,
		OpenedAt:  now,
	}
	st.positions[p.ID] = p

	e.idxMu.Lock()
	e.posAcct[p.ID] = o.AccountID
	e.idxMu.Unlock()
}

// reducePosition removes quantity and a proportional share of the cost
// basis, deleting the position once the remainder is negligible.
func (e *Engine) reducePosition(st *accountState, pos *Position, quantity float64) {
	costPerUnit := pos.CostBasis / pos.Quantity
	pos.Quantity -= quantity
	pos.CostBasis -= costPerUnit * quantity

	if pos.Quantity <= positionEpsilon {
		delete(st.positions, pos.ID)
		e.idxMu.Lock()
		delete(e.posAcct, pos.ID)
		e.idxMu.Unlock()
	}
}

// Lookups

func (e *Engine) state(accountID string) (*accountState, error) {
	e.mu.RLock()
	st, ok := e.accounts[accountID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrNotFound)
	}
	return st, nil
}

// orderOwner resolves the account that owns orderID. The caller must
// re-check the order under the account lock.
func (e *Engine) orderOwner(orderID string) (*accountState, error) {
	e.idxMu.RLock()
	acctID, ok := e.orderAcct[orderID]
	e.idxMu.RUnlock()

	e.mu.RLock()
	st := e.accounts[acctID]
	e.mu.RUnlock()
	if !ok || st == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return st, nil
}

func cloneOrder(o *Order) Order {
	out := *o
	if o.Price != nil {
		v := *o.Price
		out.Price = &v
	}
	if o.StopPrice != nil {
		v := *o.StopPrice
		out.StopPrice = &v
	}
	if o.AverageFillPrice != nil {
		v := *o.AverageFillPrice
		out.AverageFillPrice = &v
	}
	if o.FilledAt != nil {
		v := *o.FilledAt
		out.FilledAt = &v
	}
	if o.CancelledAt != nil {
		v := *o.CancelledAt
		out.CancelledAt = &v
	}
	return out
}
