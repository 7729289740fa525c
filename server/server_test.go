package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/papertrade/journal"
	"github.com/marketforge/papertrade/market"
	"github.com/marketforge/papertrade/sim"
)

type testEnv struct {
	server *httptest.Server
	engine *sim.Engine
	source *market.Static
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	source := market.NewStatic(map[string]float64{
		"BTC/USD": 50000,
		"ETH/USD": 2500,
	})
	engine := sim.NewEngine(sim.Options{
		FeeRate: sim.DefaultFeeRate,
		Journal: journal.NewMemory(),
		Log:     zerolog.Nop(),
	})

	srv := New(Config{
		Addr:           ":0",
		Engine:         engine,
		Source:         source,
		DefaultBalance: 100000,
		Log:            zerolog.Nop(),
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, engine: engine, source: source}
}

func (env *testEnv) do(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, env.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (env *testEnv) createAccount(t *testing.T, balance float64) sim.Account {
	t.Helper()
	var acct sim.Account
	resp := env.do(t, http.MethodPost, "/api/paper-trading/accounts/", map[string]any{
		"name":            "test",
		"initial_balance": balance,
	}, &acct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return acct
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var body map[string]string
	resp := env.do(t, http.MethodGet, "/health", nil, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAccountEndpoints(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	acct := env.createAccount(t, 50000)
	assert.Equal(t, 50000.0, acct.CashBalance)

	var got sim.Account
	resp := env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID, nil, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, acct.ID, got.ID)

	var all []sim.Account
	resp = env.do(t, http.MethodGet, "/api/paper-trading/accounts/", nil, &all)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, all, 1)

	resp = env.do(t, http.MethodDelete, "/api/paper-trading/accounts/"+acct.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateAccountDefaultBalance(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var acct sim.Account
	resp := env.do(t, http.MethodPost, "/api/paper-trading/accounts/", map[string]any{"name": "defaults"}, &acct)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 100000.0, acct.CashBalance)
}

func TestMarketOrderFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	var order sim.Order
	resp := env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID,
		"symbol":     "BTC/USD",
		"side":       "buy",
		"type":       "market",
		"quantity":   0.5,
	}, &order)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, sim.StatusFilled, order.Status)
	require.NotNil(t, order.AverageFillPrice)
	assert.Equal(t, 50000.0, *order.AverageFillPrice)

	var got sim.Order
	resp = env.do(t, http.MethodGet, "/api/paper-trading/orders/"+order.ID, nil, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, order.ID, got.ID)

	var positions []sim.PositionView
	resp = env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID+"/positions", nil, &positions)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, positions, 1)
	assert.Equal(t, 50000.0, positions[0].CurrentPrice)

	var trades []sim.Trade
	resp = env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID+"/trades", nil, &trades)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, trades, 1)
}

func TestOrderUnknownSymbol(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	resp := env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID,
		"symbol":     "XYZ/USD",
		"side":       "buy",
		"type":       "market",
		"quantity":   1,
	}, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestOrderValidationError(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	resp := env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID,
		"symbol":     "BTC/USD",
		"side":       "buy",
		"type":       "limit",
		"quantity":   1,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelOrderConflict(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	var order sim.Order
	resp := env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID,
		"symbol":     "BTC/USD",
		"side":       "buy",
		"type":       "limit",
		"quantity":   1,
		"price":      30000,
	}, &order)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, sim.StatusPending, order.Status)

	var cancelled sim.Order
	resp = env.do(t, http.MethodDelete, "/api/paper-trading/orders/"+order.ID, nil, &cancelled)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sim.StatusCancelled, cancelled.Status)

	resp = env.do(t, http.MethodDelete, "/api/paper-trading/orders/"+order.ID, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListOrdersStatusFilter(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID, "symbol": "BTC/USD", "side": "buy", "type": "market", "quantity": 0.1,
	}, nil)
	env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID, "symbol": "BTC/USD", "side": "buy", "type": "limit", "quantity": 0.1, "price": 30000,
	}, nil)

	var pending []sim.Order
	resp := env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID+"/orders?status=pending", nil, &pending)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, pending, 1)
	assert.Equal(t, sim.StatusPending, pending[0].Status)

	var all []sim.Order
	resp = env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID+"/orders", nil, &all)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, all, 2)
}

func TestMarketUpdateWithExplicitPrices(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	var order sim.Order
	env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID, "symbol": "BTC/USD", "side": "buy", "type": "limit", "quantity": 1, "price": 30000,
	}, &order)
	require.Equal(t, sim.StatusPending, order.Status)

	var out marketUpdateResponse
	resp := env.do(t, http.MethodPost, "/api/paper-trading/market-update", map[string]any{
		"prices": map[string]float64{"BTC/USD": 29000},
	}, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Filled, 1)
	assert.Equal(t, sim.StatusFilled, out.Filled[0].Status)
}

func TestMarketUpdatePollsSourceWhenBodyEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID, "symbol": "ETH/USD", "side": "buy", "type": "limit", "quantity": 1, "price": 2000,
	}, nil)

	// Not yet marketable at the static 2500.
	var out marketUpdateResponse
	resp := env.do(t, http.MethodPost, "/api/paper-trading/market-update", nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, out.Filled)

	env.source.Set("ETH/USD", 1900)
	resp = env.do(t, http.MethodPost, "/api/paper-trading/market-update", nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Filled, 1)
	require.NotNil(t, out.Filled[0].AverageFillPrice)
	assert.Equal(t, 2000.0, *out.Filled[0].AverageFillPrice)
}

func TestAccountStats(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID, "symbol": "BTC/USD", "side": "buy", "type": "market", "quantity": 1,
	}, nil)

	var stats map[string]any
	resp := env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID+"/stats", nil, &stats)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Cash 100000 - 50050, plus position marked at 50000.
	assert.InDelta(t, 99950.0, stats["total_value"].(float64), 1e-6)
	assert.InDelta(t, 50000.0, stats["positions_value"].(float64), 1e-6)
	assert.EqualValues(t, 1, stats["total_trades"])
}

func TestGetPositionMarkedToMarket(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	env.do(t, http.MethodPost, "/api/paper-trading/orders/", map[string]any{
		"account_id": acct.ID, "symbol": "BTC/USD", "side": "buy", "type": "market", "quantity": 1,
	}, nil)

	var positions []sim.PositionView
	env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID+"/positions", nil, &positions)
	require.Len(t, positions, 1)

	env.source.Set("BTC/USD", 55000)

	var pv sim.PositionView
	resp := env.do(t, http.MethodGet, "/api/paper-trading/positions/"+positions[0].ID, nil, &pv)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 55000.0, pv.CurrentPrice)
	assert.InDelta(t, 5000.0, pv.UnrealizedPnL, 1e-6)
}

func TestPollerFillsPendingOrders(t *testing.T) {
	t.Parallel()

	source := market.NewStatic(map[string]float64{"BTC/USD": 50000})
	engine := sim.NewEngine(sim.Options{Log: zerolog.Nop()})

	acct, err := engine.CreateAccount("poll", 100000)
	require.NoError(t, err)

	limit := 30000.0
	_, err = engine.CreateOrder(sim.OrderRequest{
		AccountID: acct.ID,
		Symbol:    "BTC/USD",
		Side:      sim.Buy,
		Type:      sim.Limit,
		Quantity:  1,
		Price:     &limit,
	}, 50000)
	require.NoError(t, err)

	p, err := NewPoller(engine, source, nil, "@every 1h", zerolog.Nop())
	require.NoError(t, err)

	p.Poll()
	pending, err := engine.ListOrders(acct.ID, sim.StatusPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	source.Set("BTC/USD", 29000)
	p.Poll()

	filled, err := engine.ListOrders(acct.ID, sim.StatusFilled)
	require.NoError(t, err)
	require.Len(t, filled, 1)
	require.NotNil(t, filled[0].AverageFillPrice)
	assert.Equal(t, 30000.0, *filled[0].AverageFillPrice)
}

func TestPollerBadSchedule(t *testing.T) {
	t.Parallel()

	_, err := NewPoller(sim.NewEngine(sim.Options{Log: zerolog.Nop()}), market.NewStatic(nil), nil, "not-a-schedule", zerolog.Nop())
	assert.Error(t, err)
}

func TestPollerSamplesEquity(t *testing.T) {
	t.Parallel()

	source := market.NewStatic(map[string]float64{"BTC/USD": 50000})
	j := journal.NewMemory()
	engine := sim.NewEngine(sim.Options{Journal: j, Log: zerolog.Nop()})

	acct, err := engine.CreateAccount("equity", 100000)
	require.NoError(t, err)
	_, err = engine.CreateOrder(sim.OrderRequest{
		AccountID: acct.ID,
		Symbol:    "BTC/USD",
		Side:      sim.Buy,
		Type:      sim.Market,
		Quantity:  1,
	}, 50000)
	require.NoError(t, err)

	p, err := NewPoller(engine, source, j, "@every 1h", zerolog.Nop())
	require.NoError(t, err)
	p.Poll()

	require.Len(t, j.Equity, 1)
	assert.Equal(t, acct.ID, j.Equity[0].AccountID)
	// Cash 50000 plus 1 BTC at 50000.
	assert.InDelta(t, 100000.0, j.Equity[0].Equity, 1e-6)
	assert.InDelta(t, 50000.0, j.Equity[0].Cash, 1e-6)
}

func TestEquityHistoryEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	acct := env.createAccount(t, 100000)

	// The memory journal cannot be queried back.
	resp := env.do(t, http.MethodGet, "/api/paper-trading/accounts/"+acct.ID+"/equity", nil, nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestEquityHistoryWithSQLiteJournal(t *testing.T) {
	t.Parallel()

	j, err := journal.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	source := market.NewStatic(map[string]float64{"BTC/USD": 50000})
	engine := sim.NewEngine(sim.Options{Journal: j, Log: zerolog.Nop()})

	srv := New(Config{
		Addr:    ":0",
		Engine:  engine,
		Source:  source,
		Journal: j,
		Log:     zerolog.Nop(),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	acct, err := engine.CreateAccount("hist", 100000)
	require.NoError(t, err)

	p, err := NewPoller(engine, source, j, "@every 1h", zerolog.Nop())
	require.NoError(t, err)
	p.Poll()

	resp, err := http.Get(ts.URL + "/api/paper-trading/accounts/" + acct.ID + "/equity")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var samples []journal.EquitySnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&samples))
	require.Len(t, samples, 1)
	assert.InDelta(t, 100000.0, samples[0].Equity, 1e-6)
}
