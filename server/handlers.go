package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketforge/papertrade/journal"
	"github.com/marketforge/papertrade/market"
	"github.com/marketforge/papertrade/perf"
	"github.com/marketforge/papertrade/sim"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// engineError maps engine sentinel errors to HTTP statuses.
func (s *Server) engineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sim.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sim.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// Accounts

type createAccountRequest struct {
	Name           string  `json:"name"`
	InitialBalance float64 `json:"initial_balance"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.InitialBalance == 0 {
		req.InitialBalance = s.defaultBalance
	}

	acct, err := s.engine.CreateAccount(req.Name, req.InitialBalance)
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListAccounts())
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.engine.GetAccount(chi.URLParam(r, "accountID"))
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteAccount(chi.URLParam(r, "accountID")); err != nil {
		s.engineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Orders

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req sim.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	price, err := market.Price(r.Context(), s.source, req.Symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", req.Symbol).Msg("price lookup failed")
		writeError(w, http.StatusBadGateway, "no price available for "+req.Symbol)
		return
	}

	order, err := s.engine.CreateOrder(req, price)
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.GetOrder(chi.URLParam(r, "orderID"))
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.engine.CancelOrder(chi.URLParam(r, "orderID"))
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	status := sim.OrderStatus(r.URL.Query().Get("status"))

	orders, err := s.engine.ListOrders(accountID, status)
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// Positions

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	// First pass collects the open symbols, second marks to market.
	open, err := s.engine.ListPositions(accountID, nil)
	if err != nil {
		s.engineError(w, err)
		return
	}
	symbols := make([]string, 0, len(open))
	for _, p := range open {
		symbols = append(symbols, p.Symbol)
	}

	prices, err := s.source.Prices(r.Context(), symbols)
	if err != nil {
		s.log.Warn().Err(err).Msg("price lookup failed, marking positions to zero")
		prices = nil
	}

	positions, err := s.engine.ListPositions(accountID, prices)
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	positionID := chi.URLParam(r, "positionID")

	// Resolve the symbol before marking to market.
	pv, err := s.engine.GetPosition(positionID, 0)
	if err != nil {
		s.engineError(w, err)
		return
	}
	price, err := market.Price(r.Context(), s.source, pv.Symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", pv.Symbol).Msg("price lookup failed")
		price = 0
	}

	pv, err = s.engine.GetPosition(positionID, price)
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

// Trades

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	trades, err := s.engine.ListTrades(accountID, limit)
	if err != nil {
		s.engineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// Stats

func (s *Server) handleAccountStats(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	acct, err := s.engine.GetAccount(accountID)
	if err != nil {
		s.engineError(w, err)
		return
	}

	open, err := s.engine.ListPositions(accountID, nil)
	if err != nil {
		s.engineError(w, err)
		return
	}
	symbols := make([]string, 0, len(open))
	for _, p := range open {
		symbols = append(symbols, p.Symbol)
	}
	prices, err := s.source.Prices(r.Context(), symbols)
	if err != nil {
		s.log.Warn().Err(err).Msg("price lookup failed, stats use zero marks")
		prices = nil
	}
	positions, err := s.engine.ListPositions(accountID, prices)
	if err != nil {
		s.engineError(w, err)
		return
	}

	trades, err := s.engine.ListTrades(accountID, 0)
	if err != nil {
		s.engineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, perf.Summarize(acct, positions, trades))
}

// equityHistory is implemented by journals that can be queried back,
// such as the SQLite journal.
type equityHistory interface {
	ListEquityBetween(accountID string, start, end time.Time) ([]journal.EquitySnapshot, error)
}

// handleEquityHistory serves journaled equity samples for an account.
// start/end are RFC3339; they default to the last 30 days.
func (s *Server) handleEquityHistory(w http.ResponseWriter, r *http.Request) {
	q, ok := s.journal.(equityHistory)
	if !ok {
		writeError(w, http.StatusNotImplemented, "journal does not support equity history")
		return
	}
	accountID := chi.URLParam(r, "accountID")
	if _, err := s.engine.GetAccount(accountID); err != nil {
		s.engineError(w, err)
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		start = t
	}
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end")
			return
		}
		end = t
	}

	samples, err := q.ListEquityBetween(accountID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if samples == nil {
		samples = []journal.EquitySnapshot{}
	}
	writeJSON(w, http.StatusOK, samples)
}

// Market sweep

type marketUpdateRequest struct {
	Prices map[string]float64 `json:"prices"`
}

type marketUpdateResponse struct {
	Prices map[string]float64 `json:"prices"`
	Filled []sim.Order        `json:"filled"`
}

// handleMarketUpdate sweeps pending orders. With a body of prices those
// are used as-is; otherwise the price source is polled for every symbol
// with pending orders.
func (s *Server) handleMarketUpdate(w http.ResponseWriter, r *http.Request) {
	var req marketUpdateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	prices := req.Prices
	if len(prices) == 0 {
		symbols := s.engine.PendingSymbols()
		if len(symbols) == 0 {
			writeJSON(w, http.StatusOK, marketUpdateResponse{Prices: map[string]float64{}, Filled: []sim.Order{}})
			return
		}
		var err error
		prices, err = s.source.Prices(r.Context(), symbols)
		if err != nil {
			writeError(w, http.StatusBadGateway, "price lookup failed: "+err.Error())
			return
		}
	}

	filled := s.engine.Sweep(prices)
	writeJSON(w, http.StatusOK, marketUpdateResponse{Prices: prices, Filled: filled})
}
