// Package server exposes the paper trading engine over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/marketforge/papertrade/journal"
	"github.com/marketforge/papertrade/market"
	"github.com/marketforge/papertrade/sim"
)

// Config holds server configuration.
type Config struct {
	Addr           string
	Engine         *sim.Engine
	Source         market.Source
	Journal        journal.Journal
	DefaultBalance float64
	Log            zerolog.Logger
}

// Server is the HTTP front end over the execution engine.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	engine  *sim.Engine
	source  market.Source
	journal journal.Journal
	log     zerolog.Logger

	defaultBalance float64
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		engine:         cfg.Engine,
		source:         cfg.Source,
		journal:        cfg.Journal,
		log:            cfg.Log.With().Str("component", "server").Logger(),
		defaultBalance: cfg.DefaultBalance,
	}
	if s.defaultBalance <= 0 {
		s.defaultBalance = 100000
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/paper-trading", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", s.handleListAccounts)
			r.Post("/", s.handleCreateAccount)
			r.Get("/{accountID}", s.handleGetAccount)
			r.Delete("/{accountID}", s.handleDeleteAccount)
			r.Get("/{accountID}/orders", s.handleListOrders)
			r.Get("/{accountID}/positions", s.handleListPositions)
			r.Get("/{accountID}/trades", s.handleListTrades)
			r.Get("/{accountID}/stats", s.handleAccountStats)
			r.Get("/{accountID}/equity", s.handleEquityHistory)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", s.handleCreateOrder)
			r.Get("/{orderID}", s.handleGetOrder)
			r.Delete("/{orderID}", s.handleCancelOrder)
		})

		r.Get("/positions/{positionID}", s.handleGetPosition)
		r.Post("/market-update", s.handleMarketUpdate)
	})
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
