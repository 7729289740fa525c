package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marketforge/papertrade/config"
	"github.com/marketforge/papertrade/journal"
	"github.com/marketforge/papertrade/market"
	"github.com/marketforge/papertrade/server"
	"github.com/marketforge/papertrade/sim"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the paper trading HTTP server",
	Long: `Serve starts the paper trading API with a background price poller.

Pending limit and stop orders are swept against fresh prices on the
configured schedule; all fills, rejections and cancellations are
available through the REST API and journaled to SQLite.

Example:
  papertrade serve --config papertrade.yaml`,
	RunE: runServe,
}

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to config file (YAML or JSON)")
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	var err error
	if serveConfigPath != "" {
		cfg, err = config.LoadFromFile(serveConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if j != nil {
		defer j.Close()
	}

	var source market.Source
	switch cfg.Market.Source {
	case "static":
		source = market.NewStatic(cfg.Market.StaticPrices)
	default:
		source = market.NewCoinGecko(market.CoinGeckoOptions{
			BaseURL: cfg.Market.BaseURL,
			CoinIDs: cfg.Market.CoinIDs,
			Log:     log,
		})
	}

	engine := sim.NewEngine(sim.Options{
		FeeRate:              cfg.Engine.FeeRate,
		FillStopsAtStopPrice: cfg.Engine.FillStopsAtStopPrice,
		Journal:              j,
		Log:                  log,
	})

	poller, err := server.NewPoller(engine, source, j, cfg.Market.PollSchedule, log)
	if err != nil {
		return fmt.Errorf("poller: %w", err)
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		Engine:         engine,
		Source:         source,
		Journal:        j,
		DefaultBalance: cfg.Engine.DefaultBalance,
		Log:            log,
	})

	poller.Start()
	defer poller.Stop()

	errc := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func openJournal(cfg config.JournalConfig) (journal.Journal, error) {
	switch cfg.Type {
	case "sqlite":
		return journal.NewSQLite(cfg.DBPath)
	case "memory":
		return journal.NewMemory(), nil
	default:
		return nil, nil
	}
}
