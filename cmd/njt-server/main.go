// Command njt-server runs the public HTTP service: the federation
// scrape proxy and the cross-device sync endpoints.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/config"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/logging"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	sync, closeDB, err := server.OpenSyncStore(cfg.Badger.Dir)
	if err != nil {
		logging.Error().Err(err).Str("dir", cfg.Badger.Dir).Msg("failed to open sync store")
		os.Exit(1)
	}
	defer func() {
		if err := closeDB(); err != nil {
			logging.Error().Err(err).Msg("failed to close sync store")
		}
	}()

	srv := server.New(server.Options{
		Fetcher:     fetch.New(cfg.Federation.Host, fetch.WithRequestsPerSecond(cfg.Federation.RPS)),
		Sync:        sync,
		Secret:      cfg.Sync.Secret,
		ScrapeLimit: cfg.RateLimit.Scrape,
		EventsLimit: cfg.RateLimit.Events,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
	case sig := <-stop:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logging.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}
