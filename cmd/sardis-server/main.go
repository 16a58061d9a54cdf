// Command sardis-server runs the Sardis agent-payments orchestration
// core: it loads configuration, wires every settlement collaborator via
// pkg/sardis, and serves the HTTP API until an interrupt or terminate
// signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/sardis-ai/payments-core/internal/config"
	"github.com/sardis-ai/payments-core/pkg/sardis"
)

func main() {
	// Load .env for local development; absence is not an error, since
	// deployed environments set these vars directly.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("SARDIS_CONFIG_PATH"), "path to config YAML file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("sardis-server: load config: %v", err)
	}

	app, err := sardis.NewApp(cfg)
	if err != nil {
		log.Fatalf("sardis-server: build app: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		app.Logger.Info().Str("address", cfg.Server.Address).Msg("sardis-server listening")
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		app.Logger.Info().Msg("sardis-server shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error().Err(err).Msg("sardis-server listener failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.Server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("sardis-server graceful shutdown failed")
	}
	app.Shutdown()
}
