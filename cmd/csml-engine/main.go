// Command csml-engine hosts the engine's HTTP ingest API, health endpoint,
// and background retention sweep (spec.md §6; SPEC_FULL.md §6), grounded
// on cmd/tarsy/main.go's flag-parse-then-wire-services shape, replacing
// its gin/ent stack with the engine's own Echo v5 server and
// database/sql store.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/csml-run/csml-engine/pkg/bot"
	"github.com/csml-run/csml-engine/pkg/callback"
	"github.com/csml-run/csml-engine/pkg/crypto"
	"github.com/csml-run/csml-engine/pkg/driver"
	"github.com/csml-run/csml-engine/pkg/engcfg"
	"github.com/csml-run/csml-engine/pkg/engversion"
	"github.com/csml-run/csml-engine/pkg/retention"
	"github.com/csml-run/csml-engine/pkg/store"
	"github.com/csml-run/csml-engine/pkg/store/memstore"
	"github.com/csml-run/csml-engine/pkg/store/postgres"

	"github.com/csml-run/csml-engine/pkg/api"
)

func main() {
	addr := flag.String("addr", getEnv("HTTP_ADDR", ":8080"), "address to listen on")
	flag.Parse()

	cfg, err := engcfg.Load()
	if err != nil {
		log.Fatalf("csml-engine: %v", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	facade, healthChecker, closeStore, err := openStore(context.Background(), cfg)
	if err != nil {
		log.Fatalf("csml-engine: %v", err)
	}
	defer closeStore()

	cb := callback.New(logger)
	cipher := crypto.New(cfg.EncryptionSecret)
	d := driver.New(facade, cb, cipher, logger, cfg.Debug)
	d.DefaultTTLDays = cfg.DefaultTTLDays
	versions := bot.NewVersions(facade.BotVersions, engversion.Full())

	srv := api.NewServer(d, versions, facade, healthChecker)
	if err := srv.ValidateWiring(); err != nil {
		log.Fatalf("csml-engine: %v", err)
	}

	sweepInterval := time.Hour
	sweeper := retention.New(facade.Sweeper, sweepInterval, logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sweeper.Start(ctx)
	defer sweeper.Stop()

	logger.Info("starting csml-engine", "addr", *addr, "version", engversion.Full(), "db_type", cfg.DBType)
	errCh := make(chan error, 1)
	go func() {
		if startErr := srv.Start(*addr); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
			errCh <- startErr
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case startErr := <-errCh:
		if startErr != nil {
			log.Fatalf("csml-engine: %v", startErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
}

// openStore wires the store.Store façade for cfg's configured backend,
// returning a HealthChecker view of the same resource and a cleanup func.
func openStore(ctx context.Context, cfg *engcfg.Config) (store.Store, api.HealthChecker, func(), error) {
	switch cfg.DBType {
	case engcfg.DBMemory:
		ms := memstore.New()
		return ms.Facade(), noopHealthChecker{}, func() {}, nil
	default:
		client, err := postgres.NewClient(ctx, cfg.Postgres)
		if err != nil {
			return store.Store{}, nil, nil, err
		}
		return postgres.Facade(client), client, func() { _ = client.Close() }, nil
	}
}

type noopHealthChecker struct{}

func (noopHealthChecker) Ping(context.Context) error { return nil }

func newLogger(levelName string) *slog.Logger {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(levelName))
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
