package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/punchamoorthee/ledgerops/internal/api"
	"github.com/punchamoorthee/ledgerops/internal/config"
	"github.com/punchamoorthee/ledgerops/internal/service"
	"github.com/punchamoorthee/ledgerops/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	svc := service.New(st,
		service.WithLogger(logger),
		service.WithBatchSize(cfg.WorkerBatchSize),
		service.WithPollMinInterval(cfg.PollMinInterval),
		service.WithUnknownSLA(cfg.UnknownSLA),
	)
	if err := svc.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap chart of accounts failed", "error", err)
		os.Exit(1)
	}

	go svc.Run(ctx, cfg.WorkerInterval)

	handler := api.NewHandler(svc, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler, api.RouterConfig{WebhookRateLimit: cfg.WebhookRateLimit}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Driver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on exit")
		return store.NewMemory(), nil
	}

	pg, err := store.Open(ctx, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		logger.Info("schema applied")
	}
	return pg, nil
}
