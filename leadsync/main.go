package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/leadsync/server"
	"github.com/gigaom/marketo-sync/leadsync/services"
	"github.com/gigaom/marketo-sync/pkg/bus"
	"github.com/gigaom/marketo-sync/pkg/cache"
	"github.com/gigaom/marketo-sync/pkg/config"
	"github.com/gigaom/marketo-sync/pkg/fieldmap"
	"github.com/gigaom/marketo-sync/pkg/marketo"
	"github.com/gigaom/marketo-sync/pkg/store"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fields, err := fieldmap.Parse(cfg.FieldMap)
	if err != nil {
		logger.Error("Failed to parse field map", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to parse field map: %v\n", err)
		os.Exit(1)
	}

	// Initialize database connection
	dbCfg := store.NewConfig()
	db, err := store.New(dbCfg, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(context.Background()); err != nil {
		logger.Error("Failed to ensure schema", zap.Error(err))
		os.Exit(1)
	}

	// Wire the stores, cache, bus and Marketo client
	pgStore := store.NewPostgresStore(db, logger)
	tokenCache := cache.NewTokenCache(cache.NewPostgres(db.Pool(), logger), marketo.TokenCacheKey)
	eventBus := bus.New(logger)
	client := marketo.NewWithLogger(cfg, tokenCache, logger)

	syncSvc := services.NewSync(client, pgStore, pgStore, eventBus, fields, cfg.ListID, logger)
	syncSvc.Register(eventBus)

	srv := server.New(cfg, pgStore, pgStore, syncSvc, eventBus, logger)

	// Serve until interrupted, then drain
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}
}
