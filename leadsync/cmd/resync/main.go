// Command resync pushes every known user to Marketo again. Useful after
// changing the field map or recovering from an outage.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/gigaom/marketo-sync/leadsync/services"
	"github.com/gigaom/marketo-sync/pkg/bus"
	"github.com/gigaom/marketo-sync/pkg/cache"
	"github.com/gigaom/marketo-sync/pkg/config"
	"github.com/gigaom/marketo-sync/pkg/fieldmap"
	"github.com/gigaom/marketo-sync/pkg/marketo"
	"github.com/gigaom/marketo-sync/pkg/store"
)

func main() {
	workers := flag.Int("workers", 4, "number of concurrent sync workers")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fields, err := fieldmap.Parse(cfg.FieldMap)
	if err != nil {
		logger.Error("Failed to parse field map", zap.Error(err))
		os.Exit(1)
	}

	dbCfg := store.NewConfig()
	db, err := store.New(dbCfg, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	pgStore := store.NewPostgresStore(db, logger)
	tokenCache := cache.NewTokenCache(cache.NewPostgres(db.Pool(), logger), marketo.TokenCacheKey)
	client := marketo.NewWithLogger(cfg, tokenCache, logger)

	syncSvc := services.NewSync(client, pgStore, pgStore, bus.New(logger), fields, cfg.ListID, logger)

	ctx := context.Background()
	ids, err := pgStore.ListUserIDs(ctx)
	if err != nil {
		logger.Error("Failed to list users", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Starting bulk resync",
		zap.Int("users", len(ids)),
		zap.Int("workers", *workers))

	var succeeded, failed atomic.Int64

	p := pool.New().WithMaxGoroutines(*workers)
	for _, id := range ids {
		id := id
		p.Go(func() {
			user, err := pgStore.GetByID(ctx, id)
			if err != nil || user == nil {
				logger.Warn("Skipping unresolvable user", zap.Int64("user_id", id), zap.Error(err))
				failed.Add(1)
				return
			}
			if _, err := syncSvc.SyncUser(ctx, user, services.ActionUpdate); err != nil {
				failed.Add(1)
				return
			}
			succeeded.Add(1)
		})
	}
	p.Wait()

	logger.Info("Bulk resync completed",
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()))
	fmt.Printf("Resync: %d succeeded, %d failed\n", succeeded.Load(), failed.Load())

	if failed.Load() > 0 {
		os.Exit(1)
	}
}
