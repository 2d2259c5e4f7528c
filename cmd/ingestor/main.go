package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/victorhugom-zz/rio-review/internal/adapters/feed"
	"github.com/victorhugom-zz/rio-review/internal/adapters/observability"
	redisad "github.com/victorhugom-zz/rio-review/internal/adapters/redis"
	"github.com/victorhugom-zz/rio-review/internal/app"
	"github.com/victorhugom-zz/rio-review/internal/domain"
	"github.com/victorhugom-zz/rio-review/internal/shared"
	"github.com/victorhugom-zz/rio-review/internal/storage"
	mysqlstore "github.com/victorhugom-zz/rio-review/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Str("base", cfg.FeedBase).
		Int("workers", cfg.IngestWorkers).
		Int("items", len(cfg.IngestItemIDs)).
		Msg("ingestor starting")

	if len(cfg.IngestItemIDs) == 0 {
		log.Warn().Msg("INGEST_ITEM_IDS is empty; nothing to do")
		return
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	if err := mysqlstore.EnsureSchema(ctx, db); err != nil {
		log.Fatal().Err(err).Msg("schema")
	}
	log.Info().Msg("db ping ok")

	store := mysqlstore.New(db, "Review", func() *domain.Review { return &domain.Review{} },
		storage.Options{BatchSize: cfg.BulkBatchSize, Pacing: cfg.BulkPacing, Timeout: cfg.StoreOpTimeout})

	client, err := feed.New(cfg.FeedBase, cfg.FeedKey, cfg.FeedRPS, cfg.FeedTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize feed client")
	}

	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		cache = rc
	}
	ing := app.NewIngestionService(client, store, cache)

	workers := cfg.IngestWorkers
	if workers <= 0 {
		workers = 1
	}
	sem := semaphore.NewWeighted(int64(workers))
	var (
		wg       sync.WaitGroup
		failed   atomic.Int32
		imported atomic.Int64
	)

	for _, id := range cfg.IngestItemIDs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("ingestion interrupted")
			break
		}

		wg.Add(1)
		go func(itemID string) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := ing.IngestItem(ctx, itemID)
			if err != nil {
				failed.Add(1)
				log.Warn().Str("item_id", itemID).Err(err).Msg("ingest failed")
				return
			}
			imported.Add(int64(res.Imported))
		}(id)
	}

	wg.Wait()
	log.Info().Int64("imported", imported.Load()).Int32("failed", failed.Load()).Msg("ingestion completed")
	if failed.Load() > 0 {
		stop()
		os.Exit(1)
	}
}
