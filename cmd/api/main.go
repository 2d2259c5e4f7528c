package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "github.com/victorhugom-zz/rio-review/internal/adapters/http_server"
	"github.com/victorhugom-zz/rio-review/internal/adapters/observability"
	redisad "github.com/victorhugom-zz/rio-review/internal/adapters/redis"
	"github.com/victorhugom-zz/rio-review/internal/app"
	"github.com/victorhugom-zz/rio-review/internal/domain"
	"github.com/victorhugom-zz/rio-review/internal/shared"
	"github.com/victorhugom-zz/rio-review/internal/storage"
	"github.com/victorhugom-zz/rio-review/internal/storage/memory"
	mysqlstore "github.com/victorhugom-zz/rio-review/internal/storage/mysql"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := storage.Options{BatchSize: cfg.BulkBatchSize, Pacing: cfg.BulkPacing, Timeout: cfg.StoreOpTimeout}
	newReview := func() *domain.Review { return &domain.Review{} }

	// store handle: opened once here, closed at shutdown
	var (
		store domain.Store[*domain.Review]
		db    *sql.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		store = memory.New(newReview, opts)
		log.Warn().Msg("using in-memory store")
	default:
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("sql.Open failed")
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreOpTimeout)
		err = db.PingContext(pingCtx)
		if err == nil {
			err = mysqlstore.EnsureSchema(pingCtx, db)
		}
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("database not ready")
		}
		log.Info().Msg("database connection ok")
		store = mysqlstore.New(db, "Review", newReview, opts)
	}

	// cache is optional; without it every read goes to the store
	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable; running without cache")
			_ = rc.Close()
		} else {
			cache = rc
			defer rc.Close()
		}
	}

	policy := app.Policy{
		ApproveOnCreate: cfg.ApproveOnCreate,
		AllowSelfVote:   cfg.AllowSelfVote,
		MaxAttempts:     cfg.MergeMaxAttempts,
	}
	log.Info().
		Bool("approve_on_create", policy.ApproveOnCreate).
		Bool("allow_self_vote", policy.AllowSelfVote).
		Bool("only_approved_default", cfg.OnlyApprovedDefault).
		Int("max_attempts", policy.MaxAttempts).
		Msg("review policy")

	cmd := app.NewCommandService(store, cache, policy)
	q := app.NewQueryService(store, cache, cfg.CacheTTL, cfg.OnlyApprovedDefault)

	// http
	srv := server.New(cfg.HTTPTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, C: cmd})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("db close")
		}
	}
}
