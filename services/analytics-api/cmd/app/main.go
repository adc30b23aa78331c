package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"storefront-analytics/migrations"
	httpx "storefront-analytics/services/analytics-api/internal/http"
	"storefront-analytics/services/analytics-api/internal/http/handlers"
	"storefront-analytics/services/analytics-api/internal/repo"
	"storefront-analytics/services/analytics-api/internal/service"
	"storefront-analytics/shared/pkg/cache"
	"storefront-analytics/shared/pkg/config"
	"storefront-analytics/shared/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New("analytics-api", cfg.Common.LogLevel)

	ctxDB, cancelDB := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDB()

	db, err := pgxpool.New(ctxDB, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("pg connect failed")
	}
	defer db.Close()

	if cfg.Postgres.Migrate {
		if err := migrations.Apply(ctxDB, db); err != nil {
			log.Fatal().Err(err).Msg("migrate failed")
		}
	}

	var bundleCache service.BundleCache = repo.NoCache{}
	rdb := cache.New(cfg.Redis.Addr)
	defer func() { _ = rdb.Close() }()
	if err := rdb.WaitReady(context.Background(), 5*time.Second, 500*time.Millisecond); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, bundles uncached")
	} else {
		bundleCache = &repo.BundleCacheRedis{Redis: rdb, TTL: cfg.Analytics.CacheTTL}
	}

	analytics := &repo.AnalyticsPG{DB: db}

	bundles := &service.BundleService{
		Repo:         analytics,
		Cache:        bundleCache,
		Log:          log,
		AnomalyMinZ:  cfg.Analytics.AnomalyMinZ,
		TopProducts:  cfg.Analytics.TopProducts,
		QueryTimeout: cfg.Analytics.QueryTimeout,
	}
	exports := &service.ExportService{Repo: analytics}
	refresh := &service.RefreshService{
		Store: &repo.RefreshPG{DB: db, Outbox: &repo.OutboxPG{}},
	}

	router := httpx.NewRouter(&httpx.Handlers{
		Health:  handlers.Health,
		Bundle:  &handlers.BundleHandler{Bundles: bundles, Log: log},
		Export:  &handlers.ExportHandler{Exports: exports, Log: log},
		Refresh: &handlers.RefreshHandler{Refresh: refresh, Log: log},
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
}
