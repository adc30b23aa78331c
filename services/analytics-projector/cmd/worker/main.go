package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront-analytics/services/analytics-projector/internal/repo"
	"storefront-analytics/services/analytics-projector/internal/worker"
	"storefront-analytics/shared/pkg/cache"
	"storefront-analytics/shared/pkg/config"
	"storefront-analytics/shared/pkg/logger"
	"storefront-analytics/shared/pkg/rabbit"
)

const (
	serviceName = "analytics"
	dlqKey      = "analytics.dlq"
	prefetch    = 50
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New("analytics-projector", cfg.Common.LogLevel)

	ctxDB, cancelDB := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDB()
	db, err := pgxpool.New(ctxDB, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("pg connect failed")
	}
	defer db.Close()

	var versions worker.Versioner
	rdb := cache.New(cfg.Redis.Addr)
	defer func() { _ = rdb.Close() }()
	if err := rdb.WaitReady(context.Background(), 5*time.Second, 500*time.Millisecond); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, cached bundles expire by ttl only")
	} else {
		versions = rdb
	}

	rc, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect failed")
	}
	defer func() { _ = rc.Close() }()

	if err := rabbit.DeclareBase(rc.Ch); err != nil {
		log.Fatal().Err(err).Msg("declare base failed")
	}
	if err := rabbit.DeclareQueueWithDLQ(rc.Ch, rabbit.QueueSpec{
		Name:     cfg.Analytics.ConsumerQueue,
		BindKeys: worker.BindKeys,
		DLQ:      dlqKey,
	}); err != nil {
		log.Fatal().Err(err).Msg("declare analytics topology failed")
	}
	if err := rabbit.DeclareRetryQueues(rc.Ch, serviceName, worker.BindKeys, cfg.Analytics.RetryDelayMs, cfg.Analytics.ConsumerQueue); err != nil {
		log.Fatal().Err(err).Msg("declare retry queues failed")
	}

	deliveries, err := rabbit.NewConsumer(rc.Ch).Consume(cfg.Analytics.ConsumerQueue, prefetch)
	if err != nil {
		log.Fatal().Err(err).Msg("consume failed")
	}

	c := &worker.Consumer{
		Log:        log,
		Store:      &repo.RollupPG{DB: db},
		Versions:   versions,
		RebuildLag: cfg.Analytics.RebuildLag,
		Retry: rabbit.RetryPolicy{
			Service:     serviceName,
			MaxAttempts: int32(cfg.Analytics.MaxAttempts),
			RetryPub:    rabbit.NewPublisher(rc.Ch, rabbit.ExchangeRetry),
			DLQPub:      rabbit.NewPublisher(rc.Ch, rabbit.ExchangeDLX),
			DLQKey:      dlqKey,
		},
	}

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(appCtx, deliveries)

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http failed")
		}
	}()

	log.Info().Msg("analytics-projector started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutdown...")

	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
}
