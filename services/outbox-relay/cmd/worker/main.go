package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	httpx "storefront-analytics/services/outbox-relay/internal/http"
	"storefront-analytics/services/outbox-relay/internal/outbox"
	"storefront-analytics/shared/pkg/config"
	"storefront-analytics/shared/pkg/logger"
	"storefront-analytics/shared/pkg/rabbit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New("outbox-relay", cfg.Common.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctxDB, cancelDB := context.WithTimeout(ctx, 5*time.Second)
	defer cancelDB()
	db, err := pgxpool.New(ctxDB, cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("pg connect failed")
	}
	defer db.Close()

	rc, err := rabbit.Connect(cfg.Rabbit.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit connect failed")
	}
	defer func() { _ = rc.Close() }()

	if err := rabbit.DeclareBase(rc.Ch); err != nil {
		log.Fatal().Err(err).Msg("declare base failed")
	}

	runner := outbox.NewRunner(log, db, rabbit.NewPublisher(rc.Ch, rabbit.ExchangeEvents), cfg.Outbox)
	httpSrv := &http.Server{
		Addr:              cfg.Outbox.HTTPAddr,
		Handler:           (&httpx.Server{Log: log, Pending: runner.Pending}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runner.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", httpSrv.Addr).Msg("http started")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown...")
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		return httpSrv.Shutdown(shCtx)
	})

	log.Info().Msg("outbox-relay started")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("outbox-relay stopped with error")
	}
}
