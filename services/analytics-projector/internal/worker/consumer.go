package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"storefront-analytics/services/analytics-projector/internal/metrics"
	"storefront-analytics/services/analytics-projector/internal/rollup"
	"storefront-analytics/shared/pkg/cache"
	"storefront-analytics/shared/pkg/models"
	"storefront-analytics/shared/pkg/rabbit"
)

// BindKeys are the routing keys the projector consumes.
var BindKeys = []string{
	models.TypeOrderCreated,
	models.TypePaymentProcessed,
	models.TypeOrderCancelled,
	models.TypeRefundIssued,
	models.TypeRebuildRequested,
}

type Store interface {
	Apply(ctx context.Context, eventID, tenantID string, slot time.Time, d rollup.Delta) (bool, error)
	Rebuild(ctx context.Context, eventID, tenantID string, rb rollup.Rebuild) (bool, error)
}

// Versioner bumps a counter; *cache.Redis satisfies it.
type Versioner interface {
	Incr(ctx context.Context, key string) (int64, error)
}

type Consumer struct {
	Log      zerolog.Logger
	Store    Store
	Versions Versioner // nil disables cache invalidation
	Retry    rabbit.RetryPolicy

	// RebuildLag keeps rebuilds off slots younger than now-RebuildLag.
	RebuildLag time.Duration
	now        func() time.Time
}

func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	c.Log.Info().Msg("analytics consumer started")
	for {
		select {
		case <-ctx.Done():
			c.Log.Info().Msg("analytics consumer stopped")
			return
		case d, ok := <-deliveries:
			if !ok {
				c.Log.Info().Msg("deliveries closed")
				return
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var evt models.EventRaw
	if err := json.Unmarshal(d.Body, &evt); err != nil {
		c.Log.Error().Err(err).Str("rk", d.RoutingKey).Msg("bad json -> dlq")
		c.deadLetter(ctx, d, d.RoutingKey)
		return
	}
	if evt.Type == "" {
		evt.Type = d.RoutingKey
	}
	if evt.ID == "" || evt.TenantID == "" {
		c.Log.Error().Str("rk", d.RoutingKey).Msg("missing id/tenant_id -> dlq")
		c.deadLetter(ctx, d, evt.Type)
		return
	}

	log := c.Log.With().Str("event_id", evt.ID).Str("tenant_id", evt.TenantID).Str("type", evt.Type).Logger()

	var (
		applied bool
		err     error
	)
	if evt.Type == models.TypeRebuildRequested {
		rb, perr := rollup.RebuildRange(evt)
		if perr != nil {
			log.Error().Err(perr).Msg("bad rebuild request -> dlq")
			c.deadLetter(ctx, d, evt.Type)
			return
		}
		rb = rb.Clamp(c.clock(), c.RebuildLag)
		if rb.Empty() {
			log.Info().Msg("rebuild range inside lag window, nothing to rebuild")
		}
		applied, err = c.Store.Rebuild(ctx, evt.ID, evt.TenantID, rb)
	} else {
		slot, delta, perr := rollup.FromEvent(evt)
		switch {
		case errors.Is(perr, rollup.ErrUnsupported):
			_ = d.Ack(false)
			metrics.EventsTotal.WithLabelValues(evt.Type, "skipped").Inc()
			return
		case perr != nil:
			log.Error().Err(perr).Msg("bad payload -> dlq")
			c.deadLetter(ctx, d, evt.Type)
			return
		}
		applied, err = c.Store.Apply(ctx, evt.ID, evt.TenantID, slot, delta)
	}

	if err != nil {
		metrics.EventsTotal.WithLabelValues(evt.Type, "failed").Inc()
		rerr := c.Retry.RetryOrDLQ(ctx, d, evt.Type, d.Body, d.Headers)
		log.Error().Err(err).Str("outcome", outcome(rerr)).Int32("attempts", rabbit.GetAttempts(d.Headers)).Msg("apply failed")
		return
	}
	if !applied {
		_ = d.Ack(false)
		metrics.EventsTotal.WithLabelValues(evt.Type, "duplicate").Inc()
		log.Debug().Msg("duplicate event ignored")
		return
	}

	c.bumpVersion(ctx, evt.TenantID)
	_ = d.Ack(false)
	metrics.EventsTotal.WithLabelValues(evt.Type, "applied").Inc()
	log.Info().Msg("rollup updated")
}

// bumpVersion orphans the tenant's cached bundles. A failure only delays
// freshness until the cache TTL, so the delivery is still acked.
func (c *Consumer) bumpVersion(ctx context.Context, tenantID string) {
	if c.Versions == nil {
		return
	}
	if _, err := c.Versions.Incr(ctx, cache.TenantVersionKey(tenantID)); err != nil {
		metrics.CacheBumpErrorsTotal.Inc()
		c.Log.Warn().Err(err).Str("tenant_id", tenantID).Msg("cache version bump failed")
	}
}

func (c *Consumer) deadLetter(ctx context.Context, d amqp.Delivery, typ string) {
	metrics.EventsTotal.WithLabelValues(typ, "dead_lettered").Inc()
	if err := c.Retry.DeadLetter(ctx, d, typ, d.Body, d.Headers); err != nil && !errors.Is(err, rabbit.ErrDeadLettered) {
		c.Log.Error().Err(err).Str("rk", d.RoutingKey).Msg("dlq publish failed, requeued")
	}
}

func (c *Consumer) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func outcome(err error) string {
	switch {
	case errors.Is(err, rabbit.ErrRetryScheduled):
		return "retry"
	case errors.Is(err, rabbit.ErrDeadLettered):
		return "dlq"
	case err != nil:
		return "requeued"
	default:
		return "unknown"
	}
}
