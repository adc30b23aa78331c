package outbox

import (
	"context"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"storefront-analytics/services/outbox-relay/internal/metrics"
	"storefront-analytics/shared/pkg/config"
	"storefront-analytics/shared/pkg/rabbit"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table) error
}

type Runner struct {
	Log zerolog.Logger
	DB  DB

	EventsPub Publisher

	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	BackoffMax   time.Duration

	now func() time.Time
}

func NewRunner(log zerolog.Logger, db DB, pub Publisher, cfg config.OutboxConfig) *Runner {
	return &Runner{
		Log:          log,
		DB:           db,
		EventsPub:    pub,
		PollInterval: cfg.PollInterval,
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		BackoffMax:   cfg.BackoffMax,
	}
}

type EventRow struct {
	ID        string
	TenantID  string
	EventType string
	Payload   []byte
	Attempts  int
}

func (r *Runner) Run(ctx context.Context) {
	t := time.NewTicker(r.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("outbox runner stopped")
			return
		case <-t.C:
			if err := r.tick(ctx); err != nil {
				r.Log.Error().Err(err).Msg("outbox tick failed")
			}
		}
	}
}

func (r *Runner) tick(ctx context.Context) error {
	if n, err := r.Pending(ctx); err == nil {
		metrics.OutboxPending.Set(float64(n))
	}

	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		select id::text, tenant_id, event_type, payload::text, attempts
		from outbox_events
		where sent_at is null and next_attempt_at <= now()
		order by created_at
		limit $1
		for update skip locked
	`, r.BatchSize)
	if err != nil {
		return err
	}

	var batch []EventRow
	for rows.Next() {
		var e EventRow
		var payloadText string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EventType, &payloadText, &e.Attempts); err != nil {
			rows.Close()
			return err
		}
		e.Payload = []byte(payloadText)
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	if err := r.dispatch(ctx, tx, batch); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// dispatch publishes each row and records the outcome through tx. Rows at
// MaxAttempts are marked sent with an error instead of being published.
func (r *Runner) dispatch(ctx context.Context, tx Execer, batch []EventRow) error {
	now := time.Now
	if r.now != nil {
		now = r.now
	}

	for _, e := range batch {
		if e.Attempts >= r.MaxAttempts {
			if _, err := tx.Exec(ctx, `update outbox_events set last_error=$2, sent_at=now() where id=$1::uuid`, e.ID, "max attempts reached"); err != nil {
				return err
			}
			metrics.OutboxDroppedTotal.Inc()
			r.Log.Warn().Str("id", e.ID).Str("tenant_id", e.TenantID).Int("attempts", e.Attempts).Msg("outbox drop (max attempts), marked sent")
			continue
		}

		pubCtx, cancel := rabbit.WithTimeout(ctx)
		err := r.EventsPub.Publish(pubCtx, e.EventType, e.Payload, amqp.Table{
			"x-outbox-id": e.ID,
			"x-tenant-id": e.TenantID,
		})
		cancel()

		if err == nil {
			metrics.OutboxSentTotal.Inc()
			if _, err := tx.Exec(ctx, `update outbox_events set sent_at=now(), last_error=null where id=$1::uuid`, e.ID); err != nil {
				return err
			}
			continue
		}

		metrics.OutboxPublishErrorsTotal.Inc()
		next := now().Add(Backoff(e.Attempts+1, r.BackoffMax))
		if _, err2 := tx.Exec(ctx, `
			update outbox_events
			set attempts = attempts + 1,
			    next_attempt_at = $2,
			    last_error = $3
			where id = $1::uuid
		`, e.ID, next, err.Error()); err2 != nil {
			return err2
		}
		r.Log.Error().Err(err).Str("id", e.ID).Str("type", e.EventType).Int("attempts", e.Attempts+1).Time("next", next).Msg("publish failed -> retry scheduled")
	}
	return nil
}

// Pending counts events not yet sent.
func (r *Runner) Pending(ctx context.Context) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	var n int
	err := r.DB.QueryRow(ctx2, `select count(*) from outbox_events where sent_at is null`).Scan(&n)
	return n, err
}

// Backoff is 2^attempt seconds, at least 1s and at most max.
func Backoff(attempt int, max time.Duration) time.Duration {
	sec := math.Pow(2, float64(attempt))
	if sec >= max.Seconds() {
		return max
	}
	d := time.Duration(sec) * time.Second
	if d < time.Second {
		return time.Second
	}
	return d
}
