package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storefront-analytics/shared/pkg/models"
)

type OutboxPG struct{}

// Enqueue writes an event into outbox_events within the given transaction.
func (o *OutboxPG) Enqueue(ctx context.Context, tx pgx.Tx, eventID, tenantID, eventType string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		insert into outbox_events(
			id, tenant_id, event_type, payload,
			attempts, next_attempt_at, created_at
		)
		values ($1::uuid, $2, $3, $4::jsonb, 0, now(), now())
	`, eventID, tenantID, eventType, string(b))
	return err
}

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type RefreshPG struct {
	DB     TxBeginner
	Outbox *OutboxPG
}

// Request records the rebuild request and its outbox event atomically.
func (r *RefreshPG) Request(ctx context.Context, evt models.Event[models.RebuildRequestedPayload]) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		insert into analytics_refresh_requests(id, tenant_id, range_start, range_end, requested_at)
		values ($1::uuid, $2, $3, $4, now())
	`, evt.Payload.RequestID, evt.TenantID, evt.Payload.From, evt.Payload.To); err != nil {
		return fmt.Errorf("insert refresh request: %w", err)
	}
	if err := r.Outbox.Enqueue(ctx, tx, evt.ID, evt.TenantID, evt.Type, evt); err != nil {
		return fmt.Errorf("outbox enqueue: %w", err)
	}
	return tx.Commit(ctx)
}
