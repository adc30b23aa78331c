package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"storefront-analytics/services/analytics-projector/internal/rollup"
)

// TxBeginner is satisfied by *pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type RollupPG struct{ DB TxBeginner }

// markProcessed returns true if inserted (new), false if already processed.
func markProcessed(ctx context.Context, tx pgx.Tx, eventID string) (bool, error) {
	ct, err := tx.Exec(ctx, `insert into processed_events(event_id) values ($1) on conflict do nothing`, eventID)
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// Apply adds d to the tenant's slot and records eventID in one transaction.
// A duplicate event id leaves the rollup untouched and reports false.
func (r *RollupPG) Apply(ctx context.Context, eventID, tenantID string, slot time.Time, d rollup.Delta) (bool, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := markProcessed(ctx, tx, eventID)
	if err != nil || !fresh {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		insert into analytics_rollup_15m(
			tenant_id, slot, orders, paid_orders, revenue_paid_cents,
			cancelled_orders, refunded_cents, updated_at
		)
		values ($1, $2, $3, $4, $5, $6, $7, now())
		on conflict (tenant_id, slot) do update
		set orders             = analytics_rollup_15m.orders + excluded.orders,
		    paid_orders        = analytics_rollup_15m.paid_orders + excluded.paid_orders,
		    revenue_paid_cents = analytics_rollup_15m.revenue_paid_cents + excluded.revenue_paid_cents,
		    cancelled_orders   = analytics_rollup_15m.cancelled_orders + excluded.cancelled_orders,
		    refunded_cents     = analytics_rollup_15m.refunded_cents + excluded.refunded_cents,
		    updated_at         = now()
	`, tenantID, slot, d.Orders, d.PaidOrders, d.RevenuePaidCents, d.CancelledOrders, d.RefundedCents); err != nil {
		return false, fmt.Errorf("upsert slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// Rebuild replaces the tenant's slots in [rb.From, rb.To) with aggregates
// read from orders and refunds, and marks the refresh request completed.
func (r *RollupPG) Rebuild(ctx context.Context, eventID, tenantID string, rb rollup.Rebuild) (bool, error) {
	from, to := rb.From, rb.To
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fresh, err := markProcessed(ctx, tx, eventID)
	if err != nil || !fresh {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		delete from analytics_rollup_15m
		where tenant_id = $1 and slot >= $2 and slot < $3
	`, tenantID, from, to); err != nil {
		return false, fmt.Errorf("clear slots: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		insert into analytics_rollup_15m(
			tenant_id, slot, orders, paid_orders, revenue_paid_cents,
			cancelled_orders, refunded_cents, updated_at
		)
		select $1, slot,
		       sum(orders), sum(paid_orders), sum(revenue_paid_cents),
		       sum(cancelled_orders), sum(refunded_cents), now()
		from (
			select date_bin('15 minutes', o.created_at, timestamptz 'epoch') as slot,
			       count(*) as orders,
			       count(*) filter (where o.paid_at is not null) as paid_orders,
			       coalesce(sum(o.total_cents) filter (where o.paid_at is not null), 0) as revenue_paid_cents,
			       count(*) filter (where o.status = 'cancelled') as cancelled_orders,
			       0::bigint as refunded_cents
			from orders o
			where o.tenant_id = $1 and o.created_at >= $2 and o.created_at < $3
			group by 1
			union all
			select date_bin('15 minutes', f.created_at, timestamptz 'epoch'),
			       0, 0, 0, 0,
			       coalesce(sum(f.amount_cents), 0)
			from refunds f
			where f.tenant_id = $1 and f.created_at >= $2 and f.created_at < $3
			group by 1
		) parts
		group by slot
	`, tenantID, from, to); err != nil {
		return false, fmt.Errorf("rebuild slots: %w", err)
	}

	if rb.RequestID != "" {
		if _, err := tx.Exec(ctx, `
			update analytics_refresh_requests
			set completed_at = now()
			where id = $1::uuid and tenant_id = $2
		`, rb.RequestID, tenantID); err != nil {
			return false, fmt.Errorf("complete refresh request: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}
