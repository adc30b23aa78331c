package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"storefront-analytics/services/analytics-api/internal/stats"
)

// DB is satisfied by *pgxpool.Pool and pgx.Tx.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type KPIs struct {
	Orders            int64 `json:"orders"`
	PaidOrders        int64 `json:"paid_orders"`
	RevenuePaidCents  int64 `json:"revenue_paid_cents"`
	CancelledOrders   int64 `json:"cancelled_orders"`
	RefundedCents     int64 `json:"refunded_cents"`
	ReturnRequests    int64 `json:"return_requests"`
	NewCustomers      int64 `json:"new_customers"`
	AverageOrderCents int64 `json:"average_order_cents"`
}

type BreakdownRow struct {
	Key        string `json:"key"`
	Orders     int64  `json:"orders"`
	TotalCents int64  `json:"total_cents"`
}

type ProductRow struct {
	SKU          string `json:"sku"`
	Name         string `json:"name"`
	Units        int64  `json:"units"`
	RevenueCents int64  `json:"revenue_cents"`
}

type CustomerSplit struct {
	New       int64 `json:"new"`
	Returning int64 `json:"returning"`
}

type AnalyticsPG struct {
	DB DB
}

// DailySeries reads per-day orders and paid revenue. Unfiltered calls are
// served from the 15-minute rollup kept by the projector; filtered ones
// aggregate orders directly since the rollup has no status or method
// dimension.
func (r *AnalyticsPG) DailySeries(ctx context.Context, tenantID string, rg Range, f Filters) ([]stats.DailyRow, error) {
	var (
		q    string
		args []any
	)
	if f.Empty() {
		q = `
			select to_char((slot at time zone 'UTC' + $4::interval)::date, 'YYYY-MM-DD') as day,
			       coalesce(sum(orders), 0),
			       coalesce(sum(revenue_paid_cents), 0)
			from analytics_rollup_15m
			where tenant_id = $1 and slot >= $2 and slot < $3
			group by 1
			order by 1`
		args = []any{tenantID, rg.Start, rg.End, rg.Interval}
	} else {
		s := newOrderScope("o", tenantID, rg, f)
		iv := s.bind(rg.Interval)
		q = fmt.Sprintf(`
			select to_char((o.created_at at time zone 'UTC' + %s::interval)::date, 'YYYY-MM-DD') as day,
			       count(*),
			       coalesce(sum(o.total_cents) filter (where o.paid_at is not null), 0)
			from orders o
			where %s
			group by 1
			order by 1`, iv, s.SQL())
		args = s.args
	}

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("daily series: %w", err)
	}
	defer rows.Close()

	var out []stats.DailyRow
	for rows.Next() {
		var d stats.DailyRow
		if err := rows.Scan(&d.Day, &d.Orders, &d.RevenueCents); err != nil {
			return nil, fmt.Errorf("daily series scan: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// KPIs issues the headline counters as one batch round trip.
func (r *AnalyticsPG) KPIs(ctx context.Context, tenantID string, rg Range, f Filters) (KPIs, error) {
	s := newOrderScope("o", tenantID, rg, f)

	b := &pgx.Batch{}
	b.Queue(fmt.Sprintf(`
		select count(*),
		       count(*) filter (where o.paid_at is not null),
		       coalesce(sum(o.total_cents) filter (where o.paid_at is not null), 0),
		       count(*) filter (where o.status = 'cancelled')
		from orders o
		where %s`, s.SQL()), s.args...)
	b.Queue(`
		select coalesce(sum(amount_cents), 0)
		from refunds
		where tenant_id = $1 and created_at >= $2 and created_at < $3`, tenantID, rg.Start, rg.End)
	b.Queue(`
		select count(*)
		from return_requests
		where tenant_id = $1 and created_at >= $2 and created_at < $3`, tenantID, rg.Start, rg.End)
	b.Queue(`
		select count(*)
		from users
		where tenant_id = $1 and created_at >= $2 and created_at < $3`, tenantID, rg.Start, rg.End)

	br := r.DB.SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	var k KPIs
	if err := br.QueryRow().Scan(&k.Orders, &k.PaidOrders, &k.RevenuePaidCents, &k.CancelledOrders); err != nil {
		return KPIs{}, fmt.Errorf("kpis orders: %w", err)
	}
	if err := br.QueryRow().Scan(&k.RefundedCents); err != nil {
		return KPIs{}, fmt.Errorf("kpis refunds: %w", err)
	}
	if err := br.QueryRow().Scan(&k.ReturnRequests); err != nil {
		return KPIs{}, fmt.Errorf("kpis returns: %w", err)
	}
	if err := br.QueryRow().Scan(&k.NewCustomers); err != nil {
		return KPIs{}, fmt.Errorf("kpis customers: %w", err)
	}
	if k.PaidOrders > 0 {
		k.AverageOrderCents = k.RevenuePaidCents / k.PaidOrders
	}
	return k, nil
}

func (r *AnalyticsPG) StatusBreakdown(ctx context.Context, tenantID string, rg Range, f Filters) ([]BreakdownRow, error) {
	s := newOrderScope("o", tenantID, rg, f)
	return r.breakdown(ctx, fmt.Sprintf(`
		select o.status, count(*), coalesce(sum(o.total_cents), 0)
		from orders o
		where %s
		group by o.status
		order by 2 desc, 1`, s.SQL()), s.args)
}

func (r *AnalyticsPG) PaymentMethodBreakdown(ctx context.Context, tenantID string, rg Range, f Filters) ([]BreakdownRow, error) {
	s := newOrderScope("o", tenantID, rg, f)
	return r.breakdown(ctx, fmt.Sprintf(`
		select coalesce(nullif(o.payment_method, ''), 'unknown'), count(*), coalesce(sum(o.total_cents), 0)
		from orders o
		where %s and o.paid_at is not null
		group by 1
		order by 3 desc, 1`, s.SQL()), s.args)
}

func (r *AnalyticsPG) breakdown(ctx context.Context, q string, args []any) ([]BreakdownRow, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BreakdownRow{}
	for rows.Next() {
		var b BreakdownRow
		if err := rows.Scan(&b.Key, &b.Orders, &b.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *AnalyticsPG) TopProducts(ctx context.Context, tenantID string, rg Range, f Filters, limit int) ([]ProductRow, error) {
	s := newOrderScope("o", tenantID, rg, f)
	lim := s.bind(limit)
	rows, err := r.DB.Query(ctx, fmt.Sprintf(`
		select i.sku, coalesce(max(i.product_name), ''), sum(i.qty), sum(i.qty::bigint * i.price_cents)
		from order_items i
		join orders o on o.id = i.order_id
		where %s and o.paid_at is not null
		group by i.sku
		order by 4 desc, 1
		limit %s`, s.SQL(), lim), s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []ProductRow{}
	for rows.Next() {
		var p ProductRow
		if err := rows.Scan(&p.SKU, &p.Name, &p.Units, &p.RevenueCents); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CustomerSplit counts buyers in the window whose first ever order falls
// inside it (new) versus those who ordered before (returning).
func (r *AnalyticsPG) CustomerSplit(ctx context.Context, tenantID string, rg Range, f Filters) (CustomerSplit, error) {
	s := newOrderScope("o", tenantID, rg, f)
	var c CustomerSplit
	err := r.DB.QueryRow(ctx, fmt.Sprintf(`
		with buyers as (
			select distinct o.user_id
			from orders o
			where %s and o.user_id is not null
		)
		select count(*) filter (where not exists (
		           select 1 from orders p
		           where p.tenant_id = $1 and p.user_id = b.user_id and p.created_at < $2)),
		       count(*) filter (where exists (
		           select 1 from orders p
		           where p.tenant_id = $1 and p.user_id = b.user_id and p.created_at < $2))
		from buyers b`, s.SQL()), s.args...).Scan(&c.New, &c.Returning)
	return c, err
}
