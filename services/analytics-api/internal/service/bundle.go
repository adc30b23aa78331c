package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"storefront-analytics/services/analytics-api/internal/metrics"
	"storefront-analytics/services/analytics-api/internal/repo"
	"storefront-analytics/services/analytics-api/internal/stats"
	"storefront-analytics/services/analytics-api/internal/window"
)

// Reader is the read side of the analytics store.
type Reader interface {
	DailySeries(ctx context.Context, tenantID string, rg repo.Range, f repo.Filters) ([]stats.DailyRow, error)
	KPIs(ctx context.Context, tenantID string, rg repo.Range, f repo.Filters) (repo.KPIs, error)
	StatusBreakdown(ctx context.Context, tenantID string, rg repo.Range, f repo.Filters) ([]repo.BreakdownRow, error)
	PaymentMethodBreakdown(ctx context.Context, tenantID string, rg repo.Range, f repo.Filters) ([]repo.BreakdownRow, error)
	TopProducts(ctx context.Context, tenantID string, rg repo.Range, f repo.Filters, limit int) ([]repo.ProductRow, error)
	CustomerSplit(ctx context.Context, tenantID string, rg repo.Range, f repo.Filters) (repo.CustomerSplit, error)
}

// BundleCache reports the tenant version a lookup was made at; Set stores
// under that version.
type BundleCache interface {
	Get(ctx context.Context, tenantID, canonicalQuery string) (body []byte, version int64, hit bool, err error)
	Set(ctx context.Context, tenantID, canonicalQuery string, version int64, body []byte) error
}

type WindowInfo struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Start    time.Time      `json:"start"`
	End      time.Time      `json:"end"`
	Offset   int            `json:"tz_offset_minutes"`
	Days     int            `json:"days"`
	Grouping stats.Grouping `json:"grouping,omitempty"`
}

func windowInfo(w window.Window, g stats.Grouping) WindowInfo {
	return WindowInfo{From: w.FromKey(), To: w.ToKey(), Start: w.Start, End: w.End, Offset: w.Offset, Days: w.Days, Grouping: g}
}

type KPIModule struct {
	Current  repo.KPIs           `json:"current"`
	Previous repo.KPIs           `json:"previous"`
	Change   map[string]*float64 `json:"change_pct"`
}

type SeriesPoint struct {
	Bucket           string  `json:"bucket"`
	Orders           int64   `json:"orders"`
	RevenuePaidCents int64   `json:"revenue_paid_cents"`
	OrdersMA7        float64 `json:"orders_ma7"`
	RevenuePaidMA7   float64 `json:"revenue_paid_ma7"`
}

type SeriesModule struct {
	Points     []SeriesPoint       `json:"points"`
	LastChange map[string]*float64 `json:"last_change_pct"`
}

type BreakdownModule struct {
	Rows []repo.BreakdownRow `json:"rows"`
}

type ProductsModule struct {
	Rows []repo.ProductRow `json:"rows"`
}

type ProjectionsModule struct {
	ElapsedDays    int                `json:"elapsed_days"`
	DailyRateCents int64              `json:"daily_rate_cents"`
	TrendPct       *float64           `json:"trend_pct"`
	RunRate        []stats.Projection `json:"run_rate"`
}

type AnomaliesModule struct {
	MinAbsZ float64         `json:"min_abs_z"`
	Orders  []stats.Anomaly `json:"orders"`
	Revenue []stats.Anomaly `json:"revenue_paid"`
}

type ForecastModule struct {
	Buckets []string  `json:"buckets"`
	Orders  []float64 `json:"orders"`
	Revenue []float64 `json:"revenue_paid_cents"`
}

type Modules struct {
	KPIs        *KPIModule          `json:"kpis,omitempty"`
	Series      *SeriesModule       `json:"series,omitempty"`
	Orders      *BreakdownModule    `json:"orders,omitempty"`
	Payments    *BreakdownModule    `json:"payments,omitempty"`
	Products    *ProductsModule     `json:"products,omitempty"`
	Customers   *repo.CustomerSplit `json:"customers,omitempty"`
	Projections *ProjectionsModule  `json:"projections,omitempty"`
	Anomalies   *AnomaliesModule    `json:"anomalies,omitempty"`
	Forecast    *ForecastModule     `json:"forecast,omitempty"`
}

type Bundle struct {
	Window      WindowInfo   `json:"window"`
	Previous    WindowInfo   `json:"previous"`
	Filters     repo.Filters `json:"filters"`
	Modules     Modules      `json:"modules"`
	Warnings    []string     `json:"warnings"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type BundleService struct {
	Repo  Reader
	Cache BundleCache
	Log   zerolog.Logger
	Now   func() time.Time

	AnomalyMinZ  float64
	TopProducts  int
	QueryTimeout time.Duration
}

func (s *BundleService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// BuildJSON returns the encoded bundle, serving it from cache when the
// tenant's data has not changed since it was stored.
func (s *BundleService) BuildJSON(ctx context.Context, tenantID string, q Query) (body []byte, hit bool, err error) {
	w, err := window.Resolve(q.Window, s.now())
	if err != nil {
		return nil, false, err
	}
	key := canonical(q, w)

	var (
		version   int64
		cacheable = s.Cache != nil
	)
	if s.Cache != nil {
		b, ver, ok, err := s.Cache.Get(ctx, tenantID, key)
		if err != nil {
			// version unknown: build uncached
			cacheable = false
			s.Log.Warn().Err(err).Str("tenant_id", tenantID).Msg("bundle cache get failed")
		}
		version = ver
		if ok {
			metrics.BundleCacheTotal.WithLabelValues("hit").Inc()
			return b, true, nil
		}
		metrics.BundleCacheTotal.WithLabelValues("miss").Inc()
	}

	bundle, err := s.build(ctx, tenantID, q, w)
	if err != nil {
		return nil, false, err
	}
	body, err = json.Marshal(bundle)
	if err != nil {
		return nil, false, err
	}
	// Degraded bundles are not cached so the next request retries the
	// failed breakdowns.
	if cacheable && len(bundle.Warnings) == 0 {
		if err := s.Cache.Set(ctx, tenantID, key, version, body); err != nil {
			s.Log.Warn().Err(err).Str("tenant_id", tenantID).Msg("bundle cache set failed")
		}
	}
	return body, false, nil
}

func (s *BundleService) Build(ctx context.Context, tenantID string, q Query) (Bundle, error) {
	w, err := window.Resolve(q.Window, s.now())
	if err != nil {
		return Bundle{}, err
	}
	return s.build(ctx, tenantID, q, w)
}

func (s *BundleService) build(ctx context.Context, tenantID string, q Query, w window.Window) (Bundle, error) {
	if s.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.QueryTimeout)
		defer cancel()
	}

	prev := w.Previous()
	cur := toRange(w)
	prevRange := toRange(prev)

	needSeries := q.Has(ModuleSeries) || q.Has(ModuleAnomalies) || q.Has(ModuleForecast)
	needKPIs := q.Has(ModuleKPIs) || q.Has(ModuleProjections)

	var (
		mu       sync.Mutex
		warnings []string
		daily    []stats.DailyRow
		kCur     repo.KPIs
		kPrev    repo.KPIs
		out      Modules
	)
	degrade := func(module string, err error) {
		s.Log.Warn().Err(err).Str("tenant_id", tenantID).Str("module", module).Msg("optional module degraded")
		metrics.ModuleFailuresTotal.WithLabelValues(module).Inc()
		mu.Lock()
		warnings = append(warnings, module+": unavailable")
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	if needSeries {
		g.Go(func() error {
			rows, err := s.Repo.DailySeries(gctx, tenantID, cur, q.Filters)
			if err != nil {
				return fmt.Errorf("series: %w", err)
			}
			daily = rows
			return nil
		})
	}
	if needKPIs {
		g.Go(func() error {
			k, err := s.Repo.KPIs(gctx, tenantID, cur, q.Filters)
			if err != nil {
				return fmt.Errorf("kpis: %w", err)
			}
			kCur = k
			return nil
		})
		g.Go(func() error {
			k, err := s.Repo.KPIs(gctx, tenantID, prevRange, q.Filters)
			if err != nil {
				return fmt.Errorf("kpis previous: %w", err)
			}
			kPrev = k
			return nil
		})
	}

	// Optional breakdowns never fail the group; they swallow their error
	// and leave an empty module behind.
	if q.Has(ModuleOrders) {
		out.Orders = &BreakdownModule{Rows: []repo.BreakdownRow{}}
		g.Go(func() error {
			rows, err := s.Repo.StatusBreakdown(gctx, tenantID, cur, q.Filters)
			if err != nil {
				degrade(ModuleOrders, err)
				return nil
			}
			if rows != nil {
				out.Orders.Rows = rows
			}
			return nil
		})
	}
	if q.Has(ModulePayments) {
		out.Payments = &BreakdownModule{Rows: []repo.BreakdownRow{}}
		g.Go(func() error {
			rows, err := s.Repo.PaymentMethodBreakdown(gctx, tenantID, cur, q.Filters)
			if err != nil {
				degrade(ModulePayments, err)
				return nil
			}
			if rows != nil {
				out.Payments.Rows = rows
			}
			return nil
		})
	}
	if q.Has(ModuleProducts) {
		out.Products = &ProductsModule{Rows: []repo.ProductRow{}}
		g.Go(func() error {
			rows, err := s.Repo.TopProducts(gctx, tenantID, cur, q.Filters, s.topProducts())
			if err != nil {
				degrade(ModuleProducts, err)
				return nil
			}
			if rows != nil {
				out.Products.Rows = rows
			}
			return nil
		})
	}
	if q.Has(ModuleCustomers) {
		out.Customers = &repo.CustomerSplit{}
		g.Go(func() error {
			c, err := s.Repo.CustomerSplit(gctx, tenantID, cur, q.Filters)
			if err != nil {
				degrade(ModuleCustomers, err)
				return nil
			}
			*out.Customers = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Bundle{}, err
	}

	var buckets []stats.Bucket
	if needSeries {
		var err error
		buckets, err = stats.Group(stats.Densify(daily, w.DayKeys()), q.Grouping)
		if err != nil {
			return Bundle{}, fmt.Errorf("series: %w", err)
		}
	}

	if q.Has(ModuleKPIs) {
		out.KPIs = &KPIModule{Current: kCur, Previous: kPrev, Change: kpiChange(kCur, kPrev)}
	}
	if q.Has(ModuleSeries) {
		out.Series = seriesModule(buckets)
	}
	if q.Has(ModuleAnomalies) {
		out.Anomalies = s.anomalies(q, buckets)
	}
	if q.Has(ModuleForecast) {
		fm, err := forecastModule(buckets, q.Grouping)
		if err != nil {
			return Bundle{}, fmt.Errorf("forecast: %w", err)
		}
		out.Forecast = fm
	}
	if q.Has(ModuleProjections) {
		out.Projections = projections(w, s.now(), kCur, kPrev)
	}

	if warnings == nil {
		warnings = []string{}
	}
	sort.Strings(warnings)
	return Bundle{
		Window:      windowInfo(w, q.Grouping),
		Previous:    windowInfo(prev, ""),
		Filters:     q.Filters,
		Modules:     out,
		Warnings:    warnings,
		GeneratedAt: s.now().UTC(),
	}, nil
}

func (s *BundleService) topProducts() int {
	if s.TopProducts > 0 {
		return s.TopProducts
	}
	return 10
}

func (s *BundleService) anomalies(q Query, buckets []stats.Bucket) *AnomaliesModule {
	minZ := s.AnomalyMinZ
	if q.AnomalyMinZ != nil {
		minZ = *q.AnomalyMinZ
	}
	keys := bucketKeys(buckets)
	return &AnomaliesModule{
		MinAbsZ: minZ,
		Orders:  stats.Anomalies(keys, stats.OrdersOf(buckets), minZ, stats.DefaultAnomalyLimit),
		Revenue: stats.Anomalies(keys, stats.RevenueOf(buckets), minZ, stats.DefaultAnomalyLimit),
	}
}

func toRange(w window.Window) repo.Range {
	return repo.Range{Start: w.Start, End: w.End, Interval: w.Interval()}
}

func bucketKeys(b []stats.Bucket) []string {
	keys := make([]string, len(b))
	for i := range b {
		keys[i] = b[i].Key
	}
	return keys
}

func kpiChange(cur, prev repo.KPIs) map[string]*float64 {
	return map[string]*float64{
		"orders":          stats.Pct(float64(cur.Orders), float64(prev.Orders)),
		"paid_orders":     stats.Pct(float64(cur.PaidOrders), float64(prev.PaidOrders)),
		"revenue_paid":    stats.Pct(float64(cur.RevenuePaidCents), float64(prev.RevenuePaidCents)),
		"average_order":   stats.Pct(float64(cur.AverageOrderCents), float64(prev.AverageOrderCents)),
		"cancelled":       stats.Pct(float64(cur.CancelledOrders), float64(prev.CancelledOrders)),
		"refunded":        stats.Pct(float64(cur.RefundedCents), float64(prev.RefundedCents)),
		"return_requests": stats.Pct(float64(cur.ReturnRequests), float64(prev.ReturnRequests)),
		"new_customers":   stats.Pct(float64(cur.NewCustomers), float64(prev.NewCustomers)),
	}
}

const maWindow = 7

func seriesPoints(buckets []stats.Bucket) []SeriesPoint {
	ordersMA := stats.MovingAverage(stats.OrdersOf(buckets), maWindow)
	revenueMA := stats.MovingAverage(stats.RevenueOf(buckets), maWindow)
	points := make([]SeriesPoint, len(buckets))
	for i, b := range buckets {
		points[i] = SeriesPoint{
			Bucket:           b.Key,
			Orders:           b.Orders,
			RevenuePaidCents: b.RevenueCents,
			OrdersMA7:        stats.Round(ordersMA[i], 2),
			RevenuePaidMA7:   stats.Round(revenueMA[i], 2),
		}
	}
	return points
}

func seriesModule(buckets []stats.Bucket) *SeriesModule {
	m := &SeriesModule{
		Points:     seriesPoints(buckets),
		LastChange: map[string]*float64{"orders": nil, "revenue_paid": nil},
	}
	if n := len(buckets); n >= 2 {
		last, prev := buckets[n-1], buckets[n-2]
		m.LastChange["orders"] = stats.Pct(float64(last.Orders), float64(prev.Orders))
		m.LastChange["revenue_paid"] = stats.Pct(float64(last.RevenueCents), float64(prev.RevenueCents))
	}
	return m
}

func forecastModule(buckets []stats.Bucket, g stats.Grouping) (*ForecastModule, error) {
	fm := &ForecastModule{Buckets: []string{}, Orders: []float64{}, Revenue: []float64{}}
	if len(buckets) == 0 {
		return fm, nil
	}
	keys, err := stats.NextKeys(buckets[len(buckets)-1].Key, g, stats.ForecastHorizon)
	if err != nil {
		return nil, err
	}
	fm.Buckets = keys
	fm.Orders = stats.Forecast(stats.OrdersOf(buckets), stats.ForecastLookback, stats.ForecastHorizon)
	fm.Revenue = stats.Forecast(stats.RevenueOf(buckets), stats.ForecastLookback, stats.ForecastHorizon)
	return fm, nil
}

func projections(w window.Window, now time.Time, cur, prev repo.KPIs) *ProjectionsModule {
	elapsed := w.Elapsed(now)
	trend := stats.Pct(float64(cur.RevenuePaidCents), float64(prev.RevenuePaidCents))
	var t float64
	if trend != nil {
		t = *trend
	}
	return &ProjectionsModule{
		ElapsedDays:    elapsed,
		DailyRateCents: cur.RevenuePaidCents / int64(elapsed),
		TrendPct:       trend,
		RunRate:        stats.RunRate(cur.RevenuePaidCents, elapsed, t),
	}
}
