package service

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"storefront-analytics/services/analytics-api/internal/repo"
	"storefront-analytics/services/analytics-api/internal/stats"
	"storefront-analytics/services/analytics-api/internal/window"
	"storefront-analytics/shared/pkg/models"
)

var (
	ErrInvalidQuery  = errors.New("invalid query")
	ErrUnknownModule = errors.New("unknown module")
)

const (
	ModuleKPIs        = "kpis"
	ModuleSeries      = "series"
	ModuleOrders      = "orders"
	ModulePayments    = "payments"
	ModuleProducts    = "products"
	ModuleCustomers   = "customers"
	ModuleProjections = "projections"
	ModuleAnomalies   = "anomalies"
	ModuleForecast    = "forecast"
)

// AllModules is the default module set, in response order.
var AllModules = []string{
	ModuleKPIs, ModuleSeries, ModuleOrders, ModulePayments, ModuleProducts,
	ModuleCustomers, ModuleProjections, ModuleAnomalies, ModuleForecast,
}

type Query struct {
	Window      window.Params
	Grouping    stats.Grouping
	Filters     repo.Filters
	Modules     []string
	AnomalyMinZ *float64
}

func (q Query) Has(module string) bool {
	for _, m := range q.Modules {
		if m == module {
			return true
		}
	}
	return false
}

// ParseQuery reads bundle and export parameters:
// range, from, to, tz, group, status, payment_method, modules, anomaly_z.
func ParseQuery(v url.Values) (Query, error) {
	q := Query{
		Window: window.Params{
			Range: strings.TrimSpace(v.Get("range")),
			From:  strings.TrimSpace(v.Get("from")),
			To:    strings.TrimSpace(v.Get("to")),
		},
		Filters: repo.Filters{
			Status:        strings.ToLower(strings.TrimSpace(v.Get("status"))),
			PaymentMethod: strings.ToLower(strings.TrimSpace(v.Get("payment_method"))),
		},
	}

	if raw := strings.TrimSpace(v.Get("tz")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Query{}, fmt.Errorf("%w: tz must be minutes east of UTC", ErrInvalidQuery)
		}
		q.Window.Offset = n
	}

	g, err := stats.ParseGrouping(strings.TrimSpace(v.Get("group")))
	if err != nil {
		return Query{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	q.Grouping = g

	if q.Filters.Status != "" && !models.OrderStatus(q.Filters.Status).Valid() {
		return Query{}, fmt.Errorf("%w: unknown status %q", ErrInvalidQuery, q.Filters.Status)
	}

	if raw := strings.TrimSpace(v.Get("anomaly_z")); raw != "" {
		z, err := strconv.ParseFloat(raw, 64)
		if err != nil || z < 0 {
			return Query{}, fmt.Errorf("%w: anomaly_z must be a non-negative number", ErrInvalidQuery)
		}
		q.AnomalyMinZ = &z
	}

	q.Modules, err = parseModules(v.Get("modules"))
	if err != nil {
		return Query{}, err
	}
	return q, nil
}

func parseModules(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]string(nil), AllModules...), nil
	}
	known := make(map[string]int, len(AllModules))
	for i, m := range AllModules {
		known[m] = i
	}
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		m := strings.ToLower(strings.TrimSpace(part))
		if m == "" || seen[m] {
			continue
		}
		if _, ok := known[m]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownModule, m)
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return known[out[i]] < known[out[j]] })
	return out, nil
}

// canonical renders the resolved query as a stable cache key input.
func canonical(q Query, w window.Window) string {
	z := "-"
	if q.AnomalyMinZ != nil {
		z = strconv.FormatFloat(*q.AnomalyMinZ, 'f', -1, 64)
	}
	return strings.Join([]string{
		"from=" + w.FromKey(),
		"to=" + w.ToKey(),
		"tz=" + strconv.Itoa(w.Offset),
		"group=" + string(q.Grouping),
		"status=" + q.Filters.Status,
		"pm=" + q.Filters.PaymentMethod,
		"modules=" + strings.Join(q.Modules, ","),
		"z=" + z,
	}, "&")
}
