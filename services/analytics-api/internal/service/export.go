package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"storefront-analytics/services/analytics-api/internal/metrics"
	"storefront-analytics/services/analytics-api/internal/stats"
	"storefront-analytics/services/analytics-api/internal/window"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown export format %q", ErrInvalidQuery, s)
}

func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv; charset=utf-8"
}

var csvHeader = []string{"bucket", "orders", "revenue_paid", "orders_ma7", "revenue_paid_ma7"}

type ExportRow struct {
	Bucket         string `json:"bucket"`
	Orders         int64  `json:"orders"`
	RevenuePaid    string `json:"revenue_paid"`
	OrdersMA7      string `json:"orders_ma7"`
	RevenuePaidMA7 string `json:"revenue_paid_ma7"`
}

type ExportDoc struct {
	Window  WindowInfo  `json:"window"`
	Rows    []ExportRow `json:"rows"`
	Tenant  string      `json:"tenant_id"`
	Created time.Time   `json:"generated_at"`
}

type ExportService struct {
	Repo Reader
	Now  func() time.Time
}

func (s *ExportService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Filename is the attachment name for an export of q.
func (s *ExportService) Filename(q Query, f Format) (string, error) {
	w, err := window.Resolve(q.Window, s.now())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("analytics-%s-%s-%s.%s", w.FromKey(), w.ToKey(), q.Grouping, f), nil
}

// Export writes the grouped series for q to out.
func (s *ExportService) Export(ctx context.Context, tenantID string, q Query, f Format, out io.Writer) error {
	w, err := window.Resolve(q.Window, s.now())
	if err != nil {
		return err
	}
	daily, err := s.Repo.DailySeries(ctx, tenantID, toRange(w), q.Filters)
	if err != nil {
		return fmt.Errorf("series: %w", err)
	}
	buckets, err := stats.Group(stats.Densify(daily, w.DayKeys()), q.Grouping)
	if err != nil {
		return err
	}
	rows := exportRows(seriesPoints(buckets))

	switch f {
	case FormatJSON:
		err = json.NewEncoder(out).Encode(ExportDoc{
			Window:  windowInfo(w, q.Grouping),
			Rows:    rows,
			Tenant:  tenantID,
			Created: s.now().UTC(),
		})
	default:
		err = writeCSV(out, rows)
	}
	if err == nil {
		metrics.ExportRowsTotal.WithLabelValues(string(f)).Add(float64(len(rows)))
	}
	return err
}

func exportRows(points []SeriesPoint) []ExportRow {
	rows := make([]ExportRow, len(points))
	for i, p := range points {
		rows[i] = ExportRow{
			Bucket:         p.Bucket,
			Orders:         p.Orders,
			RevenuePaid:    Money(p.RevenuePaidCents),
			OrdersMA7:      strconv.FormatFloat(p.OrdersMA7, 'f', 2, 64),
			RevenuePaidMA7: decimal.NewFromFloat(p.RevenuePaidMA7).Shift(-2).StringFixed(2),
		}
	}
	return rows
}

func writeCSV(out io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Bucket, strconv.FormatInt(r.Orders, 10), r.RevenuePaid, r.OrdersMA7, r.RevenuePaidMA7}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Money renders integer cents as a fixed two-decimal amount.
func Money(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
