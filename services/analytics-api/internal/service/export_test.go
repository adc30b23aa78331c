package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-analytics/services/analytics-api/internal/stats"
	"storefront-analytics/services/analytics-api/internal/window"
)

func exportQuery(g stats.Grouping) Query {
	return Query{
		Window:   window.Params{From: "2026-03-01", To: "2026-03-03"},
		Grouping: g,
	}
}

func TestExport_CSV(t *testing.T) {
	r := &fakeReader{daily: []stats.DailyRow{
		{Day: "2026-03-01", Orders: 2, RevenueCents: 1999},
		{Day: "2026-03-03", Orders: 4, RevenueCents: 5001},
	}}
	s := &ExportService{Repo: r, Now: fixedNow}

	var buf bytes.Buffer
	require.NoError(t, s.Export(context.Background(), "tenant-a", exportQuery(stats.GroupDay), FormatCSV, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"bucket,orders,revenue_paid,orders_ma7,revenue_paid_ma7",
		"2026-03-01,2,19.99,2.00,19.99",
		"2026-03-02,0,0.00,1.00,10.00",
		"2026-03-03,4,50.01,2.00,23.33",
	}, lines)
}

func TestExport_JSON(t *testing.T) {
	r := &fakeReader{daily: []stats.DailyRow{{Day: "2026-03-02", Orders: 1, RevenueCents: 250}}}
	s := &ExportService{Repo: r, Now: fixedNow}

	var buf bytes.Buffer
	require.NoError(t, s.Export(context.Background(), "tenant-a", exportQuery(stats.GroupMonth), FormatJSON, &buf))

	var doc ExportDoc
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "tenant-a", doc.Tenant)
	assert.Equal(t, "2026-03-01", doc.Window.From)
	require.Len(t, doc.Rows, 1)
	assert.Equal(t, ExportRow{Bucket: "2026-03", Orders: 1, RevenuePaid: "2.50", OrdersMA7: "1.00", RevenuePaidMA7: "2.50"}, doc.Rows[0])
}

func TestExport_SeriesError(t *testing.T) {
	s := &ExportService{Repo: &fakeReader{failSeries: true}, Now: fixedNow}
	err := s.Export(context.Background(), "tenant-a", exportQuery(stats.GroupDay), FormatCSV, &bytes.Buffer{})
	assert.ErrorIs(t, err, errDB)
}

func TestExport_Filename(t *testing.T) {
	s := &ExportService{Now: fixedNow}
	name, err := s.Filename(exportQuery(stats.GroupWeek), FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "analytics-2026-03-01-2026-03-03-week.csv", name)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, "application/json", FormatJSON.ContentType())

	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0.00", Money(0))
	assert.Equal(t, "12.05", Money(1205))
	assert.Equal(t, "-3.50", Money(-350))
}
