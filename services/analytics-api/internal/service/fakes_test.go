package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-analytics/services/analytics-api/internal/repo"
	"storefront-analytics/services/analytics-api/internal/stats"
	"storefront-analytics/shared/pkg/models"
)

var (
	testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	errDB   = errors.New("db down")
)

func fixedNow() time.Time { return testNow }

type fakeReader struct {
	mu sync.Mutex

	daily   []stats.DailyRow
	kpis    map[time.Time]repo.KPIs // keyed by range start
	status  []repo.BreakdownRow
	methods []repo.BreakdownRow
	top     []repo.ProductRow
	split   repo.CustomerSplit

	failSeries, failKPIs, failStatus, failProducts bool

	seriesCalls int
	ranges      []repo.Range
	onSeries    func()
}

func (f *fakeReader) record(rg repo.Range) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, rg)
}

func (f *fakeReader) DailySeries(_ context.Context, _ string, rg repo.Range, _ repo.Filters) ([]stats.DailyRow, error) {
	f.record(rg)
	f.mu.Lock()
	f.seriesCalls++
	f.mu.Unlock()
	if f.onSeries != nil {
		f.onSeries()
	}
	if f.failSeries {
		return nil, errDB
	}
	return f.daily, nil
}

func (f *fakeReader) KPIs(_ context.Context, _ string, rg repo.Range, _ repo.Filters) (repo.KPIs, error) {
	f.record(rg)
	if f.failKPIs {
		return repo.KPIs{}, errDB
	}
	return f.kpis[rg.Start], nil
}

func (f *fakeReader) StatusBreakdown(context.Context, string, repo.Range, repo.Filters) ([]repo.BreakdownRow, error) {
	if f.failStatus {
		return nil, errDB
	}
	return f.status, nil
}

func (f *fakeReader) PaymentMethodBreakdown(context.Context, string, repo.Range, repo.Filters) ([]repo.BreakdownRow, error) {
	return f.methods, nil
}

func (f *fakeReader) TopProducts(_ context.Context, _ string, _ repo.Range, _ repo.Filters, limit int) ([]repo.ProductRow, error) {
	if f.failProducts {
		return nil, errDB
	}
	if len(f.top) > limit {
		return f.top[:limit], nil
	}
	return f.top, nil
}

func (f *fakeReader) CustomerSplit(context.Context, string, repo.Range, repo.Filters) (repo.CustomerSplit, error) {
	return f.split, nil
}

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	version int64
	sets    int
	failGet bool
}

func (c *memCache) k(tenantID, q string, ver int64) string {
	return fmt.Sprintf("%s|%d|%s", tenantID, ver, q)
}

func (c *memCache) Get(_ context.Context, tenantID, q string) ([]byte, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, 0, false, errors.New("redis down")
	}
	b, ok := c.data[c.k(tenantID, q, c.version)]
	return b, c.version, ok, nil
}

func (c *memCache) Set(_ context.Context, tenantID, q string, ver int64, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.data == nil {
		c.data = map[string][]byte{}
	}
	c.data[c.k(tenantID, q, ver)] = body
	c.sets++
	return nil
}

func (c *memCache) bump() {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
}

type fakeRefreshStore struct {
	got []models.Event[models.RebuildRequestedPayload]
	err error
}

func (s *fakeRefreshStore) Request(_ context.Context, evt models.Event[models.RebuildRequestedPayload]) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, evt)
	return nil
}
