package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-analytics/services/analytics-projector/internal/rollup"
	"storefront-analytics/shared/pkg/models"
	"storefront-analytics/shared/pkg/rabbit"
)

type applyCall struct {
	eventID, tenantID string
	slot              time.Time
	delta             rollup.Delta
}

type fakeStore struct {
	seen     map[string]bool
	applies  []applyCall
	rebuilds []rollup.Rebuild
	err      error
}

func (s *fakeStore) mark(id string) bool {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if s.seen[id] {
		return false
	}
	s.seen[id] = true
	return true
}

func (s *fakeStore) Apply(_ context.Context, eventID, tenantID string, slot time.Time, d rollup.Delta) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if !s.mark(eventID) {
		return false, nil
	}
	s.applies = append(s.applies, applyCall{eventID, tenantID, slot, d})
	return true, nil
}

func (s *fakeStore) Rebuild(_ context.Context, eventID, _ string, rb rollup.Rebuild) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if !s.mark(eventID) {
		return false, nil
	}
	s.rebuilds = append(s.rebuilds, rb)
	return true, nil
}

type fakeVersions struct{ keys []string }

func (v *fakeVersions) Incr(_ context.Context, key string) (int64, error) {
	v.keys = append(v.keys, key)
	return int64(len(v.keys)), nil
}

type fakeAck struct{ acks, nacks int }

func (a *fakeAck) Ack(uint64, bool) error        { a.acks++; return nil }
func (a *fakeAck) Nack(uint64, bool, bool) error { a.nacks++; return nil }
func (a *fakeAck) Reject(uint64, bool) error     { a.nacks++; return nil }

type pub struct {
	exchange, key string
	headers       amqp.Table
}

type fakeChannel struct{ out []pub }

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.out = append(f.out, pub{exchange, key, msg.Headers})
	return nil
}

type harness struct {
	c        *Consumer
	store    *fakeStore
	versions *fakeVersions
	ch       *fakeChannel
}

func newHarness(max int32) *harness {
	h := &harness{store: &fakeStore{}, versions: &fakeVersions{}, ch: &fakeChannel{}}
	h.c = &Consumer{
		Log:      zerolog.Nop(),
		Store:    h.store,
		Versions: h.versions,
		Retry: rabbit.RetryPolicy{
			Service:     "analytics",
			MaxAttempts: max,
			RetryPub:    rabbit.NewPublisher(h.ch, rabbit.ExchangeRetry),
			DLQPub:      rabbit.NewPublisher(h.ch, rabbit.ExchangeDLX),
			DLQKey:      "analytics.dlq",
		},
		now: func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	}
	return h
}

func delivery(t *testing.T, ack *fakeAck, rk string, evt any, headers amqp.Table) amqp.Delivery {
	t.Helper()
	body, ok := evt.([]byte)
	if !ok {
		var err error
		body, err = json.Marshal(evt)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, RoutingKey: rk, Body: body, Headers: headers}
}

func orderCreated(id string) models.Event[models.OrderCreatedPayload] {
	e := models.NewEvent(models.TypeOrderCreated, "tenant-a", "o1", models.OrderCreatedPayload{
		TotalCents: 1200,
		PlacedAt:   time.Date(2026, 3, 1, 10, 20, 0, 0, time.UTC),
	})
	e.ID = id
	return e
}

func TestHandle_AppliesAndBumpsVersion(t *testing.T) {
	h := newHarness(5)
	ack := &fakeAck{}

	h.c.handle(context.Background(), delivery(t, ack, models.TypeOrderCreated, orderCreated("e1"), nil))

	require.Len(t, h.store.applies, 1)
	got := h.store.applies[0]
	assert.Equal(t, "tenant-a", got.tenantID)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC), got.slot)
	assert.Equal(t, rollup.Delta{Orders: 1}, got.delta)
	assert.Equal(t, []string{"analytics:tenant-a:ver"}, h.versions.keys)
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, h.ch.out)
}

func TestHandle_DuplicateIsAckedWithoutBump(t *testing.T) {
	h := newHarness(5)
	ack := &fakeAck{}
	d := delivery(t, ack, models.TypeOrderCreated, orderCreated("e1"), nil)

	h.c.handle(context.Background(), d)
	h.c.handle(context.Background(), d)

	assert.Len(t, h.store.applies, 1)
	assert.Len(t, h.versions.keys, 1)
	assert.Equal(t, 2, ack.acks)
}

func TestHandle_BadJSONGoesToDLQ(t *testing.T) {
	h := newHarness(5)
	ack := &fakeAck{}

	h.c.handle(context.Background(), delivery(t, ack, models.TypeOrderCreated, []byte(`{not json`), nil))

	require.Len(t, h.ch.out, 1)
	assert.Equal(t, rabbit.ExchangeDLX, h.ch.out[0].exchange)
	assert.Equal(t, "analytics.dlq", h.ch.out[0].key)
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, h.store.applies)
}

func TestHandle_MissingTenantGoesToDLQ(t *testing.T) {
	h := newHarness(5)
	evt := orderCreated("e1")
	evt.TenantID = ""

	h.c.handle(context.Background(), delivery(t, &fakeAck{}, models.TypeOrderCreated, evt, nil))

	require.Len(t, h.ch.out, 1)
	assert.Equal(t, rabbit.ExchangeDLX, h.ch.out[0].exchange)
}

func TestHandle_StoreFailureSchedulesRetry(t *testing.T) {
	h := newHarness(5)
	h.store.err = errors.New("pg down")
	ack := &fakeAck{}

	h.c.handle(context.Background(), delivery(t, ack, models.TypeOrderCreated, orderCreated("e1"), amqp.Table{rabbit.HeaderAttempts: int32(1)}))

	require.Len(t, h.ch.out, 1)
	assert.Equal(t, rabbit.ExchangeRetry, h.ch.out[0].exchange)
	assert.Equal(t, "analytics.orders.created", h.ch.out[0].key)
	assert.Equal(t, int32(2), h.ch.out[0].headers[rabbit.HeaderAttempts])
	assert.Empty(t, h.versions.keys)
}

func TestHandle_RedeliveredRetryKeepsEventRoutingKey(t *testing.T) {
	h := newHarness(5)
	h.store.err = errors.New("pg down")

	// retried copies come back via the default exchange keyed by queue name
	d := delivery(t, &fakeAck{}, "analytics.q", orderCreated("e1"), amqp.Table{rabbit.HeaderAttempts: int32(2)})
	h.c.handle(context.Background(), d)

	require.Len(t, h.ch.out, 1)
	assert.Equal(t, rabbit.ExchangeRetry, h.ch.out[0].exchange)
	assert.Equal(t, "analytics.orders.created", h.ch.out[0].key)
	assert.Equal(t, int32(3), h.ch.out[0].headers[rabbit.HeaderAttempts])
}

func TestHandle_StoreFailureAtMaxAttemptsDeadLetters(t *testing.T) {
	h := newHarness(3)
	h.store.err = errors.New("pg down")

	h.c.handle(context.Background(), delivery(t, &fakeAck{}, models.TypeOrderCreated, orderCreated("e1"), amqp.Table{rabbit.HeaderAttempts: int32(3)}))

	require.Len(t, h.ch.out, 1)
	assert.Equal(t, rabbit.ExchangeDLX, h.ch.out[0].exchange)
}

func TestHandle_UnsupportedTypeIsSkipped(t *testing.T) {
	h := newHarness(5)
	ack := &fakeAck{}
	evt := models.NewEvent("inventory.reserved", "tenant-a", "o1", map[string]string{})

	h.c.handle(context.Background(), delivery(t, ack, "inventory.reserved", evt, nil))

	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, h.store.applies)
	assert.Empty(t, h.ch.out)
}

func TestHandle_Rebuild(t *testing.T) {
	h := newHarness(5)
	from := time.Date(2026, 2, 28, 23, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)
	evt := models.NewEvent(models.TypeRebuildRequested, "tenant-a", "", models.RebuildRequestedPayload{RequestID: "r1", From: from, To: to})

	h.c.handle(context.Background(), delivery(t, &fakeAck{}, models.TypeRebuildRequested, evt, nil))

	assert.Equal(t, []rollup.Rebuild{{RequestID: "r1", From: from, To: to}}, h.store.rebuilds)
	assert.Equal(t, []string{"analytics:tenant-a:ver"}, h.versions.keys)
}

func TestHandle_RebuildWithEmptyRangeDeadLetters(t *testing.T) {
	h := newHarness(5)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	evt := models.NewEvent(models.TypeRebuildRequested, "tenant-a", "", models.RebuildRequestedPayload{From: at, To: at})

	h.c.handle(context.Background(), delivery(t, &fakeAck{}, models.TypeRebuildRequested, evt, nil))

	assert.Empty(t, h.store.rebuilds)
	require.Len(t, h.ch.out, 1)
	assert.Equal(t, rabbit.ExchangeDLX, h.ch.out[0].exchange)
}

func TestHandle_RebuildStopsAtLagWatermark(t *testing.T) {
	h := newHarness(5)
	h.c.RebuildLag = time.Hour
	from := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	evt := models.NewEvent(models.TypeRebuildRequested, "tenant-a", "", models.RebuildRequestedPayload{RequestID: "r2", From: from, To: to})

	h.c.handle(context.Background(), delivery(t, &fakeAck{}, models.TypeRebuildRequested, evt, nil))

	watermark := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
	assert.Equal(t, []rollup.Rebuild{{RequestID: "r2", From: from, To: watermark}}, h.store.rebuilds)
}

func TestHandle_RebuildInsideLagCompletesEmpty(t *testing.T) {
	h := newHarness(5)
	h.c.RebuildLag = time.Hour
	from := time.Date(2026, 3, 10, 11, 30, 0, 0, time.UTC)
	to := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	evt := models.NewEvent(models.TypeRebuildRequested, "tenant-a", "", models.RebuildRequestedPayload{RequestID: "r3", From: from, To: to})
	ack := &fakeAck{}

	h.c.handle(context.Background(), delivery(t, ack, models.TypeRebuildRequested, evt, nil))

	require.Len(t, h.store.rebuilds, 1)
	assert.True(t, h.store.rebuilds[0].Empty())
	assert.Equal(t, "r3", h.store.rebuilds[0].RequestID)
	assert.Equal(t, 1, ack.acks)
	assert.Empty(t, h.ch.out)
}

func TestRun_StopsOnClosedChannel(t *testing.T) {
	h := newHarness(5)
	ch := make(chan amqp.Delivery, 1)
	ack := &fakeAck{}
	ch <- delivery(t, ack, models.TypeOrderCreated, orderCreated("e9"), nil)
	close(ch)

	h.c.Run(context.Background(), ch)
	assert.Equal(t, 1, ack.acks)
}
