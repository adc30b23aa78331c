package rollup

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront-analytics/shared/pkg/models"
)

// SlotSize is the rollup granularity. Every real-world UTC offset is a
// multiple of it, so local days always align with slot boundaries.
const SlotSize = 15 * time.Minute

var (
	ErrUnsupported = errors.New("rollup: event type not aggregated")
	ErrBadPayload  = errors.New("rollup: bad payload")
)

// Delta is the change one event makes to its slot.
type Delta struct {
	Orders           int64
	PaidOrders       int64
	RevenuePaidCents int64
	CancelledOrders  int64
	RefundedCents    int64
}

func Slot(t time.Time) time.Time {
	return t.UTC().Truncate(SlotSize)
}

// SlotCeil rounds t up to the next slot boundary unless already on one.
func SlotCeil(t time.Time) time.Time {
	s := Slot(t)
	if s.Before(t.UTC()) {
		return s.Add(SlotSize)
	}
	return s
}

// FromEvent maps an order lifecycle event to its slot and delta. Order
// events land on the order's placed_at slot so revenue stays attributed to
// the day the order was placed; refunds land on issued_at. A missing
// business timestamp falls back to the envelope time.
func FromEvent(evt models.EventRaw) (time.Time, Delta, error) {
	var (
		at time.Time
		d  Delta
	)
	switch evt.Type {
	case models.TypeOrderCreated:
		var p models.OrderCreatedPayload
		if err := decode(evt.Payload, &p); err != nil {
			return time.Time{}, Delta{}, err
		}
		at, d.Orders = p.PlacedAt, 1
	case models.TypePaymentProcessed:
		var p models.PaymentProcessedPayload
		if err := decode(evt.Payload, &p); err != nil {
			return time.Time{}, Delta{}, err
		}
		if p.AmountCents < 0 {
			return time.Time{}, Delta{}, fmt.Errorf("%w: negative amount", ErrBadPayload)
		}
		at, d.PaidOrders, d.RevenuePaidCents = p.PlacedAt, 1, p.AmountCents
	case models.TypeOrderCancelled:
		var p models.OrderCancelledPayload
		if err := decode(evt.Payload, &p); err != nil {
			return time.Time{}, Delta{}, err
		}
		at, d.CancelledOrders = p.PlacedAt, 1
	case models.TypeRefundIssued:
		var p models.RefundIssuedPayload
		if err := decode(evt.Payload, &p); err != nil {
			return time.Time{}, Delta{}, err
		}
		if p.AmountCents < 0 {
			return time.Time{}, Delta{}, fmt.Errorf("%w: negative amount", ErrBadPayload)
		}
		at, d.RefundedCents = p.IssuedAt, p.AmountCents
	default:
		return time.Time{}, Delta{}, fmt.Errorf("%w: %q", ErrUnsupported, evt.Type)
	}
	if at.IsZero() {
		at = evt.Time
	}
	if at.IsZero() {
		return time.Time{}, Delta{}, fmt.Errorf("%w: no timestamp", ErrBadPayload)
	}
	return Slot(at), d, nil
}

// Rebuild is a decoded rebuild request over slot-aligned [From, To).
type Rebuild struct {
	RequestID string
	From, To  time.Time
}

func RebuildRange(evt models.EventRaw) (Rebuild, error) {
	var p models.RebuildRequestedPayload
	if err := decode(evt.Payload, &p); err != nil {
		return Rebuild{}, err
	}
	from, to := Slot(p.From), SlotCeil(p.To)
	if p.From.IsZero() || p.To.IsZero() || !from.Before(to) {
		return Rebuild{}, fmt.Errorf("%w: empty rebuild range", ErrBadPayload)
	}
	return Rebuild{RequestID: p.RequestID, From: from, To: to}, nil
}

// Clamp caps To at the slot holding now-lag so slots whose events may
// still be in flight are left to incremental Apply. A range entirely
// inside the lag collapses to empty.
func (rb Rebuild) Clamp(now time.Time, lag time.Duration) Rebuild {
	watermark := Slot(now.Add(-lag))
	if rb.To.After(watermark) {
		rb.To = watermark
	}
	if rb.From.After(rb.To) {
		rb.From = rb.To
	}
	return rb
}

func (rb Rebuild) Empty() bool { return !rb.From.Before(rb.To) }

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty", ErrBadPayload)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
