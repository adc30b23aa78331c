package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Routing keys consumed or produced by the analytics services.
const (
	TypeOrderCreated     = "orders.created"
	TypePaymentProcessed = "payment.processed"
	TypeOrderCancelled   = "order.cancelled"
	TypeRefundIssued     = "refund.issued"
	TypeRebuildRequested = "analytics.rebuild_requested"
)

type Event[T any] struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Version  int       `json:"version"`
	Time     time.Time `json:"time"`
	TenantID string    `json:"tenant_id"`
	OrderID  string    `json:"order_id,omitempty"`
	Payload  T         `json:"payload"`
}

// EventRaw defers payload decoding until the type is known.
type EventRaw = Event[json.RawMessage]

func NewEvent[T any](eventType, tenantID, orderID string, payload T) Event[T] {
	return Event[T]{
		ID:       uuid.NewString(),
		Type:     eventType,
		Version:  1,
		Time:     time.Now().UTC(),
		TenantID: tenantID,
		OrderID:  orderID,
		Payload:  payload,
	}
}
