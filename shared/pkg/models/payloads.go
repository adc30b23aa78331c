package models

import "time"

type OrderCreatedPayload struct {
	UserID     string    `json:"user_id"`
	TotalCents int64     `json:"total_cents"`
	PlacedAt   time.Time `json:"placed_at"`
}

type PaymentProcessedPayload struct {
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method,omitempty"`
	PlacedAt    time.Time `json:"placed_at"`
}

type OrderCancelledPayload struct {
	Reason   string    `json:"reason,omitempty"`
	PlacedAt time.Time `json:"placed_at"`
}

type RefundIssuedPayload struct {
	RefundID    string    `json:"refund_id"`
	AmountCents int64     `json:"amount_cents"`
	IssuedAt    time.Time `json:"issued_at"`
}

// RebuildRequestedPayload asks the projector to recompute [From, To).
type RebuildRequestedPayload struct {
	RequestID string    `json:"request_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
}
