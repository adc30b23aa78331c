package rabbit

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
)

const HeaderAttempts = "x-attempts"

var (
	ErrRetryScheduled = errors.New("rabbit: retry scheduled")
	ErrDeadLettered   = errors.New("rabbit: max attempts reached, sent to dlq")
)

// Acknowledger is the part of amqp.Delivery that RetryOrDLQ settles.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func GetAttempts(h amqp.Table) int32 {
	if h == nil {
		return 0
	}
	switch t := h[HeaderAttempts].(type) {
	case int32:
		return t
	case int64:
		return int32(t)
	case int:
		return int32(t)
	case float64:
		return int32(t)
	default:
		return 0
	}
}

type RetryPolicy struct {
	Service     string
	MaxAttempts int32
	RetryPub    *Publisher
	DLQPub      *Publisher
	DLQKey      string
}

// RetryOrDLQ republishes the delivery to ExchangeRetry under
// "<service>.<rk>" with attempts+1, or to the DLX once attempts reached
// MaxAttempts. The original delivery is acked when the republish succeeds
// and nacked with requeue otherwise. The returned error reports which path
// was taken.
func (p RetryPolicy) RetryOrDLQ(ctx context.Context, ack Acknowledger, routingKey string, body []byte, headers amqp.Table) error {
	attempts := GetAttempts(headers)

	pubCtx, cancel := WithTimeout(ctx)
	defer cancel()

	if attempts >= p.MaxAttempts {
		if err := p.DLQPub.Publish(pubCtx, p.DLQKey, body, amqp.Table{HeaderAttempts: attempts, "x-original-rk": routingKey}); err != nil {
			_ = ack.Nack(false, true)
			return err
		}
		_ = ack.Ack(false)
		return ErrDeadLettered
	}

	if err := p.RetryPub.Publish(pubCtx, p.Service+"."+routingKey, body, amqp.Table{HeaderAttempts: attempts + 1}); err != nil {
		_ = ack.Nack(false, true)
		return err
	}
	_ = ack.Ack(false)
	return ErrRetryScheduled
}

// DeadLetter skips retries; used for payloads that can never succeed.
func (p RetryPolicy) DeadLetter(ctx context.Context, ack Acknowledger, routingKey string, body []byte, headers amqp.Table) error {
	p.MaxAttempts = 0
	return p.RetryOrDLQ(ctx, ack, routingKey, body, headers)
}
