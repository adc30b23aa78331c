package rabbit

import (
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeEvents = "storefront.events"
	ExchangeRetry  = "storefront.retry"
	ExchangeDLX    = "storefront.dlx"
)

// Channel is the subset of *amqp.Channel used to declare topology.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func DeclareBase(ch Channel) error {
	for _, name := range []string{ExchangeEvents, ExchangeRetry, ExchangeDLX} {
		if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}
	return nil
}

type QueueSpec struct {
	Name     string
	BindKeys []string // routing keys on ExchangeEvents
	DLQ      string   // dlq routing key and queue name
}

func DeclareQueueWithDLQ(ch Channel, q QueueSpec) error {
	args := amqp.Table{}
	if q.DLQ != "" {
		args["x-dead-letter-exchange"] = ExchangeDLX
		args["x-dead-letter-routing-key"] = q.DLQ
	}
	if _, err := ch.QueueDeclare(q.Name, true, false, false, false, args); err != nil {
		return err
	}
	for _, key := range q.BindKeys {
		if err := ch.QueueBind(q.Name, key, ExchangeEvents, false, nil); err != nil {
			return err
		}
	}
	if q.DLQ == "" {
		return nil
	}
	if _, err := ch.QueueDeclare(q.DLQ, true, false, false, false, nil); err != nil {
		return err
	}
	return ch.QueueBind(q.DLQ, q.DLQ, ExchangeDLX, false, nil)
}

// RetryQueueName is "<service>.retry.<rk>.<ttl>ms".
func RetryQueueName(service, routingKey string, ttlMs int) string {
	return service + ".retry." + routingKey + "." + strconv.Itoa(ttlMs) + "ms"
}

// DeclareRetryQueues declares one TTL queue per routing key. A message
// published to ExchangeRetry as "<service>.<rk>" waits ttlMs and is then
// dead-lettered through the default exchange straight into queue, so
// other consumers of rk never see the retried copy.
func DeclareRetryQueues(ch Channel, service string, routingKeys []string, ttlMs int, queue string) error {
	for _, rk := range routingKeys {
		args := amqp.Table{
			"x-message-ttl":             int32(ttlMs),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		}
		name := RetryQueueName(service, rk, ttlMs)
		if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
			return err
		}
		if err := ch.QueueBind(name, service+"."+rk, ExchangeRetry, false, nil); err != nil {
			return err
		}
	}
	return nil
}
