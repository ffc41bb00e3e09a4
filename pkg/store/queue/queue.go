// Package queue implements capability.TaskQueue over RabbitMQ using
// streadway/amqp: at-least-once durable job dispatch with per-task trace
// context (spec.md §2, §5). Handlers are re-entrant over their effects
// (merge/upsert semantics), since redelivery on a dropped ack is expected.
package queue

import (
	"context"

	"github.com/streadway/amqp"

	"github.com/destiny-evidence/reference-repository/pkg/capability"
	"github.com/destiny-evidence/reference-repository/pkg/obslog"
	"github.com/destiny-evidence/reference-repository/pkg/sharederr"
)

const exchangeName = "reference_repository.tasks"

// Store is the concrete capability.TaskQueue implementation.
type Store struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	log         *obslog.Logger
	idempotency *IdempotencyCache
}

// Connect dials url and declares the topic exchange tasks publish onto.
// idempotency may be nil, in which case Consume does not deduplicate
// redeliveries and every handler must already be safely re-entrant.
func Connect(url string, log *obslog.Logger, idempotency *IdempotencyCache) (*Store, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, sharederr.NetworkError("connect", url, err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, sharederr.NetworkError("open channel", url, err)
	}
	if err := channel.ExchangeDeclare(exchangeName, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, sharederr.NetworkError("declare exchange", exchangeName, err)
	}
	return &Store{conn: conn, channel: channel, log: log, idempotency: idempotency}, nil
}

// Close releases the channel and connection.
func (s *Store) Close() error {
	if err := s.channel.Close(); err != nil {
		return err
	}
	return s.conn.Close()
}

// Enqueue publishes t as a persistent message routed by its Kind.
func (s *Store) Enqueue(ctx context.Context, t capability.Task) error {
	err := s.channel.Publish(exchangeName, t.Kind, false, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		DeliveryMode: amqp.Persistent,
		Body:         t.Payload,
		MessageId:    t.TraceID,
	})
	if err != nil {
		return sharederr.NewTaskError(t.Kind, err.Error())
	}
	return nil
}

// Consume declares a durable queue bound to kind and runs handler over
// every delivery until ctx is cancelled. Failed handler invocations nack
// with requeue=true, relying on at-least-once redelivery rather than a
// dead-letter policy (deliberately simple: §5 places retry/backoff
// concerns at the HTTP callback layer, not the task queue).
func (s *Store) Consume(ctx context.Context, kind string, handler func(context.Context, capability.Task) error) error {
	queueName := "reference_repository." + kind
	if _, err := s.channel.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		return sharederr.NetworkError("declare queue", queueName, err)
	}
	if err := s.channel.QueueBind(queueName, kind, exchangeName, false, nil); err != nil {
		return sharederr.NetworkError("bind queue", queueName, err)
	}

	deliveries, err := s.channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return sharederr.NetworkError("start consuming", queueName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				task := capability.Task{Kind: kind, Payload: d.Body, TraceID: d.MessageId}
				if s.idempotency != nil && task.TraceID != "" {
					seen, err := s.idempotency.SeenAndMark(ctx, task.TraceID)
					if err != nil {
						s.log.Warn("idempotency check failed, processing anyway", obslog.Fields{}.
							Component("queue").Operation("consume").Error(err))
					} else if seen {
						_ = d.Ack(false)
						continue
					}
				}
				if err := handler(ctx, task); err != nil {
					s.log.Warn("task handler failed, requeueing", obslog.Fields{}.
						Component("queue").Operation("consume").Error(err))
					if s.idempotency != nil && task.TraceID != "" {
						_ = s.idempotency.client.Del(ctx, idempotencyKey(task.TraceID)).Err()
					}
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()
	return nil
}

var _ capability.TaskQueue = (*Store)(nil)
