package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

type jobMessage struct {
	JobID string `json:"job_id"`
}

// AMQP is a durable RabbitMQ work queue with manual acknowledgements.
type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	name     string
	prefetch int
	logger   *zap.Logger
}

func NewAMQP(url, name string, prefetch int, logger *zap.Logger) (*AMQP, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}

	logger.Info("rabbitmq job queue ready", zap.String("queue", name), zap.Int("prefetch", prefetch))
	return &AMQP{conn: conn, ch: ch, name: name, prefetch: prefetch, logger: logger}, nil
}

func (q *AMQP) Enqueue(ctx context.Context, jobID string) error {
	body, err := json.Marshal(jobMessage{JobID: jobID})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Consume streams deliveries until ctx is done or the channel closes.
// Malformed messages are rejected without requeue.
func (q *AMQP) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := q.ch.ConsumeWithContext(ctx,
		q.name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				var msg jobMessage
				if err := json.Unmarshal(d.Body, &msg); err != nil || msg.JobID == "" {
					q.logger.Warn("rejecting malformed job message", zap.ByteString("body", d.Body), zap.Error(err))
					_ = d.Reject(false)
					continue
				}
				delivery := Delivery{
					JobID: msg.JobID,
					ack:   func() error { return d.Ack(false) },
					nack:  func(requeue bool) error { return d.Nack(false, requeue) },
				}
				select {
				case out <- delivery:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

func (q *AMQP) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
