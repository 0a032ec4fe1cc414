package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher publishes JSON events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	PublishJSON(ctx context.Context, routingKey string, message any, headers map[string]string) error
	Close() error
}

// NewPublisher builds a RabbitMQ publisher or a noop publisher when AMQP is disabled.
func NewPublisher(amqpURL, exchange string, logger *zap.Logger) Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if amqpURL == "" {
		logger.Info("rabbitmq disabled, using noop", zap.String("reason", "empty amqp url"))
		return noopPublisher{reason: "empty amqp url", logger: logger}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn("rabbitmq disabled, using noop", zap.Error(err))
		return noopPublisher{reason: err.Error(), logger: logger}
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn("rabbitmq disabled, using noop", zap.Error(err))
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), logger: logger}
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		logger.Warn("rabbitmq disabled, using noop", zap.Error(err))
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{reason: err.Error(), logger: logger}
	}

	logger.Info("rabbitmq connected", zap.String("exchange", exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishJSON(ctx, routingKey, event, nil)
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, message any, headers map[string]string) error {
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	var table amqp.Table
	if len(headers) > 0 {
		table = amqp.Table{}
		for key, value := range headers {
			table[key] = value
		}
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      table,
		Body:         body,
	})
	if err != nil {
		p.logger.Warn("rabbitmq publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	reason string
	logger *zap.Logger
}

func (n noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return n.PublishJSON(ctx, routingKey, event, nil)
}

func (n noopPublisher) PublishJSON(_ context.Context, routingKey string, message any, headers map[string]string) error {
	fields := []zap.Field{zap.String("routing_key", routingKey)}
	if name := eventName(message); name != "" {
		fields = append(fields, zap.String("event", name))
	}
	if requestID := headers["x-request-id"]; requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	n.logger.Debug("rabbitmq noop publish", fields...)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// named is implemented by envelopes that carry an event type.
type named interface {
	Name() string
}

func eventName(message any) string {
	if n, ok := message.(named); ok {
		return n.Name()
	}
	return ""
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
