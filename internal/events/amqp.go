package events

import (
	"context"
	"fmt"

	"appointo/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink forwards events to a RabbitMQ topic exchange, routed by event type.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       Publisher
	exchange string
}

// DialAMQPSink connects to url and declares a durable topic exchange.
func DialAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

// NewAMQPSink wraps an existing channel.
func NewAMQPSink(ch Publisher, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

// Handle publishes the event payload as JSON.
func (s *AMQPSink) Handle(ctx context.Context, event Event) error {
	err := s.ch.PublishWithContext(ctx, s.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Body:         event.Payload,
	})
	if err != nil {
		metrics.IncSinkFailure("amqp")
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Close releases the channel and connection opened by DialAMQPSink.
func (s *AMQPSink) Close() error {
	if ch, ok := s.ch.(*amqp.Channel); ok && ch != nil {
		_ = ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
