package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
)

// Connect dials RabbitMQ.
func Connect(url string) (*amqp091.Connection, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares a durable topic exchange.
func DeclareExchange(ch *amqp091.Channel, name string) error {
	return ch.ExchangeDeclare(name, "topic", true, false, false, false, nil)
}

// Publisher publishes persistent JSON messages to one exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewPublisher connects, opens a channel and declares cfg.Exchange.
func NewPublisher(cfg Config) (*Publisher, error) {
	conn, err := Connect(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch, cfg.Exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch, exchange: cfg.Exchange}, nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// IsConnected reports whether the underlying connection is open.
func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.channel != nil && !p.conn.IsClosed()
}

// Publish JSON-encodes payload and publishes it with routingKey. messageID
// becomes the AMQP message id so consumers can drop redeliveries.
func (p *Publisher) Publish(ctx context.Context, routingKey, messageID string, payload any) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    messageID,
		Body:         body,
	})
	if err != nil {
		return errors.Join(ErrPublishFailed, err)
	}
	return nil
}

// Healthcheck reports ErrNotConnected once the connection has dropped.
func (p *Publisher) Healthcheck(context.Context) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	return nil
}
