// Package service holds the business rules that span several
// repositories: registration, badge issuance, scan recording and
// occupancy.  Handlers stay thin and translate the errors declared here
// into HTTP responses.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends a JSON message to a durable queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg any) error
}

// NopPublisher drops every message.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, any) error { return nil }

// AMQPPublisher publishes persistent JSON messages to RabbitMQ through the
// default exchange.  The connection is dialled on first use and re-dialled
// after it drops.
type AMQPPublisher struct {
	url    string
	logger *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	declared   map[string]bool
	retryAfter time.Time // no redial before this after a failed dial
}

// errBrokerDown is returned while a failed dial is cooling down.
var errBrokerDown = errors.New("rabbitmq unavailable")

const (
	dialTimeout  = 2 * time.Second
	dialCooldown = 5 * time.Second
)

// NewAMQPPublisher returns a publisher for url.  Nothing is dialled yet.
func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{url: url, logger: logger.With("component", "publisher"), declared: map[string]bool{}}
}

// Publish declares queue if needed and publishes msg to it.
func (p *AMQPPublisher) Publish(ctx context.Context, queue string, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queue, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		if time.Now().Before(p.retryAfter) {
			return errBrokerDown
		}
		conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
		if err != nil {
			p.retryAfter = time.Now().Add(dialCooldown)
			return fmt.Errorf("rabbitmq dial: %w", err)
		}
		p.conn = conn
		p.declared = map[string]bool{}
	}
	ch, err := p.conn.Channel()
	if err != nil {
		_ = p.conn.Close()
		p.conn = nil
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if !p.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}
	return ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// Close closes the broker connection, if any.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// publishQuietly publishes msg and logs a failure instead of returning it.
// Notifications never fail the request that triggered them.
func publishQuietly(ctx context.Context, p Publisher, logger *slog.Logger, queue string, msg any) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := p.Publish(ctx, queue, msg); err != nil {
		logger.Warn("publish failed", "queue", queue, "error", err)
	}
}
