package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationConsumer listens to badge.issued and appends one line per
// message to <LogDir>/notifications.log.  The log file stands in for the
// mail gateway.
type NotificationConsumer struct {
	URL    string
	LogDir string
	Logger *slog.Logger

	mu sync.Mutex // serializes writes to the log file
}

// NewNotificationConsumer returns a consumer writing under logDir.
func NewNotificationConsumer(url, logDir string, logger *slog.Logger) *NotificationConsumer {
	if logDir == "" {
		logDir = "logs"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationConsumer{URL: url, LogDir: logDir, Logger: logger.With("component", "notification-consumer")}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-dialled with exponential backoff capped at 30s.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("dial broker failed", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *NotificationConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(BadgeIssuedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(BadgeIssuedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.Logger.Info("consuming", "queue", BadgeIssuedQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleBadgeIssued(d.Body); err != nil {
				c.Logger.Error("handle message failed", "error", err)
				_ = d.Nack(false, false) // no requeue, a bad message would loop forever
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleBadgeIssued decodes one badge.issued body and appends the
// notification line.
func (c *NotificationConsumer) HandleBadgeIssued(body []byte) error {
	var ev BadgeIssuedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.BadgeID == 0 || ev.Code == "" {
		return errors.New("badge_id and code are required")
	}

	event := "all events"
	if ev.EventTitle != "" {
		event = fmt.Sprintf("%q", ev.EventTitle)
	}
	line := fmt.Sprintf("[%s] Badge ready | to=%s | name=%q | badge_id=%d | code=%s | event=%s\n",
		ev.IssuedAt, ev.Email, ev.DisplayName, ev.BadgeID, ev.Code, event)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.LogDir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.LogDir, "notifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
