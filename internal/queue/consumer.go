package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditConsumer binds a durable queue to the booking and payment routing
// keys and appends one line per event to an audit log file.
type AuditConsumer struct {
	URL      string
	Exchange string
	Queue    string
	Keys     []string
	LogPath  string
}

// NewAuditConsumer returns a consumer for every booking.* and payment.*
// event on exchange.
func NewAuditConsumer(url, exchange, queue, logPath string) *AuditConsumer {
	return &AuditConsumer{
		URL:      url,
		Exchange: exchange,
		Queue:    queue,
		Keys:     []string{"booking.*", "payment.*"},
		LogPath:  logPath,
	}
}

// Run connects, consumes and reconnects with exponential backoff (capped
// at 30s) until ctx is cancelled. Malformed messages are rejected without
// requeue so the consumer never spins on them.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(a.URL)
		if err != nil {
			slog.Warn("audit-consumer: failed to dial broker", "err", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = a.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("audit-consumer: consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (a *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		slog.Warn("audit-consumer: set QoS failed", "err", err)
	}
	if err := ch.ExchangeDeclare(a.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	q, err := ch.QueueDeclare(a.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	for _, key := range a.Keys {
		if err := ch.QueueBind(q.Name, key, a.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	for d := range msgs {
		if err := a.HandleMessage(d.RoutingKey, d.Body); err != nil {
			slog.Error("audit-consumer: handle message failed", "routing_key", d.RoutingKey, "err", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// HandleMessage decodes one event and appends its audit line.
func (a *AuditConsumer) HandleMessage(routingKey string, body []byte) error {
	line, err := formatAuditLine(routingKey, body)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.LogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(a.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatAuditLine(routingKey string, body []byte) (string, error) {
	switch routingKey {
	case RoutingBookingConfirmed:
		var ev BookingConfirmedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | member_id=%d | class_id=%d | class=%q | date=%s %s | seats=%d/%d\n",
			ev.OccurredAt, ev.BookingID, ev.MemberID, ev.ClassID, ev.ClassName, ev.BookingDate, ev.BookingTime, ev.SeatsTaken, ev.Capacity), nil
	case RoutingBookingCancelled:
		var ev BookingCancelledEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Booking cancelled | booking_id=%d | member_id=%d | class_id=%d | date=%s %s | seats=%d | by=%s\n",
			ev.OccurredAt, ev.BookingID, ev.MemberID, ev.ClassID, ev.BookingDate, ev.BookingTime, ev.SeatsTaken, ev.CancelledBy), nil
	case RoutingPaymentRecorded:
		var ev PaymentRecordedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal: %w", err)
		}
		return fmt.Sprintf("[%s] Payment recorded | payment_id=%d | member_id=%d | amount=%s | method=%s | txn=%s | renews=%s\n",
			ev.OccurredAt, ev.PaymentID, ev.MemberID, ev.Amount, ev.Method, ev.TransactionID, ev.RenewalDate), nil
	}
	return "", fmt.Errorf("unknown routing key %q", routingKey)
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
