// Package queue defines the domain events exchanged over RabbitMQ, the
// publisher used by the booking and payment services, and the audit
// consumer that records every event to a log file.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Topic exchange and routing keys.
const (
	ExchangeName            = "gym.events"
	RoutingBookingConfirmed = "booking.confirmed"
	RoutingBookingCancelled = "booking.cancelled"
	RoutingPaymentRecorded  = "payment.recorded"
)

// BookingConfirmedEvent is published after a booking and its seat have
// been committed together. SeatsTaken is the class counter after the
// reservation.
type BookingConfirmedEvent struct {
	EventID     string `json:"event_id"`
	BookingID   uint64 `json:"booking_id"`
	MemberID    uint64 `json:"member_id"`
	ClassID     uint64 `json:"class_id"`
	ClassName   string `json:"class_name"`
	BookingDate string `json:"booking_date"`
	BookingTime string `json:"booking_time"`
	SeatsTaken  int    `json:"seats_taken"`
	Capacity    int    `json:"capacity"`
	OccurredAt  string `json:"occurred_at"`
}

// BookingCancelledEvent is published after a cancellation released its
// seat. CancelledBy is the role of the principal that cancelled.
type BookingCancelledEvent struct {
	EventID     string `json:"event_id"`
	BookingID   uint64 `json:"booking_id"`
	MemberID    uint64 `json:"member_id"`
	ClassID     uint64 `json:"class_id"`
	BookingDate string `json:"booking_date"`
	BookingTime string `json:"booking_time"`
	SeatsTaken  int    `json:"seats_taken"`
	CancelledBy string `json:"cancelled_by"`
	OccurredAt  string `json:"occurred_at"`
}

// PaymentRecordedEvent is published once per newly stored payment.
type PaymentRecordedEvent struct {
	EventID       string `json:"event_id"`
	PaymentID     uint64 `json:"payment_id"`
	MemberID      uint64 `json:"member_id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	PaymentDate   string `json:"payment_date"`
	RenewalDate   string `json:"renewal_date"`
	OccurredAt    string `json:"occurred_at"`
}

// NewEventID returns a fresh event identifier.
func NewEventID() string { return uuid.NewString() }

// Stamp formats t the way events carry timestamps.
func Stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }
