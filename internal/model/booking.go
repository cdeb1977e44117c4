package model

import (
	"fmt"
	"time"
)

// BookingStatus is the lifecycle state of a booking. CONFIRMED may move to
// CANCELLED or COMPLETED; both of those are terminal.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

// DateLayout is the calendar date format for booking dates.
const DateLayout = "2006-01-02"

// Booking records a member's seat in a class on a given date and time.
// Rows are never deleted; cancellation is a status change.
//
// Fields:
//  ID        – primary key identifier.
//  MemberID  – member holding the seat.
//  ClassID   – class being attended.
//  Date      – calendar date, YYYY-MM-DD.
//  Time      – wall-clock start, HH:MM.
//  Status    – CONFIRMED, CANCELLED or COMPLETED.
//  ClassName – joined from classes for listings.
type Booking struct {
	ID        uint64        `json:"id"`                   // bookings.id
	MemberID  uint64        `json:"member_id"`            // bookings.member_id
	ClassID   uint64        `json:"class_id"`             // bookings.class_id
	Date      string        `json:"booking_date"`         // bookings.booking_date
	Time      string        `json:"time"`                 // bookings.booking_time
	Status    BookingStatus `json:"status"`               // bookings.status
	ClassName string        `json:"class_name,omitempty"` // classes.name
	CreatedAt time.Time     `json:"created_at"`           // bookings.created_at
	UpdatedAt time.Time     `json:"updated_at"`           // bookings.updated_at
}

// NormalizeSlot validates a booking date and time and returns them in
// their canonical forms.
func NormalizeSlot(date, clock string) (string, string, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", "", fmt.Errorf("invalid booking date %q", date)
	}
	t, err := time.Parse(TimeOfDayLayout, clock)
	if err != nil {
		return "", "", fmt.Errorf("invalid booking time %q", clock)
	}
	return d.Format(DateLayout), t.Format(TimeOfDayLayout), nil
}
