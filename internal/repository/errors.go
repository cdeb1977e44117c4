// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// booking and payment services to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a delete or update cannot be
// performed because of conflicting state, such as attempting to
// delete a class that still has confirmed bookings.
var ErrConflict = errors.New("conflict")

var (
	ErrMemberNotFound  = errors.New("member not found")
	ErrClassNotFound   = errors.New("class not found")
	ErrBookingNotFound = errors.New("booking not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrUserNotFound    = errors.New("user not found")
)

// ErrCapacityExceeded means a reserve found the class already full.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrCapacityBelowBookings rejects a capacity edit that would leave more
// confirmed seats than the class can hold.
var ErrCapacityBelowBookings = errors.New("capacity below current bookings")

// ErrDuplicateBooking is returned when a confirmed booking already exists
// for the same member, class, date and time.
var ErrDuplicateBooking = errors.New("duplicate booking")

// ErrDuplicateTransaction is returned when a payment transaction id has
// already been recorded.
var ErrDuplicateTransaction = errors.New("duplicate transaction id")
