// Package service holds the booking and capacity engine: the capacity
// ledger, booking engine, eligibility gate, payment ledger, schedule
// catalog and member directory. Every failure leaving this package is one
// of the sentinels below (possibly wrapped) so callers can classify it with
// errors.Is.
package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrMembershipInactive   = errors.New("membership is not active")
	ErrClassFull            = errors.New("class is fully booked")
	ErrDuplicateBooking     = errors.New("booking already exists for this class, date and time")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidCapacity      = errors.New("max capacity is below current bookings")
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotCancellable       = errors.New("booking can no longer be cancelled")
	ErrConflict             = errors.New("conflict")
	ErrDuplicateTransaction = errors.New("transaction id already recorded")
	ErrEmailExists          = errors.New("email already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrPartialFailure       = errors.New("payment recorded but member status was not updated")

	// ErrCapacityExceeded is the capacity ledger's rejection. The booking
	// engine reports it to its callers as ErrClassFull.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// PartialFailureError reports a payment that was durably recorded while
// the follow-up member status update failed. Retrying RecordPayment with
// the same transaction id is safe: it reuses Payment and only re-runs the
// status update.
type PartialFailureError struct {
	Payment model.Payment
	Err     error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s (payment %d, transaction %s): %v",
		ErrPartialFailure, e.Payment.ID, e.Payment.TransactionID, e.Err)
}

func (e *PartialFailureError) Unwrap() []error { return []error{ErrPartialFailure, e.Err} }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// translate maps storage sentinels onto the engine taxonomy and leaves
// anything else untouched.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrMemberNotFound):
		return fmt.Errorf("%w: member", ErrNotFound)
	case errors.Is(err, repository.ErrClassNotFound):
		return fmt.Errorf("%w: class", ErrNotFound)
	case errors.Is(err, repository.ErrBookingNotFound):
		return fmt.Errorf("%w: booking", ErrNotFound)
	case errors.Is(err, repository.ErrPaymentNotFound):
		return fmt.Errorf("%w: payment", ErrNotFound)
	case errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("%w: user", ErrNotFound)
	case errors.Is(err, repository.ErrDuplicateBooking):
		return ErrDuplicateBooking
	case errors.Is(err, repository.ErrCapacityExceeded):
		return ErrCapacityExceeded
	case errors.Is(err, repository.ErrCapacityBelowBookings):
		return ErrInvalidCapacity
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	case errors.Is(err, repository.ErrForbidden):
		return ErrForbidden
	case errors.Is(err, repository.ErrEmailExists):
		return ErrEmailExists
	}
	return err
}
