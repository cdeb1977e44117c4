package service

import (
	"context"
	"database/sql"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/gym-class-booking/internal/observability"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// CapacityLedger owns the per-class seat counter. Every reserve and
// release is one conditional UPDATE in the store, so the invariant
// 0 <= current_bookings <= max_capacity holds under any interleaving of
// concurrent callers.
//
// The Tx variants are the ones the booking engine uses: they let a seat
// change commit or roll back together with the booking row it pairs with.
type CapacityLedger struct {
	classes *repository.ClassRepo
}

func NewCapacityLedger(classes *repository.ClassRepo) *CapacityLedger {
	return &CapacityLedger{classes: classes}
}

// Reserve takes one seat and returns the new count, or ErrCapacityExceeded
// when the class is full (no seat is taken in that case).
func (l *CapacityLedger) Reserve(ctx context.Context, classID uint64) (int, error) {
	ctx, span := tracer.Start(ctx, "CapacityLedger.Reserve")
	span.SetAttributes(attribute.Int64("class.id", int64(classID)))
	n, err := l.classes.ReserveSeat(ctx, classID)
	err = l.recordReserve(err)
	finish(span, err)
	return n, err
}

// ReserveTx is Reserve inside the caller's transaction.
func (l *CapacityLedger) ReserveTx(ctx context.Context, tx *sql.Tx, classID uint64) (int, error) {
	n, err := l.classes.ReserveSeatTx(ctx, tx, classID)
	return n, l.recordReserve(err)
}

// Release gives one seat back and returns the new count. At zero it is a
// no-op, so a repeated release can never drive the counter negative.
func (l *CapacityLedger) Release(ctx context.Context, classID uint64) (int, error) {
	ctx, span := tracer.Start(ctx, "CapacityLedger.Release")
	span.SetAttributes(attribute.Int64("class.id", int64(classID)))
	n, released, err := l.classes.ReleaseSeat(ctx, classID)
	err = l.recordRelease(released, err)
	finish(span, err)
	return n, err
}

// ReleaseTx is Release inside the caller's transaction.
func (l *CapacityLedger) ReleaseTx(ctx context.Context, tx *sql.Tx, classID uint64) (int, error) {
	n, released, err := l.classes.ReleaseSeatTx(ctx, tx, classID)
	return n, l.recordRelease(released, err)
}

func (l *CapacityLedger) recordReserve(err error) error {
	switch {
	case err == nil:
		observability.CapacityOperations.WithLabelValues("reserved").Inc()
	case errors.Is(err, repository.ErrCapacityExceeded):
		observability.CapacityOperations.WithLabelValues("exceeded").Inc()
	}
	return translate(err)
}

func (l *CapacityLedger) recordRelease(released bool, err error) error {
	if err != nil {
		return translate(err)
	}
	if released {
		observability.CapacityOperations.WithLabelValues("released").Inc()
	} else {
		observability.CapacityOperations.WithLabelValues("noop").Inc()
	}
	return nil
}
