package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/database"
	"github.com/iliyamo/gym-class-booking/internal/model"
)

// BookingRepo manages persistence for bookings.
type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying sql.DB for multi-repository transactions.
func (r *BookingRepo) DB() *sql.DB { return r.db }

// BookingFilter narrows List. MemberID and TrainerID carry the role scope;
// the remaining fields are caller supplied. Zero values are ignored.
type BookingFilter struct {
	MemberID  uint64
	TrainerID uint64
	ClassID   uint64
	Status    model.BookingStatus
	From      string // inclusive YYYY-MM-DD
	To        string // inclusive YYYY-MM-DD
}

const bookingSelect = `SELECT b.id, b.member_id, b.class_id, b.booking_date, b.booking_time, b.status,
       c.name, b.created_at, b.updated_at
  FROM bookings b
  JOIN classes c ON c.id = b.class_id`

// CreateTx inserts a CONFIRMED booking inside the caller's transaction.
// The confirmed-uniqueness index decides duplicates; a violation is
// reported as ErrDuplicateBooking and the caller must roll back.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO bookings (member_id, class_id, booking_date, booking_time, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.MemberID, b.ClassID, b.Date, b.Time, string(model.BookingConfirmed), timestamp(now), timestamp(now))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.Status = model.BookingConfirmed
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

// GetByID returns ErrBookingNotFound when no row matches.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, bookingSelect+" WHERE b.id = ?", id))
}

// GetByIDTx reads a booking inside the caller's transaction.
func (r *BookingRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	return scanBooking(tx.QueryRowContext(ctx, bookingSelect+" WHERE b.id = ?", id))
}

// TrainerOf returns the trainer of the booking's class.
func (r *BookingRepo) TrainerOf(ctx context.Context, bookingID uint64) (uint64, error) {
	var trainerID uint64
	err := r.db.QueryRowContext(ctx,
		"SELECT c.trainer_id FROM bookings b JOIN classes c ON c.id = b.class_id WHERE b.id = ?", bookingID,
	).Scan(&trainerID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrBookingNotFound
	}
	return trainerID, err
}

// CancelTx moves a CONFIRMED booking to CANCELLED. It reports whether
// this call performed the transition; a booking that is no longer
// CONFIRMED is left untouched and reported as false.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(model.BookingCancelled), timestamp(time.Now()), id, string(model.BookingConfirmed))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns bookings newest date first.
func (r *BookingRepo) List(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.MemberID != 0 {
		where = append(where, "b.member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.TrainerID != 0 {
		where = append(where, "c.trainer_id = ?")
		args = append(args, f.TrainerID)
	}
	if f.ClassID != 0 {
		where = append(where, "b.class_id = ?")
		args = append(args, f.ClassID)
	}
	if f.Status != "" {
		where = append(where, "b.status = ?")
		args = append(args, string(f.Status))
	}
	if f.From != "" {
		where = append(where, "b.booking_date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "b.booking_date <= ?")
		args = append(args, f.To)
	}
	q := bookingSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY b.booking_date DESC, b.booking_time DESC, b.id DESC"
	return r.query(ctx, r.db, q, args...)
}

// Upcoming returns the member's CONFIRMED bookings dated today or later,
// soonest first.
func (r *BookingRepo) Upcoming(ctx context.Context, memberID uint64, today string) ([]model.Booking, error) {
	return r.query(ctx, r.db,
		bookingSelect+` WHERE b.member_id = ? AND b.status = ? AND b.booking_date >= ?
		 ORDER BY b.booking_date ASC, b.booking_time ASC, b.id ASC`,
		memberID, string(model.BookingConfirmed), today)
}

// ConfirmedForMemberTx lists the member's CONFIRMED bookings inside the
// caller's transaction.
func (r *BookingRepo) ConfirmedForMemberTx(ctx context.Context, tx *sql.Tx, memberID uint64) ([]model.Booking, error) {
	return r.query(ctx, tx, bookingSelect+" WHERE b.member_id = ? AND b.status = ? ORDER BY b.id",
		memberID, string(model.BookingConfirmed))
}

// CountConfirmed counts CONFIRMED bookings of a class.
func (r *BookingRepo) CountConfirmed(ctx context.Context, classID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE class_id = ? AND status = ?", classID, string(model.BookingConfirmed),
	).Scan(&n)
	return n, err
}

func (r *BookingRepo) query(ctx context.Context, q dbtx, query string, args ...any) ([]model.Booking, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	err := row.Scan(&b.ID, &b.MemberID, &b.ClassID, &b.Date, &b.Time, &status,
		&b.ClassName, dbTime{&b.CreatedAt}, dbTime{&b.UpdatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.BookingStatus(status)
	return b, nil
}
