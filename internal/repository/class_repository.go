// Package repository contains data access logic for the class catalog.
// This file also holds the capacity ledger statements: the only code that
// writes classes.current_bookings.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
)

// ClassRepo manages persistence for scheduled classes and their slots.
type ClassRepo struct {
	db *sql.DB
}

func NewClassRepo(db *sql.DB) *ClassRepo { return &ClassRepo{db: db} }

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *ClassRepo) DB() *sql.DB { return r.db }

// ClassFilter narrows List. Zero values are ignored.
type ClassFilter struct {
	TrainerID  uint64
	Difficulty model.Difficulty
	Day        model.Weekday // classes with at least one slot on this day
}

const classColumns = `id, name, description, trainer_id, max_capacity, current_bookings,
       duration_minutes, difficulty, created_at, updated_at`

// Create inserts the class and its slots in one transaction. The seat
// counter always starts at zero regardless of c.CurrentBookings.
func (r *ClassRepo) Create(ctx context.Context, c *model.ScheduledClass) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO classes (name, description, trainer_id, max_capacity, current_bookings, duration_minutes, difficulty, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		c.Name, c.Description, c.TrainerID, c.MaxCapacity, c.DurationMinutes, string(c.Difficulty), timestamp(now), timestamp(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := insertSlotsTx(ctx, tx, uint64(id), c.Slots); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	c.ID = uint64(id)
	c.CurrentBookings = 0
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

// GetByID returns the class with its slots or ErrClassNotFound.
func (r *ClassRepo) GetByID(ctx context.Context, id uint64) (model.ScheduledClass, error) {
	c, err := scanClass(r.db.QueryRowContext(ctx, "SELECT "+classColumns+" FROM classes WHERE id = ?", id))
	if err != nil {
		return c, err
	}
	slots, err := r.slotsFor(ctx, []uint64{c.ID})
	if err != nil {
		return c, err
	}
	c.Slots = slots[c.ID]
	if c.Slots == nil {
		c.Slots = []model.Slot{}
	}
	return c, nil
}

// List returns classes ordered by name, each with its slots.
func (r *ClassRepo) List(ctx context.Context, f ClassFilter) ([]model.ScheduledClass, error) {
	var (
		where []string
		args  []any
	)
	if f.TrainerID != 0 {
		where = append(where, "trainer_id = ?")
		args = append(args, f.TrainerID)
	}
	if f.Difficulty != "" {
		where = append(where, "difficulty = ?")
		args = append(args, string(f.Difficulty))
	}
	if f.Day != "" {
		where = append(where, "id IN (SELECT class_id FROM class_slots WHERE day_of_week = ?)")
		args = append(args, string(f.Day))
	}
	q := "SELECT " + classColumns + " FROM classes"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY name, id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	out := []model.ScheduledClass{}
	ids := []uint64{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	slots, err := r.slotsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Slots = slots[out[i].ID]
		if out[i].Slots == nil {
			out[i].Slots = []model.Slot{}
		}
	}
	return out, nil
}

// Update writes the definition fields and replaces the slots. The capacity
// guard is part of the UPDATE itself, so a concurrent reservation cannot
// slip in between the check and the write. Returns ErrCapacityBelowBookings
// when MaxCapacity is lower than the seats already taken.
func (r *ClassRepo) Update(ctx context.Context, c *model.ScheduledClass) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx,
		`UPDATE classes
		    SET name = ?, description = ?, trainer_id = ?, max_capacity = ?, duration_minutes = ?, difficulty = ?, updated_at = ?
		  WHERE id = ? AND current_bookings <= ?`,
		c.Name, c.Description, c.TrainerID, c.MaxCapacity, c.DurationMinutes, string(c.Difficulty), timestamp(now),
		c.ID, c.MaxCapacity)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var current int
		err := tx.QueryRowContext(ctx, "SELECT current_bookings FROM classes WHERE id = ?", c.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrClassNotFound
		}
		if err != nil {
			return err
		}
		return ErrCapacityBelowBookings
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM class_slots WHERE class_id = ?", c.ID); err != nil {
		return err
	}
	if err := insertSlotsTx(ctx, tx, c.ID, c.Slots); err != nil {
		return err
	}
	// reload the ledger-owned counter and timestamps as stored
	updated, err := scanClass(tx.QueryRowContext(ctx, "SELECT "+classColumns+" FROM classes WHERE id = ?", c.ID))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	updated.Slots = c.Slots
	*c = updated
	return nil
}

// Delete removes a class that has no confirmed bookings. Cancelled and
// completed history rows go with it.
func (r *ClassRepo) Delete(ctx context.Context, id uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var current int
	err = tx.QueryRowContext(ctx, "SELECT current_bookings FROM classes WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrClassNotFound
	}
	if err != nil {
		return err
	}
	if current > 0 {
		return ErrConflict
	}
	var confirmed int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE class_id = ? AND status = ?", id, string(model.BookingConfirmed),
	).Scan(&confirmed); err != nil {
		return err
	}
	if confirmed > 0 {
		return ErrConflict
	}

	for _, q := range []string{
		"DELETE FROM bookings WHERE class_id = ?",
		"DELETE FROM class_slots WHERE class_id = ?",
		"DELETE FROM classes WHERE id = ?",
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// ReserveSeat takes one seat in its own statement.
func (r *ClassRepo) ReserveSeat(ctx context.Context, classID uint64) (int, error) {
	return reserveSeat(ctx, r.db, classID)
}

// ReserveSeatTx takes one seat inside the caller's transaction and returns
// the new count. The increment is a single conditional UPDATE guarded by
// current_bookings < max_capacity; concurrent callers can never push the
// counter past capacity. Zero affected rows is resolved into
// ErrClassNotFound or ErrCapacityExceeded.
func (r *ClassRepo) ReserveSeatTx(ctx context.Context, tx *sql.Tx, classID uint64) (int, error) {
	return reserveSeat(ctx, tx, classID)
}

func reserveSeat(ctx context.Context, q dbtx, classID uint64) (int, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE classes SET current_bookings = current_bookings + 1
		  WHERE id = ? AND current_bookings < max_capacity`, classID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	count, err := seatCount(ctx, q, classID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return count, ErrCapacityExceeded
	}
	return count, nil
}

// ReleaseSeat gives back one seat in its own statement.
func (r *ClassRepo) ReleaseSeat(ctx context.Context, classID uint64) (int, bool, error) {
	return releaseSeat(ctx, r.db, classID)
}

// ReleaseSeatTx gives back one seat inside the caller's transaction. The
// counter never goes below zero: at zero the call changes nothing and
// reports released=false.
func (r *ClassRepo) ReleaseSeatTx(ctx context.Context, tx *sql.Tx, classID uint64) (int, bool, error) {
	return releaseSeat(ctx, tx, classID)
}

func releaseSeat(ctx context.Context, q dbtx, classID uint64) (int, bool, error) {
	res, err := q.ExecContext(ctx,
		`UPDATE classes SET current_bookings = current_bookings - 1
		  WHERE id = ? AND current_bookings > 0`, classID)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	count, err := seatCount(ctx, q, classID)
	if err != nil {
		return 0, false, err
	}
	return count, n > 0, nil
}

func seatCount(ctx context.Context, q dbtx, classID uint64) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, "SELECT current_bookings FROM classes WHERE id = ?", classID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrClassNotFound
	}
	return count, err
}

func insertSlotsTx(ctx context.Context, tx *sql.Tx, classID uint64, slots []model.Slot) error {
	for _, s := range slots {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO class_slots (class_id, day_of_week, start_time, end_time) VALUES (?, ?, ?, ?)",
			classID, string(s.Day), s.StartTime, s.EndTime); err != nil {
			return err
		}
	}
	return nil
}

func (r *ClassRepo) slotsFor(ctx context.Context, ids []uint64) (map[uint64][]model.Slot, error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT class_id, day_of_week, start_time, end_time FROM class_slots WHERE class_id IN ("+placeholders(len(ids))+") ORDER BY class_id, id",
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64][]model.Slot, len(ids))
	for rows.Next() {
		var (
			classID uint64
			day     string
			s       model.Slot
		)
		if err := rows.Scan(&classID, &day, &s.StartTime, &s.EndTime); err != nil {
			return nil, err
		}
		s.Day = model.Weekday(day)
		out[classID] = append(out[classID], s)
	}
	return out, rows.Err()
}

func scanClass(row rowScanner) (model.ScheduledClass, error) {
	var (
		c          model.ScheduledClass
		difficulty string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.TrainerID, &c.MaxCapacity, &c.CurrentBookings,
		&c.DurationMinutes, &difficulty, dbTime{&c.CreatedAt}, dbTime{&c.UpdatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledClass{}, ErrClassNotFound
	}
	if err != nil {
		return model.ScheduledClass{}, err
	}
	c.Difficulty = model.Difficulty(difficulty)
	return c, nil
}
