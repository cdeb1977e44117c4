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

// PaymentRepo manages persistence for membership payments. Payments are
// append-only.
type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// PaymentFilter narrows List. From/To bound payment_date inclusively.
type PaymentFilter struct {
	MemberID uint64
	Status   model.PaymentStatus
	From     time.Time
	To       time.Time
}

const paymentColumns = `id, member_id, amount, method, transaction_id, status, payment_date, renewal_date, created_at`

// Create inserts p and fills in its ID. A reused transaction id is
// reported as ErrDuplicateTransaction.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (member_id, amount, method, transaction_id, status, payment_date, renewal_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MemberID, p.Amount.StringFixed(2), string(p.Method), p.TransactionID, string(p.Status),
		timestamp(p.PaymentDate), timestamp(p.RenewalDate), timestamp(now))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateTransaction
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt = now
	return nil
}

// GetByID returns ErrPaymentNotFound when no row matches.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
}

// GetByTransactionID looks a payment up by its external reference.
func (r *PaymentRepo) GetByTransactionID(ctx context.Context, txnID string) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE transaction_id = ?", txnID))
}

// List returns payments newest first.
func (r *PaymentRepo) List(ctx context.Context, f PaymentFilter) ([]model.Payment, error) {
	var (
		where []string
		args  []any
	)
	if f.MemberID != 0 {
		where = append(where, "member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.From.IsZero() {
		where = append(where, "payment_date >= ?")
		args = append(args, timestamp(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "payment_date <= ?")
		args = append(args, timestamp(f.To))
	}
	q := "SELECT " + paymentColumns + " FROM payments"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY payment_date DESC, id DESC"
	return r.query(ctx, q, args...)
}

// RenewingBetween returns COMPLETED payments whose renewal date lies in
// [from, to], soonest first.
func (r *PaymentRepo) RenewingBetween(ctx context.Context, from, to time.Time) ([]model.Payment, error) {
	return r.query(ctx,
		"SELECT "+paymentColumns+` FROM payments
		  WHERE status = ? AND renewal_date >= ? AND renewal_date <= ?
		  ORDER BY renewal_date ASC, id ASC`,
		string(model.PaymentCompleted), timestamp(from), timestamp(to))
}

// LatestCompleted returns the member's most recent COMPLETED payment.
func (r *PaymentRepo) LatestCompleted(ctx context.Context, memberID uint64) (model.Payment, error) {
	return scanPayment(r.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+` FROM payments WHERE member_id = ? AND status = ?
		  ORDER BY payment_date DESC, id DESC LIMIT 1`,
		memberID, string(model.PaymentCompleted)))
}

func (r *PaymentRepo) query(ctx context.Context, q string, args ...any) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(row rowScanner) (model.Payment, error) {
	var (
		p      model.Payment
		method string
		status string
	)
	err := row.Scan(&p.ID, &p.MemberID, &p.Amount, &method, &p.TransactionID, &status,
		dbTime{&p.PaymentDate}, dbTime{&p.RenewalDate}, dbTime{&p.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, ErrPaymentNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	p.Method = model.PaymentMethod(method)
	p.Status = model.PaymentStatus(status)
	return p, nil
}
