package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/gym-class-booking/internal/model"
)

// MemberRepo manages persistence for members.
type MemberRepo struct {
	db *sql.DB
}

func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions that
// span repositories.
func (r *MemberRepo) DB() *sql.DB { return r.db }

// MemberFilter narrows List. Zero values are ignored.
type MemberFilter struct {
	Status         model.MemberStatus
	MembershipType model.MembershipType
}

const memberColumns = "id, user_id, name, phone, membership_type, status, join_date"

// CreateTx inserts m and fills in its ID.
func (r *MemberRepo) CreateTx(ctx context.Context, tx *sql.Tx, m *model.Member) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO members (user_id, name, phone, membership_type, status, join_date) VALUES (?, ?, ?, ?, ?, ?)`,
		m.UserID, m.Name, m.Phone, string(m.MembershipType), string(m.Status), timestamp(m.JoinDate))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

// GetByID returns ErrMemberNotFound when no row matches.
func (r *MemberRepo) GetByID(ctx context.Context, id uint64) (model.Member, error) {
	return scanMember(r.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE id = ?", id))
}

// GetByUserID resolves the member owned by an identity.
func (r *MemberRepo) GetByUserID(ctx context.Context, userID uint64) (model.Member, error) {
	return scanMember(r.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE user_id = ?", userID))
}

// List returns members ordered by name.
func (r *MemberRepo) List(ctx context.Context, f MemberFilter) ([]model.Member, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.MembershipType != "" {
		where = append(where, "membership_type = ?")
		args = append(args, string(f.MembershipType))
	}
	q := "SELECT " + memberColumns + " FROM members"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY name, id"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Update writes the editable profile and membership fields.
func (r *MemberRepo) Update(ctx context.Context, m model.Member) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE members SET name = ?, phone = ?, membership_type = ?, status = ? WHERE id = ?`,
		m.Name, m.Phone, string(m.MembershipType), string(m.Status), m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// UpdateStatus sets the member status. Setting the current value again is
// a successful no-op, so the call is safe to retry.
func (r *MemberRepo) UpdateStatus(ctx context.Context, id uint64, status model.MemberStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE members SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (model.Member, error) {
	var (
		m          model.Member
		membership string
		status     string
	)
	err := row.Scan(&m.ID, &m.UserID, &m.Name, &m.Phone, &membership, &status, dbTime{&m.JoinDate})
	if errors.Is(err, sql.ErrNoRows) {
		return model.Member{}, ErrMemberNotFound
	}
	if err != nil {
		return model.Member{}, err
	}
	m.MembershipType = model.MembershipType(membership)
	m.Status = model.MemberStatus(status)
	return m, nil
}
