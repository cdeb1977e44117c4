package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/observability"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
	"github.com/iliyamo/gym-class-booking/internal/utils"
)

// MinPasswordLength is enforced on registration.
const MinPasswordLength = 8

// RegisterInput creates an identity. Role defaults to MEMBER; ADMIN
// accounts are only created through EnsureAdmin.
type RegisterInput struct {
	Email          string               `json:"email"`
	Password       string               `json:"password"`
	Role           model.Role           `json:"role"`
	Name           string               `json:"name"`
	Phone          string               `json:"phone"`
	MembershipType model.MembershipType `json:"membership_type"`
}

// Registration is the outcome of Register. Member is nil for trainers.
type Registration struct {
	User   model.User    `json:"-"`
	Member *model.Member `json:"member,omitempty"`
}

// MemberPatch carries the admin-editable member fields. Status is the hook
// through which an external process suspends or expires a membership.
type MemberPatch struct {
	Name           *string               `json:"name"`
	Phone          *string               `json:"phone"`
	MembershipType *model.MembershipType `json:"membership_type"`
	Status         *model.MemberStatus   `json:"status"`
}

// MemberQuery filters ListMembers.
type MemberQuery struct {
	Status         model.MemberStatus
	MembershipType model.MembershipType
}

// MemberDirectory manages identities and member records.
type MemberDirectory struct {
	db       *sql.DB
	users    *repository.UserRepo
	members  *repository.MemberRepo
	bookings *repository.BookingRepo
	ledger   *CapacityLedger
	events   EventPublisher
	cache    CacheInvalidator
	cost     int

	now func() time.Time
}

func NewMemberDirectory(users *repository.UserRepo, members *repository.MemberRepo, bookings *repository.BookingRepo, ledger *CapacityLedger, events EventPublisher, cache CacheInvalidator, bcryptCost int) *MemberDirectory {
	return &MemberDirectory{
		db:       members.DB(),
		users:    users,
		members:  members,
		bookings: bookings,
		ledger:   ledger,
		events:   orDiscard(events),
		cache:    cache,
		cost:     bcryptCost,
		now:      time.Now,
	}
}

// Register creates the identity and, for members, the member row in one
// transaction. New members start ACTIVE on a MONTHLY plan unless another
// type is given.
func (d *MemberDirectory) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = model.RoleMember
	}
	in.Role = model.Role(strings.ToUpper(string(in.Role)))
	in.MembershipType = model.MembershipType(strings.ToUpper(string(in.MembershipType)))
	switch {
	case in.Email == "" || !strings.Contains(in.Email, "@"):
		return Registration{}, invalid("a valid email is required")
	case len(in.Password) < MinPasswordLength:
		return Registration{}, invalid("password must be at least %d characters", MinPasswordLength)
	case in.Role != model.RoleMember && in.Role != model.RoleTrainer:
		return Registration{}, invalid("role must be MEMBER or TRAINER")
	case in.Role == model.RoleMember && in.Name == "":
		return Registration{}, invalid("name is required")
	case in.MembershipType != "" && !in.MembershipType.Valid():
		return Registration{}, invalid("unknown membership type %q", in.MembershipType)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return Registration{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	userID, err := d.users.CreateTx(ctx, tx, in.Email, in.Password, in.Role, d.cost)
	if err != nil {
		return Registration{}, translate(err)
	}
	out := Registration{User: model.User{ID: userID, Email: in.Email, Role: in.Role, CreatedAt: d.now().UTC()}}
	if in.Role == model.RoleMember {
		m := model.NewMember(userID, in.Name, strings.TrimSpace(in.Phone), in.MembershipType, d.now().Truncate(time.Second))
		if err := d.members.CreateTx(ctx, tx, &m); err != nil {
			return Registration{}, err
		}
		out.Member = &m
	}
	if err := tx.Commit(); err != nil {
		return Registration{}, err
	}
	committed = true
	slog.InfoContext(ctx, "user registered", "user_id", userID, "role", string(in.Role))
	return out, nil
}

// Authenticate checks credentials. Unknown email and wrong password both
// report ErrInvalidCredentials.
func (d *MemberDirectory) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	u, err := d.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureAdmin creates the bootstrap administrator when no user holds the
// email yet. An existing account is left as it is.
func (d *MemberDirectory) EnsureAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil
	}
	_, err := d.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}
	id, err := d.users.Create(ctx, email, password, model.RoleAdmin, d.cost)
	if errors.Is(err, repository.ErrEmailExists) {
		return nil
	}
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "bootstrap admin created", "user_id", id)
	return nil
}

func (d *MemberDirectory) GetUser(ctx context.Context, id uint64) (model.User, error) {
	u, err := d.users.GetByID(ctx, id)
	return u, translate(err)
}

// MemberForUser returns the member owned by an identity.
func (d *MemberDirectory) MemberForUser(ctx context.Context, userID uint64) (model.Member, error) {
	m, err := d.members.GetByUserID(ctx, userID)
	return m, translate(err)
}

// GetMember returns a member to an admin or to the member itself.
func (d *MemberDirectory) GetMember(ctx context.Context, p model.Principal, id uint64) (model.Member, error) {
	m, err := d.members.GetByID(ctx, id)
	if err != nil {
		return model.Member{}, translate(err)
	}
	if !p.IsAdmin() && !(p.IsMember() && m.UserID == p.UserID) {
		return model.Member{}, ErrForbidden
	}
	return m, nil
}

func (d *MemberDirectory) ListMembers(ctx context.Context, p model.Principal, q MemberQuery) ([]model.Member, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, invalid("unknown status %q", q.Status)
	}
	if q.MembershipType != "" && !q.MembershipType.Valid() {
		return nil, invalid("unknown membership type %q", q.MembershipType)
	}
	return d.members.List(ctx, repository.MemberFilter{Status: q.Status, MembershipType: q.MembershipType})
}

// UpdateMember applies the non-nil fields of patch. Admin only.
func (d *MemberDirectory) UpdateMember(ctx context.Context, p model.Principal, id uint64, patch MemberPatch) (model.Member, error) {
	if !p.IsAdmin() {
		return model.Member{}, ErrForbidden
	}
	m, err := d.members.GetByID(ctx, id)
	if err != nil {
		return model.Member{}, translate(err)
	}
	if patch.Name != nil {
		m.Name = strings.TrimSpace(*patch.Name)
		if m.Name == "" {
			return model.Member{}, invalid("name must not be empty")
		}
	}
	if patch.Phone != nil {
		m.Phone = strings.TrimSpace(*patch.Phone)
	}
	if patch.MembershipType != nil {
		t := model.MembershipType(strings.ToUpper(string(*patch.MembershipType)))
		if !t.Valid() {
			return model.Member{}, invalid("unknown membership type %q", *patch.MembershipType)
		}
		m.MembershipType = t
	}
	if patch.Status != nil {
		s := model.MemberStatus(strings.ToUpper(string(*patch.Status)))
		if !s.Valid() {
			return model.Member{}, invalid("unknown status %q", *patch.Status)
		}
		m.Status = s
	}
	if err := d.members.Update(ctx, m); err != nil {
		return model.Member{}, translate(err)
	}
	slog.InfoContext(ctx, "member updated", "member_id", m.ID, "status", string(m.Status))
	return m, nil
}

// DeleteMember cancels the member's CONFIRMED bookings, releasing their
// seats, and removes the member together with its identity. All of it
// happens in one transaction. Admin only.
func (d *MemberDirectory) DeleteMember(ctx context.Context, p model.Principal, id uint64) error {
	if !p.IsAdmin() {
		return ErrForbidden
	}
	m, err := d.members.GetByID(ctx, id)
	if err != nil {
		return translate(err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	confirmed, err := d.bookings.ConfirmedForMemberTx(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	var cancelled []queue.BookingCancelledEvent
	for _, b := range confirmed {
		changed, err := d.bookings.CancelTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		seats, err := d.ledger.ReleaseTx(ctx, tx, b.ClassID)
		if err != nil {
			return err
		}
		cancelled = append(cancelled, queue.BookingCancelledEvent{
			EventID:     queue.NewEventID(),
			BookingID:   b.ID,
			MemberID:    b.MemberID,
			ClassID:     b.ClassID,
			BookingDate: b.Date,
			BookingTime: b.Time,
			SeatsTaken:  seats,
			CancelledBy: string(p.Role),
			OccurredAt:  queue.Stamp(d.now()),
		})
	}
	if err := d.users.DeleteTx(ctx, tx, m.UserID); err != nil {
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true

	if len(cancelled) > 0 {
		purgeSchedule(ctx, d.cache)
	}
	for _, ev := range cancelled {
		observability.BookingCancellations.Inc()
		publish(ctx, d.events, queue.RoutingBookingCancelled, ev)
	}
	slog.InfoContext(ctx, "member deleted", "member_id", m.ID, "bookings_cancelled", len(cancelled))
	return nil
}
