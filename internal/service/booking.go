package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/observability"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// BookingRequest asks for a seat in a class on a date and time. MemberID
// is only read for administrators; members always book for themselves.
type BookingRequest struct {
	MemberID uint64 `json:"member_id"`
	ClassID  uint64 `json:"class_id"`
	Date     string `json:"booking_date"`
	Time     string `json:"time"`
}

// BookingQuery is the caller-controlled part of ListBookings. The role
// scope is added by the engine.
type BookingQuery struct {
	Status  model.BookingStatus
	ClassID uint64
	From    string
	To      string
}

// BookingEngine admits and cancels bookings. Admission and cancellation
// each run the booking row change and the seat counter change in a single
// transaction, so the counter always equals the number of CONFIRMED
// bookings of a class.
type BookingEngine struct {
	db       *sql.DB
	members  *repository.MemberRepo
	classes  *repository.ClassRepo
	bookings *repository.BookingRepo
	ledger   *CapacityLedger
	events   EventPublisher
	cache    CacheInvalidator

	now func() time.Time
}

func NewBookingEngine(members *repository.MemberRepo, classes *repository.ClassRepo, bookings *repository.BookingRepo, ledger *CapacityLedger, events EventPublisher, cache CacheInvalidator) *BookingEngine {
	return &BookingEngine{
		db:       bookings.DB(),
		members:  members,
		classes:  classes,
		bookings: bookings,
		ledger:   ledger,
		events:   orDiscard(events),
		cache:    cache,
		now:      time.Now,
	}
}

// CreateBooking admits a booking:
//  1. resolve the member (NotFound)
//  2. check eligibility (MembershipInactive)
//  3. resolve the class (NotFound)
//  4. reserve a seat (ClassFull)
//  5. insert the CONFIRMED row (DuplicateBooking)
//
// Steps 4 and 5 share one transaction. A duplicate rolls the reservation
// back with it.
func (e *BookingEngine) CreateBooking(ctx context.Context, p model.Principal, req BookingRequest) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingEngine.CreateBooking")
	span.SetAttributes(attribute.Int64("class.id", int64(req.ClassID)))
	var err error
	defer func() { finish(span, err) }()

	var b model.Booking
	b, err = e.createBooking(ctx, p, req)
	return b, err
}

func (e *BookingEngine) createBooking(ctx context.Context, p model.Principal, req BookingRequest) (model.Booking, error) {
	date, clock, err := model.NormalizeSlot(req.Date, req.Time)
	if err != nil {
		return model.Booking{}, invalid("%v", err)
	}
	if req.ClassID == 0 {
		return model.Booking{}, invalid("class_id is required")
	}

	member, err := e.bookingMember(ctx, p, req.MemberID)
	if err != nil {
		return model.Booking{}, err
	}
	if !IsEligible(member) {
		observability.BookingAdmissions.WithLabelValues(observability.OutcomeInactive).Inc()
		return model.Booking{}, ErrMembershipInactive
	}
	class, err := e.classes.GetByID(ctx, req.ClassID)
	if err != nil {
		return model.Booking{}, translate(err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seats, err := e.ledger.ReserveTx(ctx, tx, class.ID)
	if errors.Is(err, ErrCapacityExceeded) {
		observability.BookingAdmissions.WithLabelValues(observability.OutcomeClassFull).Inc()
		return model.Booking{}, ErrClassFull
	}
	if err != nil {
		return model.Booking{}, err
	}

	b := model.Booking{MemberID: member.ID, ClassID: class.ID, Date: date, Time: clock, ClassName: class.Name}
	if err := e.bookings.CreateTx(ctx, tx, &b); err != nil {
		err = translate(err)
		if errors.Is(err, ErrDuplicateBooking) {
			observability.BookingAdmissions.WithLabelValues(observability.OutcomeDuplicate).Inc()
		}
		return model.Booking{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true

	purgeSchedule(ctx, e.cache)
	observability.BookingAdmissions.WithLabelValues(observability.OutcomeAdmitted).Inc()
	slog.InfoContext(ctx, "booking confirmed",
		"booking_id", b.ID, "member_id", b.MemberID, "class_id", b.ClassID, "seats", seats, "capacity", class.MaxCapacity)
	publish(ctx, e.events, queue.RoutingBookingConfirmed, queue.BookingConfirmedEvent{
		EventID:     queue.NewEventID(),
		BookingID:   b.ID,
		MemberID:    b.MemberID,
		ClassID:     b.ClassID,
		ClassName:   class.Name,
		BookingDate: b.Date,
		BookingTime: b.Time,
		SeatsTaken:  seats,
		Capacity:    class.MaxCapacity,
		OccurredAt:  queue.Stamp(e.now()),
	})
	return b, nil
}

// bookingMember resolves who a booking is for. Members book for
// themselves; an explicit member id naming someone else is refused.
func (e *BookingEngine) bookingMember(ctx context.Context, p model.Principal, memberID uint64) (model.Member, error) {
	switch {
	case p.IsMember():
		m, err := e.members.GetByUserID(ctx, p.UserID)
		if err != nil {
			return model.Member{}, translate(err)
		}
		if memberID != 0 && memberID != m.ID {
			return model.Member{}, ErrForbidden
		}
		return m, nil
	case p.IsAdmin():
		if memberID == 0 {
			return model.Member{}, invalid("member_id is required")
		}
		m, err := e.members.GetByID(ctx, memberID)
		return m, translate(err)
	}
	return model.Member{}, ErrForbidden
}

// CancelBooking moves a CONFIRMED booking to CANCELLED and releases its
// seat. Cancelling an already cancelled booking succeeds without touching
// the ledger; a COMPLETED booking is ErrNotCancellable. Members may only
// cancel their own bookings, admins any.
func (e *BookingEngine) CancelBooking(ctx context.Context, bookingID uint64, p model.Principal) (model.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingEngine.CancelBooking")
	span.SetAttributes(attribute.Int64("booking.id", int64(bookingID)))
	var err error
	defer func() { finish(span, err) }()

	var b model.Booking
	b, err = e.cancelBooking(ctx, bookingID, p)
	return b, err
}

func (e *BookingEngine) cancelBooking(ctx context.Context, bookingID uint64, p model.Principal) (model.Booking, error) {
	b, err := e.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return model.Booking{}, translate(err)
	}
	if err := e.authorizeOwner(ctx, p, b.MemberID); err != nil {
		return model.Booking{}, err
	}
	switch b.Status {
	case model.BookingCancelled:
		return b, nil
	case model.BookingCompleted:
		return model.Booking{}, ErrNotCancellable
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Booking{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	changed, err := e.bookings.CancelTx(ctx, tx, b.ID)
	if err != nil {
		return model.Booking{}, err
	}
	seats := 0
	if changed {
		if seats, err = e.ledger.ReleaseTx(ctx, tx, b.ClassID); err != nil {
			return model.Booking{}, err
		}
	}
	current, err := e.bookings.GetByIDTx(ctx, tx, b.ID)
	if err != nil {
		return model.Booking{}, translate(err)
	}
	if err := tx.Commit(); err != nil {
		return model.Booking{}, err
	}
	committed = true

	if !changed {
		// lost a race with another transition
		if current.Status == model.BookingCompleted {
			return model.Booking{}, ErrNotCancellable
		}
		return current, nil
	}

	purgeSchedule(ctx, e.cache)
	observability.BookingCancellations.Inc()
	slog.InfoContext(ctx, "booking cancelled", "booking_id", b.ID, "class_id", b.ClassID, "by", string(p.Role))
	publish(ctx, e.events, queue.RoutingBookingCancelled, queue.BookingCancelledEvent{
		EventID:     queue.NewEventID(),
		BookingID:   b.ID,
		MemberID:    b.MemberID,
		ClassID:     b.ClassID,
		BookingDate: b.Date,
		BookingTime: b.Time,
		SeatsTaken:  seats,
		CancelledBy: string(p.Role),
		OccurredAt:  queue.Stamp(e.now()),
	})
	return current, nil
}

// authorizeOwner lets admins through and members only for their own
// member id.
func (e *BookingEngine) authorizeOwner(ctx context.Context, p model.Principal, memberID uint64) error {
	if p.IsAdmin() {
		return nil
	}
	if !p.IsMember() {
		return ErrForbidden
	}
	m, err := e.members.GetByUserID(ctx, p.UserID)
	if err != nil {
		return ErrForbidden
	}
	if m.ID != memberID {
		return ErrForbidden
	}
	return nil
}

// ListBookings returns bookings visible to p, newest date first: members
// see their own, trainers the bookings of classes they teach, admins all.
func (e *BookingEngine) ListBookings(ctx context.Context, p model.Principal, q BookingQuery) ([]model.Booking, error) {
	ctx, span := tracer.Start(ctx, "BookingEngine.ListBookings")
	var err error
	defer func() { finish(span, err) }()

	if q.Status != "" && !q.Status.Valid() {
		err = invalid("unknown status %q", q.Status)
		return nil, err
	}
	f := repository.BookingFilter{Status: q.Status, ClassID: q.ClassID, From: q.From, To: q.To}
	switch {
	case p.IsAdmin():
	case p.IsTrainer():
		f.TrainerID = p.UserID
	case p.IsMember():
		var m model.Member
		m, err = e.members.GetByUserID(ctx, p.UserID)
		if err != nil {
			err = translate(err)
			return nil, err
		}
		f.MemberID = m.ID
	default:
		err = ErrForbidden
		return nil, err
	}
	var out []model.Booking
	out, err = e.bookings.List(ctx, f)
	return out, err
}

// UpcomingBookings lists the calling member's CONFIRMED bookings dated
// today or later, soonest first.
func (e *BookingEngine) UpcomingBookings(ctx context.Context, p model.Principal) ([]model.Booking, error) {
	if !p.IsMember() {
		return nil, ErrForbidden
	}
	m, err := e.members.GetByUserID(ctx, p.UserID)
	if err != nil {
		return nil, translate(err)
	}
	return e.bookings.Upcoming(ctx, m.ID, e.now().UTC().Format(model.DateLayout))
}

// GetBooking returns one booking if p may see it.
func (e *BookingEngine) GetBooking(ctx context.Context, p model.Principal, id uint64) (model.Booking, error) {
	b, err := e.bookings.GetByID(ctx, id)
	if err != nil {
		return model.Booking{}, translate(err)
	}
	if p.IsTrainer() {
		trainerID, err := e.bookings.TrainerOf(ctx, id)
		if err != nil {
			return model.Booking{}, translate(err)
		}
		if trainerID != p.UserID {
			return model.Booking{}, ErrForbidden
		}
		return b, nil
	}
	if err := e.authorizeOwner(ctx, p, b.MemberID); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}
