package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/gym-class-booking/internal/database"
	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

type recordedEvent struct {
	key   string
	event any
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(_ context.Context, key string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{key, event})
	return nil
}

func (r *recorder) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.key)
	}
	return out
}

type stack struct {
	users    *repository.UserRepo
	members  *repository.MemberRepo
	classes  *repository.ClassRepo
	bookings *repository.BookingRepo
	payments *repository.PaymentRepo

	ledger    *CapacityLedger
	engine    *BookingEngine
	gate      *EligibilityGate
	payLedger *PaymentLedger
	catalog   *ScheduleCatalog
	directory *MemberDirectory
	events    *recorder

	admin model.Principal
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DriverSQLite))
	return newStackOn(t, db)
}

func newStackOn(t *testing.T, db *sql.DB) *stack {
	t.Helper()
	s := &stack{
		users:    repository.NewUserRepo(db),
		members:  repository.NewMemberRepo(db),
		classes:  repository.NewClassRepo(db),
		bookings: repository.NewBookingRepo(db),
		payments: repository.NewPaymentRepo(db),
		events:   &recorder{},
	}
	s.ledger = NewCapacityLedger(s.classes)
	s.engine = NewBookingEngine(s.members, s.classes, s.bookings, s.ledger, s.events, nil)
	s.gate = NewEligibilityGate(s.members, s.payments)
	s.payLedger = NewPaymentLedger(s.members, s.payments, s.events)
	s.catalog = NewScheduleCatalog(s.classes, s.users, nil)
	s.directory = NewMemberDirectory(s.users, s.members, s.bookings, s.ledger, s.events, nil, 4)

	require.NoError(t, s.directory.EnsureAdmin(context.Background(), "admin@gym.io", "admin-secret"))
	admin, err := s.users.GetByEmail(context.Background(), "admin@gym.io")
	require.NoError(t, err)
	s.admin = model.Principal{UserID: admin.ID, Role: model.RoleAdmin}
	return s
}

func (s *stack) trainer(t *testing.T, email string) model.Principal {
	t.Helper()
	reg, err := s.directory.Register(context.Background(), RegisterInput{
		Email: email, Password: "password1", Role: model.RoleTrainer,
	})
	require.NoError(t, err)
	require.Nil(t, reg.Member)
	return model.Principal{UserID: reg.User.ID, Role: model.RoleTrainer}
}

func (s *stack) member(t *testing.T, email string, membership model.MembershipType) (model.Principal, model.Member) {
	t.Helper()
	reg, err := s.directory.Register(context.Background(), RegisterInput{
		Email: email, Password: "password1", Name: email, MembershipType: membership,
	})
	require.NoError(t, err)
	require.NotNil(t, reg.Member)
	return model.Principal{UserID: reg.User.ID, Role: model.RoleMember}, *reg.Member
}

func (s *stack) class(t *testing.T, trainer model.Principal, capacity int) model.ScheduledClass {
	t.Helper()
	name := "Spin"
	slots := []model.Slot{{Day: model.Monday, StartTime: "07:00", EndTime: "08:00"}}
	c, err := s.catalog.CreateClass(context.Background(), s.admin, ClassInput{
		Name: &name, TrainerID: &trainer.UserID, MaxCapacity: &capacity, Slots: &slots,
	})
	require.NoError(t, err)
	return c
}

// assertLedger checks the counter against the CONFIRMED rows and the
// capacity bounds.
func (s *stack) assertLedger(t *testing.T, classID uint64, want int) {
	t.Helper()
	c, err := s.classes.GetByID(context.Background(), classID)
	require.NoError(t, err)
	confirmed, err := s.bookings.CountConfirmed(context.Background(), classID)
	require.NoError(t, err)
	assert.Equal(t, want, c.CurrentBookings)
	assert.Equal(t, confirmed, c.CurrentBookings)
	assert.GreaterOrEqual(t, c.CurrentBookings, 0)
	assert.LessOrEqual(t, c.CurrentBookings, c.MaxCapacity)
}

func req(classID uint64) BookingRequest {
	return BookingRequest{ClassID: classID, Date: "2030-01-07", Time: "07:00"}
}

func TestCapacityOneLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 1)
	alice, _ := s.member(t, "alice@gym.io", "")
	bob, _ := s.member(t, "bob@gym.io", "")

	b, err := s.engine.CreateBooking(ctx, alice, req(class.ID))
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, b.Status)
	s.assertLedger(t, class.ID, 1)

	_, err = s.engine.CreateBooking(ctx, bob, req(class.ID))
	assert.ErrorIs(t, err, ErrClassFull)
	s.assertLedger(t, class.ID, 1)

	cancelled, err := s.engine.CancelBooking(ctx, b.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, cancelled.Status)
	s.assertLedger(t, class.ID, 0)

	_, err = s.engine.CreateBooking(ctx, bob, req(class.ID))
	require.NoError(t, err)
	s.assertLedger(t, class.ID, 1)

	assert.Equal(t, []string{
		queue.RoutingBookingConfirmed, queue.RoutingBookingCancelled, queue.RoutingBookingConfirmed,
	}, s.events.keys())
}

func TestConcurrentLastSeat(t *testing.T) {
	s := newStack(t)
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 2)
	first, _ := s.member(t, "first@gym.io", "")
	_, err := s.engine.CreateBooking(context.Background(), first, req(class.ID))
	require.NoError(t, err)

	racers := []model.Principal{}
	for i := 0; i < 2; i++ {
		p, _ := s.member(t, fmt.Sprintf("racer%d@gym.io", i), "")
		racers = append(racers, p)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(racers))
	for i, p := range racers {
		wg.Add(1)
		go func(i int, p model.Principal) {
			defer wg.Done()
			_, errs[i] = s.engine.CreateBooking(context.Background(), p, req(class.ID))
		}(i, p)
	}
	wg.Wait()

	ok, full := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrClassFull):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, full)
	s.assertLedger(t, class.ID, 2)
}

func TestDuplicateBookingRollsBackSeat(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 5)
	alice, _ := s.member(t, "alice@gym.io", "")

	_, err := s.engine.CreateBooking(ctx, alice, req(class.ID))
	require.NoError(t, err)
	_, err = s.engine.CreateBooking(ctx, alice, req(class.ID))
	assert.ErrorIs(t, err, ErrDuplicateBooking)
	s.assertLedger(t, class.ID, 1)

	// another time on the same day is a different booking
	other := req(class.ID)
	other.Time = "18:30"
	_, err = s.engine.CreateBooking(ctx, alice, other)
	require.NoError(t, err)
	s.assertLedger(t, class.ID, 2)
}

func TestDoubleCancelReleasesOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 3)
	alice, _ := s.member(t, "alice@gym.io", "")
	bob, _ := s.member(t, "bob@gym.io", "")

	b, err := s.engine.CreateBooking(ctx, alice, req(class.ID))
	require.NoError(t, err)
	_, err = s.engine.CreateBooking(ctx, bob, req(class.ID))
	require.NoError(t, err)
	s.assertLedger(t, class.ID, 2)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.engine.CancelBooking(ctx, b.ID, alice)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	s.assertLedger(t, class.ID, 1)

	again, err := s.engine.CancelBooking(ctx, b.ID, s.admin)
	require.NoError(t, err)
	assert.Equal(t, model.BookingCancelled, again.Status)
	s.assertLedger(t, class.ID, 1)
}

func TestCancelAuthorization(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 3)
	alice, _ := s.member(t, "alice@gym.io", "")
	bob, _ := s.member(t, "bob@gym.io", "")

	b, err := s.engine.CreateBooking(ctx, alice, req(class.ID))
	require.NoError(t, err)

	_, err = s.engine.CancelBooking(ctx, b.ID, bob)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.engine.CancelBooking(ctx, b.ID, coach)
	assert.ErrorIs(t, err, ErrForbidden)
	s.assertLedger(t, class.ID, 1)

	_, err = s.engine.CancelBooking(ctx, 9999, s.admin)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.engine.CancelBooking(ctx, b.ID, s.admin)
	require.NoError(t, err)
	s.assertLedger(t, class.ID, 0)
}

func TestInactiveMemberLeavesLedgerUntouched(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 3)
	alice, m := s.member(t, "alice@gym.io", "")

	suspended := model.MemberSuspended
	_, err := s.directory.UpdateMember(ctx, s.admin, m.ID, MemberPatch{Status: &suspended})
	require.NoError(t, err)

	_, err = s.engine.CreateBooking(ctx, alice, req(class.ID))
	assert.ErrorIs(t, err, ErrMembershipInactive)
	s.assertLedger(t, class.ID, 0)
	assert.Empty(t, s.events.keys())

	el, err := s.gate.GetEligibility(ctx, alice, m.ID)
	require.NoError(t, err)
	assert.False(t, el.Eligible)
	assert.Equal(t, model.MemberSuspended, el.Status)
	assert.Nil(t, el.RenewalDate)
}

func TestCreateBookingValidation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 3)
	alice, m := s.member(t, "alice@gym.io", "")
	_, other := s.member(t, "other@gym.io", "")

	cases := []struct {
		name string
		p    model.Principal
		in   BookingRequest
		want error
	}{
		{"bad date", alice, BookingRequest{ClassID: class.ID, Date: "07/01/2030", Time: "07:00"}, ErrInvalidInput},
		{"bad time", alice, BookingRequest{ClassID: class.ID, Date: "2030-01-07", Time: "7am"}, ErrInvalidInput},
		{"unknown class", alice, req(424242), ErrNotFound},
		{"someone else", alice, BookingRequest{MemberID: other.ID, ClassID: class.ID, Date: "2030-01-07", Time: "07:00"}, ErrForbidden},
		{"trainer", coach, req(class.ID), ErrForbidden},
		{"admin without member", s.admin, req(class.ID), ErrInvalidInput},
		{"admin unknown member", s.admin, BookingRequest{MemberID: 777, ClassID: class.ID, Date: "2030-01-07", Time: "07:00"}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.engine.CreateBooking(ctx, tc.p, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	s.assertLedger(t, class.ID, 0)

	b, err := s.engine.CreateBooking(ctx, s.admin, BookingRequest{MemberID: m.ID, ClassID: class.ID, Date: "2030-01-07", Time: "07:00"})
	require.NoError(t, err)
	assert.Equal(t, m.ID, b.MemberID)
}

func TestListBookingsRoleScope(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	otherCoach := s.trainer(t, "coach2@gym.io")
	spin := s.class(t, coach, 5)
	yoga := s.class(t, otherCoach, 5)
	alice, _ := s.member(t, "alice@gym.io", "")
	bob, _ := s.member(t, "bob@gym.io", "")

	_, err := s.engine.CreateBooking(ctx, alice, req(spin.ID))
	require.NoError(t, err)
	_, err = s.engine.CreateBooking(ctx, alice, req(yoga.ID))
	require.NoError(t, err)
	bobs, err := s.engine.CreateBooking(ctx, bob, req(yoga.ID))
	require.NoError(t, err)

	got, err := s.engine.ListBookings(ctx, alice, BookingQuery{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.engine.ListBookings(ctx, coach, BookingQuery{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, spin.ID, got[0].ClassID)

	got, err = s.engine.ListBookings(ctx, s.admin, BookingQuery{ClassID: yoga.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.engine.GetBooking(ctx, alice, bobs.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.engine.GetBooking(ctx, coach, bobs.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.engine.GetBooking(ctx, otherCoach, bobs.ID)
	assert.NoError(t, err)

	_, err = s.engine.ListBookings(ctx, s.admin, BookingQuery{Status: "LOST"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpcomingBookings(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.engine.now = func() time.Time { return time.Date(2030, 1, 10, 9, 0, 0, 0, time.UTC) }
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 5)
	alice, _ := s.member(t, "alice@gym.io", "")

	for _, slot := range [][2]string{{"2030-01-09", "07:00"}, {"2030-01-20", "07:00"}, {"2030-01-10", "18:00"}, {"2030-01-10", "07:00"}} {
		_, err := s.engine.CreateBooking(ctx, alice, BookingRequest{ClassID: class.ID, Date: slot[0], Time: slot[1]})
		require.NoError(t, err)
	}
	got, err := s.engine.UpcomingBookings(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "2030-01-10", got[0].Date)
	assert.Equal(t, "07:00", got[0].Time)
	assert.Equal(t, "18:00", got[1].Time)
	assert.Equal(t, "2030-01-20", got[2].Date)

	_, err = s.engine.UpcomingBookings(ctx, s.admin)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCapacityLedgerDirect(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 1)

	n, err := s.ledger.Reserve(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.ledger.Reserve(ctx, class.ID)
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	n, err = s.ledger.Release(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = s.ledger.Release(ctx, class.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.ledger.Reserve(ctx, 5555)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordPaymentRenewsAndReactivates(t *testing.T) {
	cases := []struct {
		membership model.MembershipType
		paidAt     time.Time
		renewal    string
	}{
		{model.MembershipMonthly, time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), "2024-03-02"},
		{model.MembershipQuarterly, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), "2024-04-15"},
		{model.MembershipAnnual, time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC), "2025-03-01"},
	}
	for _, tc := range cases {
		t.Run(string(tc.membership), func(t *testing.T) {
			s := newStack(t)
			ctx := context.Background()
			s.payLedger.now = func() time.Time { return tc.paidAt }
			_, m := s.member(t, "alice@gym.io", tc.membership)
			expired := model.MemberExpired
			_, err := s.directory.UpdateMember(ctx, s.admin, m.ID, MemberPatch{Status: &expired})
			require.NoError(t, err)

			p, err := s.payLedger.RecordPayment(ctx, PaymentInput{
				MemberID: m.ID, Amount: decimal.RequireFromString("49.90"), Method: model.MethodCard, TransactionID: "txn-1",
			})
			require.NoError(t, err)
			assert.Equal(t, model.PaymentCompleted, p.Status)
			assert.Equal(t, tc.renewal, p.RenewalDate.Format(model.DateLayout))

			got, err := s.members.GetByID(ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, model.MemberActive, got.Status)

			stored, err := s.payments.GetByTransactionID(ctx, "txn-1")
			require.NoError(t, err)
			assert.Equal(t, "49.90", stored.Amount.StringFixed(2))
			assert.Equal(t, tc.renewal, stored.RenewalDate.Format(model.DateLayout))
			assert.Equal(t, []string{queue.RoutingPaymentRecorded}, s.events.keys())
		})
	}
}

func TestRecordPaymentValidation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, m := s.member(t, "alice@gym.io", "")

	_, err := s.payLedger.RecordPayment(ctx, PaymentInput{MemberID: m.ID, Amount: decimal.Zero, Method: model.MethodCash})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.payLedger.RecordPayment(ctx, PaymentInput{MemberID: m.ID, Amount: decimal.NewFromInt(-5), Method: model.MethodCash})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.payLedger.RecordPayment(ctx, PaymentInput{MemberID: m.ID, Amount: decimal.NewFromInt(5), Method: "BARTER"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.payLedger.RecordPayment(ctx, PaymentInput{MemberID: 999, Amount: decimal.NewFromInt(5), Method: model.MethodCash})
	assert.ErrorIs(t, err, ErrNotFound)

	p, err := s.payLedger.RecordPayment(ctx, PaymentInput{MemberID: m.ID, Amount: decimal.NewFromInt(5), Method: model.MethodUPI})
	require.NoError(t, err)
	assert.NotEmpty(t, p.TransactionID)
}

func TestRecordPaymentRetryIsIdempotent(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, alice := s.member(t, "alice@gym.io", "")
	_, bob := s.member(t, "bob@gym.io", "")
	in := PaymentInput{MemberID: alice.ID, Amount: decimal.NewFromInt(30), Method: model.MethodCash, TransactionID: "txn-9"}

	first, err := s.payLedger.RecordPayment(ctx, in)
	require.NoError(t, err)
	second, err := s.payLedger.RecordPayment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	all, err := s.payLedger.MemberPayments(ctx, s.admin, alice.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, []string{queue.RoutingPaymentRecorded}, s.events.keys())

	in.MemberID = bob.ID
	_, err = s.payLedger.RecordPayment(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)
}

func TestRecordPaymentResendWithChangedDetailsIsRejected(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, alice := s.member(t, "alice@gym.io", "")
	in := PaymentInput{MemberID: alice.ID, Amount: decimal.RequireFromString("30.00"), Method: model.MethodCash, TransactionID: "txn-10"}
	first, err := s.payLedger.RecordPayment(ctx, in)
	require.NoError(t, err)

	// equal value with a different scale is the same payment
	same := in
	same.Amount = decimal.NewFromInt(30)
	again, err := s.payLedger.RecordPayment(ctx, same)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	moreMoney := in
	moreMoney.Amount = decimal.RequireFromString("300.00")
	_, err = s.payLedger.RecordPayment(ctx, moreMoney)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	byCard := in
	byCard.Method = model.MethodCard
	_, err = s.payLedger.RecordPayment(ctx, byCard)
	assert.ErrorIs(t, err, ErrDuplicateTransaction)

	all, err := s.payLedger.MemberPayments(ctx, s.admin, alice.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].Amount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, model.MethodCash, all[0].Method)
}

type failingStatus struct {
	*repository.MemberRepo
	fail bool
}

func (f *failingStatus) UpdateStatus(ctx context.Context, id uint64, status model.MemberStatus) error {
	if f.fail {
		return errors.New("connection reset")
	}
	return f.MemberRepo.UpdateStatus(ctx, id, status)
}

func TestRecordPaymentPartialFailure(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, m := s.member(t, "alice@gym.io", "")
	expired := model.MemberExpired
	_, err := s.directory.UpdateMember(ctx, s.admin, m.ID, MemberPatch{Status: &expired})
	require.NoError(t, err)

	store := &failingStatus{MemberRepo: s.members, fail: true}
	ledger := NewPaymentLedger(store, s.payments, s.events)
	in := PaymentInput{MemberID: m.ID, Amount: decimal.NewFromInt(30), Method: model.MethodCard, TransactionID: "txn-p"}

	p, err := ledger.RecordPayment(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialFailure)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "txn-p", pf.Payment.TransactionID)
	assert.NotZero(t, p.ID)

	got, err := s.members.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MemberExpired, got.Status)
	assert.Empty(t, s.events.keys())

	store.fail = false
	retried, err := ledger.RecordPayment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, p.ID, retried.ID)
	got, err = s.members.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MemberActive, got.Status)

	all, err := s.payments.List(ctx, repository.PaymentFilter{MemberID: m.ID})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPaymentQueries(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	now := time.Date(2030, 3, 1, 12, 0, 0, 0, time.UTC)
	alice, am := s.member(t, "alice@gym.io", model.MembershipMonthly)
	bob, bm := s.member(t, "bob@gym.io", model.MembershipAnnual)

	// renews 2030-03-04, inside the default window
	s.payLedger.now = func() time.Time { return time.Date(2030, 2, 4, 9, 0, 0, 0, time.UTC) }
	ap, err := s.payLedger.RecordPayment(ctx, PaymentInput{MemberID: am.ID, Amount: decimal.NewFromInt(30), Method: model.MethodCard})
	require.NoError(t, err)
	// renews 2031
	s.payLedger.now = func() time.Time { return time.Date(2030, 2, 10, 9, 0, 0, 0, time.UTC) }
	_, err = s.payLedger.RecordPayment(ctx, PaymentInput{MemberID: bm.ID, Amount: decimal.NewFromInt(300), Method: model.MethodBankTransfer})
	require.NoError(t, err)

	s.payLedger.now = func() time.Time { return now }
	expiring, err := s.payLedger.ExpiringMemberships(ctx, s.admin, 0)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, ap.ID, expiring[0].ID)

	_, err = s.payLedger.ExpiringMemberships(ctx, alice, 7)
	assert.ErrorIs(t, err, ErrForbidden)

	all, err := s.payLedger.ListPayments(ctx, s.admin, PaymentQuery{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, bm.ID, all[0].MemberID)

	_, err = s.payLedger.ListPayments(ctx, alice, PaymentQuery{})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = s.payLedger.GetPayment(ctx, bob, ap.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	got, err := s.payLedger.GetPayment(ctx, alice, ap.ID)
	require.NoError(t, err)
	assert.Equal(t, ap.ID, got.ID)

	_, err = s.payLedger.MemberPayments(ctx, bob, am.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	el, err := s.gate.GetEligibility(ctx, alice, am.ID)
	require.NoError(t, err)
	assert.True(t, el.Eligible)
	require.NotNil(t, el.RenewalDate)
	assert.Equal(t, "2030-03-04", el.RenewalDate.Format(model.DateLayout))

	_, err = s.gate.GetEligibility(ctx, bob, am.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestScheduleCatalog(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	alice, _ := s.member(t, "alice@gym.io", "")

	name := "Morning Yoga"
	slots := []model.Slot{
		{Day: "monday", StartTime: "9:00", EndTime: "10:00"},
		{Day: model.Wednesday, StartTime: "18:00", EndTime: "19:00"},
	}
	yoga, err := s.catalog.CreateClass(ctx, s.admin, ClassInput{Name: &name, TrainerID: &coach.UserID, Slots: &slots})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultMaxCapacity, yoga.MaxCapacity)
	assert.Equal(t, model.DefaultDurationMinutes, yoga.DurationMinutes)
	assert.Equal(t, model.DifficultyBeginner, yoga.Difficulty)
	assert.Equal(t, 0, yoga.CurrentBookings)
	spin := s.class(t, coach, 2)

	week, err := s.catalog.WeeklySchedule(ctx)
	require.NoError(t, err)
	require.Len(t, week, 7)
	assert.Equal(t, model.Monday, week[0].Day)
	assert.Equal(t, model.Sunday, week[6].Day)
	require.Len(t, week[0].Classes, 2)
	assert.Equal(t, spin.ID, week[0].Classes[0].ClassID) // 07:00
	assert.Equal(t, "09:00", week[0].Classes[1].StartTime)
	assert.Len(t, week[2].Classes, 1)
	assert.Empty(t, week[6].Classes)

	_, err = s.engine.CreateBooking(ctx, alice, req(spin.ID))
	require.NoError(t, err)
	day, err := s.catalog.DaySchedule(ctx, "Monday")
	require.NoError(t, err)
	require.Len(t, day.Classes, 2)
	assert.Equal(t, 1, day.Classes[0].AvailableSpots)

	_, err = s.catalog.DaySchedule(ctx, "FUNDAY")
	assert.ErrorIs(t, err, ErrInvalidInput)

	one := 0
	_, err = s.catalog.UpdateClass(ctx, s.admin, spin.ID, ClassInput{MaxCapacity: &one})
	assert.ErrorIs(t, err, ErrInvalidInput)
	one = 1
	updated, err := s.catalog.UpdateClass(ctx, s.admin, spin.ID, ClassInput{MaxCapacity: &one})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.MaxCapacity)
	assert.Equal(t, 1, updated.CurrentBookings)

	err = s.catalog.DeleteClass(ctx, s.admin, spin.ID)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, s.catalog.DeleteClass(ctx, s.admin, yoga.ID))
	_, err = s.catalog.GetClass(ctx, yoga.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.catalog.CreateClass(ctx, alice, ClassInput{Name: &name, TrainerID: &coach.UserID})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.catalog.CreateClass(ctx, s.admin, ClassInput{Name: &name, TrainerID: &alice.UserID})
	assert.ErrorIs(t, err, ErrInvalidInput)
	bad := []model.Slot{{Day: model.Friday, StartTime: "10:00", EndTime: "09:00"}}
	_, err = s.catalog.CreateClass(ctx, s.admin, ClassInput{Name: &name, TrainerID: &coach.UserID, Slots: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	list, err := s.catalog.ListClasses(ctx, ClassQuery{TrainerID: coach.UserID})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestUpdateClassBelowBookingsIsInvalidCapacity(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 3)
	for i := 0; i < 2; i++ {
		p, _ := s.member(t, fmt.Sprintf("m%d@gym.io", i), "")
		_, err := s.engine.CreateBooking(ctx, p, req(class.ID))
		require.NoError(t, err)
	}
	one := 1
	_, err := s.catalog.UpdateClass(ctx, s.admin, class.ID, ClassInput{MaxCapacity: &one})
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	s.assertLedger(t, class.ID, 2)
}

type countingCache struct{ calls int }

func (c *countingCache) Invalidate(context.Context) error { c.calls++; return nil }

func TestCatalogWritesInvalidateCache(t *testing.T) {
	s := newStack(t)
	cache := &countingCache{}
	s.catalog = NewScheduleCatalog(s.classes, s.users, cache)
	coach := s.trainer(t, "coach@gym.io")
	c := s.class(t, coach, 4)
	name := "Renamed"
	_, err := s.catalog.UpdateClass(context.Background(), s.admin, c.ID, ClassInput{Name: &name})
	require.NoError(t, err)
	require.NoError(t, s.catalog.DeleteClass(context.Background(), s.admin, c.ID))
	assert.Equal(t, 3, cache.calls)
}

func TestSeatChangesInvalidateCache(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	cache := &countingCache{}
	s.engine = NewBookingEngine(s.members, s.classes, s.bookings, s.ledger, s.events, cache)
	s.directory = NewMemberDirectory(s.users, s.members, s.bookings, s.ledger, s.events, cache, 4)
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 3)
	alice, _ := s.member(t, "alice@gym.io", "")
	bob, bobMember := s.member(t, "bob@gym.io", "")
	_, idle := s.member(t, "idle@gym.io", "")

	b, err := s.engine.CreateBooking(ctx, alice, req(class.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.calls)

	_, err = s.engine.CreateBooking(ctx, alice, req(class.ID))
	require.ErrorIs(t, err, ErrDuplicateBooking)
	assert.Equal(t, 1, cache.calls, "rolled back admission leaves the cache alone")

	_, err = s.engine.CancelBooking(ctx, b.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.calls)
	_, err = s.engine.CancelBooking(ctx, b.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.calls, "repeat cancel releases nothing")

	_, err = s.engine.CreateBooking(ctx, bob, req(class.ID))
	require.NoError(t, err)
	assert.Equal(t, 3, cache.calls)
	require.NoError(t, s.directory.DeleteMember(ctx, s.admin, bobMember.ID))
	assert.Equal(t, 4, cache.calls)
	require.NoError(t, s.directory.DeleteMember(ctx, s.admin, idle.ID))
	assert.Equal(t, 4, cache.calls)
	s.assertLedger(t, class.ID, 0)
}

func TestMemberDirectory(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	reg, err := s.directory.Register(ctx, RegisterInput{Email: " Alice@Gym.io ", Password: "password1", Name: "Alice"})
	require.NoError(t, err)
	require.NotNil(t, reg.Member)
	assert.Equal(t, model.MembershipMonthly, reg.Member.MembershipType)
	assert.Equal(t, model.MemberActive, reg.Member.Status)
	alice := model.Principal{UserID: reg.User.ID, Role: model.RoleMember}

	_, err = s.directory.Register(ctx, RegisterInput{Email: "alice@gym.io", Password: "password1", Name: "Again"})
	assert.ErrorIs(t, err, ErrEmailExists)
	_, err = s.directory.Register(ctx, RegisterInput{Email: "root@gym.io", Password: "password1", Role: model.RoleAdmin})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = s.directory.Register(ctx, RegisterInput{Email: "short@gym.io", Password: "pw", Name: "S"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	u, err := s.directory.Authenticate(ctx, "alice@gym.io", "password1")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, u.ID)
	_, err = s.directory.Authenticate(ctx, "alice@gym.io", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.directory.Authenticate(ctx, "nobody@gym.io", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, s.directory.EnsureAdmin(ctx, "admin@gym.io", "other"))

	_, bob := s.member(t, "bob@gym.io", model.MembershipAnnual)
	_, err = s.directory.GetMember(ctx, alice, bob.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	self, err := s.directory.GetMember(ctx, alice, reg.Member.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", self.Name)

	list, err := s.directory.ListMembers(ctx, s.admin, MemberQuery{MembershipType: model.MembershipAnnual})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bob.ID, list[0].ID)
	_, err = s.directory.ListMembers(ctx, alice, MemberQuery{})
	assert.ErrorIs(t, err, ErrForbidden)

	quarterly := model.MembershipType("quarterly")
	updated, err := s.directory.UpdateMember(ctx, s.admin, bob.ID, MemberPatch{MembershipType: &quarterly})
	require.NoError(t, err)
	assert.Equal(t, model.MembershipQuarterly, updated.MembershipType)
	lost := model.MemberStatus("LOST")
	_, err = s.directory.UpdateMember(ctx, s.admin, bob.ID, MemberPatch{Status: &lost})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeleteMemberReleasesSeats(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	coach := s.trainer(t, "coach@gym.io")
	class := s.class(t, coach, 3)
	alice, m := s.member(t, "alice@gym.io", "")
	bob, _ := s.member(t, "bob@gym.io", "")

	_, err := s.engine.CreateBooking(ctx, alice, req(class.ID))
	require.NoError(t, err)
	later := req(class.ID)
	later.Date = "2030-01-14"
	_, err = s.engine.CreateBooking(ctx, alice, later)
	require.NoError(t, err)
	_, err = s.engine.CreateBooking(ctx, bob, req(class.ID))
	require.NoError(t, err)
	s.assertLedger(t, class.ID, 3)

	assert.ErrorIs(t, s.directory.DeleteMember(ctx, alice, m.ID), ErrForbidden)
	require.NoError(t, s.directory.DeleteMember(ctx, s.admin, m.ID))
	s.assertLedger(t, class.ID, 1)

	_, err = s.members.GetByID(ctx, m.ID)
	assert.ErrorIs(t, err, repository.ErrMemberNotFound)
	_, err = s.users.GetByID(ctx, alice.UserID)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.ErrorIs(t, s.directory.DeleteMember(ctx, s.admin, m.ID), ErrNotFound)
}

func TestTranslateKeepsUnknownErrors(t *testing.T) {
	boom := errors.New("boom")
	assert.Same(t, boom, translate(boom))
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(repository.ErrClassNotFound), ErrNotFound)
	assert.ErrorIs(t, translate(repository.ErrCapacityBelowBookings), ErrInvalidCapacity)
}
