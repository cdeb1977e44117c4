package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/observability"
	"github.com/iliyamo/gym-class-booking/internal/queue"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// DefaultExpiryWindowDays is the look-ahead of ExpiringMemberships when
// the caller gives none.
const DefaultExpiryWindowDays = 7

// PaymentInput describes a payment to record. A blank TransactionID gets
// a generated one.
type PaymentInput struct {
	MemberID      uint64              `json:"member_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Method        model.PaymentMethod `json:"method"`
	TransactionID string              `json:"transaction_id"`
}

// PaymentQuery filters ListPayments.
type PaymentQuery struct {
	Status model.PaymentStatus
	From   time.Time
	To     time.Time
}

// memberStore is the slice of MemberRepo the payment ledger needs.
type memberStore interface {
	GetByID(ctx context.Context, id uint64) (model.Member, error)
	GetByUserID(ctx context.Context, userID uint64) (model.Member, error)
	UpdateStatus(ctx context.Context, id uint64, status model.MemberStatus) error
}

// PaymentLedger records membership payments and reactivates the paying
// member.
type PaymentLedger struct {
	members  memberStore
	payments *repository.PaymentRepo
	events   EventPublisher

	now func() time.Time
}

func NewPaymentLedger(members memberStore, payments *repository.PaymentRepo, events EventPublisher) *PaymentLedger {
	return &PaymentLedger{members: members, payments: payments, events: orDiscard(events), now: time.Now}
}

// RecordPayment stores a COMPLETED payment, computes its renewal date from
// the member's membership type and sets the member ACTIVE.
//
// The payment is written before the status flip. If the flip fails the
// payment stays recorded and a *PartialFailureError is returned. Calling
// again with the same transaction id finds the stored payment and only
// retries the flip.
func (l *PaymentLedger) RecordPayment(ctx context.Context, in PaymentInput) (model.Payment, error) {
	ctx, span := tracer.Start(ctx, "PaymentLedger.RecordPayment")
	span.SetAttributes(attribute.Int64("member.id", int64(in.MemberID)))
	var err error
	defer func() { finish(span, err) }()

	var p model.Payment
	p, err = l.recordPayment(ctx, in)
	return p, err
}

func (l *PaymentLedger) recordPayment(ctx context.Context, in PaymentInput) (model.Payment, error) {
	if in.MemberID == 0 {
		return model.Payment{}, invalid("member_id is required")
	}
	if !in.Amount.IsPositive() {
		return model.Payment{}, invalid("amount must be positive")
	}
	if in.Amount.Exponent() < -2 {
		return model.Payment{}, invalid("amount has more than two decimal places")
	}
	if !in.Method.Valid() {
		return model.Payment{}, invalid("unknown payment method %q", in.Method)
	}
	in.TransactionID = strings.TrimSpace(in.TransactionID)
	if in.TransactionID == "" {
		in.TransactionID = uuid.NewString()
	}

	member, err := l.members.GetByID(ctx, in.MemberID)
	if err != nil {
		return model.Payment{}, translate(err)
	}

	existing, err := l.payments.GetByTransactionID(ctx, in.TransactionID)
	switch {
	case err == nil:
		return l.retry(ctx, member, in, existing)
	case !errors.Is(err, repository.ErrPaymentNotFound):
		return model.Payment{}, err
	}

	paid := l.now().UTC().Truncate(time.Second)
	p := model.Payment{
		MemberID:      member.ID,
		Amount:        in.Amount,
		Method:        in.Method,
		TransactionID: in.TransactionID,
		Status:        model.PaymentCompleted,
		PaymentDate:   paid,
		RenewalDate:   member.MembershipType.NextRenewal(paid),
	}
	if err := l.payments.Create(ctx, &p); err != nil {
		if errors.Is(err, repository.ErrDuplicateTransaction) {
			// a concurrent call with the same id won the insert
			existing, gerr := l.payments.GetByTransactionID(ctx, in.TransactionID)
			if gerr != nil {
				return model.Payment{}, gerr
			}
			return l.retry(ctx, member, in, existing)
		}
		return model.Payment{}, err
	}
	observability.PaymentsRecorded.WithLabelValues(string(p.Method)).Inc()
	slog.InfoContext(ctx, "payment recorded",
		"payment_id", p.ID, "member_id", p.MemberID, "amount", p.Amount.StringFixed(2), "renewal", p.RenewalDate.Format(model.DateLayout))

	if err := l.activate(ctx, p); err != nil {
		return p, err
	}
	publish(ctx, l.events, queue.RoutingPaymentRecorded, queue.PaymentRecordedEvent{
		EventID:       queue.NewEventID(),
		PaymentID:     p.ID,
		MemberID:      p.MemberID,
		Amount:        p.Amount.StringFixed(2),
		Method:        string(p.Method),
		TransactionID: p.TransactionID,
		PaymentDate:   queue.Stamp(p.PaymentDate),
		RenewalDate:   p.RenewalDate.Format(model.DateLayout),
		OccurredAt:    queue.Stamp(l.now()),
	})
	return p, nil
}

// retry handles a transaction id that is already stored. Only a resend of
// the same payment (member, amount, method) is replayed.
func (l *PaymentLedger) retry(ctx context.Context, member model.Member, in PaymentInput, existing model.Payment) (model.Payment, error) {
	switch {
	case existing.MemberID != member.ID:
		return model.Payment{}, fmt.Errorf("%w: recorded for another member", ErrDuplicateTransaction)
	case !existing.Amount.Equal(in.Amount):
		return model.Payment{}, fmt.Errorf("%w: recorded with amount %s", ErrDuplicateTransaction, existing.Amount.StringFixed(2))
	case existing.Method != in.Method:
		return model.Payment{}, fmt.Errorf("%w: recorded with method %s", ErrDuplicateTransaction, existing.Method)
	}
	if err := l.activate(ctx, existing); err != nil {
		return existing, err
	}
	return existing, nil
}

func (l *PaymentLedger) activate(ctx context.Context, p model.Payment) error {
	if err := l.members.UpdateStatus(ctx, p.MemberID, model.MemberActive); err != nil {
		observability.PaymentPartialFailures.Inc()
		slog.ErrorContext(ctx, "member status update failed after payment",
			"payment_id", p.ID, "member_id", p.MemberID, "transaction_id", p.TransactionID, "err", err)
		return &PartialFailureError{Payment: p, Err: err}
	}
	return nil
}

// ListPayments returns payments newest first. Admin only.
func (l *PaymentLedger) ListPayments(ctx context.Context, p model.Principal, q PaymentQuery) ([]model.Payment, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if q.Status != "" && !q.Status.Valid() {
		return nil, invalid("unknown status %q", q.Status)
	}
	return l.payments.List(ctx, repository.PaymentFilter{Status: q.Status, From: q.From, To: q.To})
}

// MemberPayments lists one member's payments for an admin or that member.
func (l *PaymentLedger) MemberPayments(ctx context.Context, p model.Principal, memberID uint64) ([]model.Payment, error) {
	m, err := l.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, translate(err)
	}
	if err := l.authorize(ctx, p, m.ID); err != nil {
		return nil, err
	}
	return l.payments.List(ctx, repository.PaymentFilter{MemberID: m.ID})
}

// GetPayment returns one payment for an admin or the paying member.
func (l *PaymentLedger) GetPayment(ctx context.Context, p model.Principal, id uint64) (model.Payment, error) {
	pay, err := l.payments.GetByID(ctx, id)
	if err != nil {
		return model.Payment{}, translate(err)
	}
	if err := l.authorize(ctx, p, pay.MemberID); err != nil {
		return model.Payment{}, err
	}
	return pay, nil
}

// ExpiringMemberships lists COMPLETED payments whose renewal date falls
// within the next days days, soonest first. Admin only.
func (l *PaymentLedger) ExpiringMemberships(ctx context.Context, p model.Principal, days int) ([]model.Payment, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if days < 0 {
		return nil, invalid("days must not be negative")
	}
	if days == 0 {
		days = DefaultExpiryWindowDays
	}
	from := l.now().UTC()
	return l.payments.RenewingBetween(ctx, from, from.AddDate(0, 0, days))
}

func (l *PaymentLedger) authorize(ctx context.Context, p model.Principal, memberID uint64) error {
	if p.IsAdmin() {
		return nil
	}
	if !p.IsMember() {
		return ErrForbidden
	}
	self, err := l.members.GetByUserID(ctx, p.UserID)
	if err != nil || self.ID != memberID {
		return ErrForbidden
	}
	return nil
}
