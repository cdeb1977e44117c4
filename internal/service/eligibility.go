package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// IsEligible reports whether m may book: true iff the status is ACTIVE.
// Renewal dates are not consulted; expiry is applied by whoever updates
// the member status.
func IsEligible(m model.Member) bool {
	return m.Status == model.MemberActive
}

// Eligibility is the gate's answer for one member.
type Eligibility struct {
	MemberID    uint64             `json:"member_id"`
	Status      model.MemberStatus `json:"status"`
	Eligible    bool               `json:"eligible"`
	RenewalDate *time.Time         `json:"renewal_date,omitempty"` // from the latest completed payment
}

// EligibilityGate answers booking eligibility questions. It never
// mutates state.
type EligibilityGate struct {
	members  *repository.MemberRepo
	payments *repository.PaymentRepo
}

func NewEligibilityGate(members *repository.MemberRepo, payments *repository.PaymentRepo) *EligibilityGate {
	return &EligibilityGate{members: members, payments: payments}
}

// GetEligibility resolves the member and evaluates IsEligible. Admins may
// ask about anyone; members only about themselves.
func (g *EligibilityGate) GetEligibility(ctx context.Context, p model.Principal, memberID uint64) (Eligibility, error) {
	ctx, span := tracer.Start(ctx, "EligibilityGate.GetEligibility")
	var err error
	defer func() { finish(span, err) }()

	var m model.Member
	m, err = g.members.GetByID(ctx, memberID)
	if err != nil {
		err = translate(err)
		return Eligibility{}, err
	}
	if !p.IsAdmin() && !(p.IsMember() && m.UserID == p.UserID) {
		err = ErrForbidden
		return Eligibility{}, err
	}

	out := Eligibility{MemberID: m.ID, Status: m.Status, Eligible: IsEligible(m)}
	last, perr := g.payments.LatestCompleted(ctx, m.ID)
	switch {
	case perr == nil:
		renewal := last.RenewalDate
		out.RenewalDate = &renewal
	case !errors.Is(perr, repository.ErrPaymentNotFound):
		err = perr
		return Eligibility{}, err
	}
	return out, nil
}
