package model

import "time"

// MembershipType selects the renewal cycle of a member.
type MembershipType string

const (
	MembershipMonthly   MembershipType = "MONTHLY"
	MembershipQuarterly MembershipType = "QUARTERLY"
	MembershipAnnual    MembershipType = "ANNUAL"
)

// DefaultMembershipType is applied when registration omits a type.
const DefaultMembershipType = MembershipMonthly

func (t MembershipType) Valid() bool {
	switch t {
	case MembershipMonthly, MembershipQuarterly, MembershipAnnual:
		return true
	}
	return false
}

// NextRenewal returns from advanced by one membership cycle. Month and
// year arithmetic uses time.AddDate, so a day that does not exist in the
// target month rolls over into the following month: 2024-01-31 plus one
// month is 2024-03-02 and 2024-02-29 plus one year is 2025-03-01.
func (t MembershipType) NextRenewal(from time.Time) time.Time {
	switch t {
	case MembershipQuarterly:
		return from.AddDate(0, 3, 0)
	case MembershipAnnual:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// MemberStatus gates booking eligibility.
type MemberStatus string

const (
	MemberActive    MemberStatus = "ACTIVE"
	MemberSuspended MemberStatus = "SUSPENDED"
	MemberExpired   MemberStatus = "EXPIRED"
)

func (s MemberStatus) Valid() bool {
	switch s {
	case MemberActive, MemberSuspended, MemberExpired:
		return true
	}
	return false
}

// Member is a gym member as stored in the `members` table. Each member
// owns exactly one user row; deleting the member removes that identity.
type Member struct {
	ID             uint64         `json:"id"`              // members.id
	UserID         uint64         `json:"user_id"`         // members.user_id
	Name           string         `json:"name"`            // members.name
	Phone          string         `json:"phone,omitempty"` // members.phone
	MembershipType MembershipType `json:"membership_type"` // members.membership_type
	Status         MemberStatus   `json:"status"`          // members.status
	JoinDate       time.Time      `json:"join_date"`       // members.join_date
}

// NewMember builds a member with the registration defaults: a Monthly
// membership when none is given, Active status and a join date of now.
func NewMember(userID uint64, name, phone string, membership MembershipType, now time.Time) Member {
	if membership == "" {
		membership = DefaultMembershipType
	}
	return Member{
		UserID:         userID,
		Name:           name,
		Phone:          phone,
		MembershipType: membership,
		Status:         MemberActive,
		JoinDate:       now.UTC(),
	}
}
