package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

func TestNextRenewal(t *testing.T) {
	cases := []struct {
		name string
		typ  MembershipType
		from time.Time
		want time.Time
	}{
		{"monthly end of january overflows into march", MembershipMonthly, date(2024, 1, 31), date(2024, 3, 2)},
		{"monthly mid month", MembershipMonthly, date(2024, 5, 10), date(2024, 6, 10)},
		{"quarterly", MembershipQuarterly, date(2024, 1, 15), date(2024, 4, 15)},
		{"annual leap day", MembershipAnnual, date(2024, 2, 29), date(2025, 3, 1)},
		{"annual", MembershipAnnual, date(2023, 7, 1), date(2024, 7, 1)},
		{"unknown falls back to monthly", MembershipType("WEEKLY"), date(2024, 3, 1), date(2024, 4, 1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.want.Equal(tc.typ.NextRenewal(tc.from)), "got %s", tc.typ.NextRenewal(tc.from))
		})
	}
}

func TestNewMemberDefaults(t *testing.T) {
	now := date(2024, 1, 1)
	m := NewMember(7, "Ana", "", "", now)
	assert.Equal(t, MembershipMonthly, m.MembershipType)
	assert.Equal(t, MemberActive, m.Status)
	assert.Equal(t, uint64(7), m.UserID)
	assert.True(t, now.Equal(m.JoinDate))

	q := NewMember(7, "Ana", "", MembershipQuarterly, now)
	assert.Equal(t, MembershipQuarterly, q.MembershipType)
}

func TestNewScheduledClassDefaults(t *testing.T) {
	c := NewScheduledClass("Yoga", 3)
	assert.Equal(t, DefaultMaxCapacity, c.MaxCapacity)
	assert.Equal(t, DifficultyBeginner, c.Difficulty)
	assert.Equal(t, 0, c.CurrentBookings)
	assert.Equal(t, DefaultMaxCapacity, c.AvailableSpots())
	require.NoError(t, c.Validate())

	c.CurrentBookings = 12
	assert.Equal(t, 0, c.AvailableSpots())
}

func TestScheduledClassValidate(t *testing.T) {
	c := NewScheduledClass("", 3)
	assert.Error(t, c.Validate())

	c = NewScheduledClass("Spin", 0)
	assert.Error(t, c.Validate())

	c = NewScheduledClass("Spin", 3)
	c.MaxCapacity = 0
	assert.Error(t, c.Validate())

	c = NewScheduledClass("Spin", 3)
	c.Difficulty = "EXPERT"
	assert.Error(t, c.Validate())

	c = NewScheduledClass("Spin", 3)
	c.Slots = []Slot{{Day: Monday, StartTime: "18:00", EndTime: "17:00"}}
	assert.Error(t, c.Validate())
}

func TestSlotValidate(t *testing.T) {
	require.NoError(t, Slot{Day: Friday, StartTime: "07:00", EndTime: "08:00"}.Validate())
	assert.Error(t, Slot{Day: "FUNDAY", StartTime: "07:00", EndTime: "08:00"}.Validate())
	assert.Error(t, Slot{Day: Friday, StartTime: "7am", EndTime: "08:00"}.Validate())
	assert.Error(t, Slot{Day: Friday, StartTime: "07:00", EndTime: "25:00"}.Validate())
	assert.Error(t, Slot{Day: Friday, StartTime: "08:00", EndTime: "08:00"}.Validate())
}

func TestWeekdayOf(t *testing.T) {
	assert.Equal(t, Monday, WeekdayOf(date(2024, 1, 15)))
	assert.Equal(t, Sunday, WeekdayOf(date(2024, 1, 21)))
	assert.Equal(t, Thursday, WeekdayOf(date(2024, 2, 29)))
}

func TestNormalizeSlot(t *testing.T) {
	d, tm, err := NormalizeSlot("2024-03-05", "07:30")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", d)
	assert.Equal(t, "07:30", tm)

	_, _, err = NormalizeSlot("2024-02-30", "07:30")
	assert.Error(t, err)
	_, _, err = NormalizeSlot("2024-03-05", "7:30pm")
	assert.Error(t, err)
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, RoleTrainer.Valid())
	assert.False(t, Role("OWNER").Valid())
	assert.True(t, MemberSuspended.Valid())
	assert.True(t, MethodBankTransfer.Valid())
	assert.False(t, PaymentMethod("CHEQUE").Valid())
	assert.True(t, BookingCompleted.Valid())
	assert.True(t, PaymentPending.Valid())
}
