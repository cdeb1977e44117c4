package model

import (
	"errors"
	"fmt"
	"time"
)

// Weekday names a day of a weekly recurrence.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Weekdays lists the days in schedule order, Monday first.
var Weekdays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func (d Weekday) Valid() bool {
	for _, w := range Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// WeekdayOf maps a calendar date to its schedule day.
func WeekdayOf(t time.Time) Weekday {
	// time.Sunday == 0
	return Weekdays[(int(t.Weekday())+6)%7]
}

// Difficulty is the tier a class is pitched at.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "BEGINNER"
	DifficultyIntermediate Difficulty = "INTERMEDIATE"
	DifficultyAdvanced     Difficulty = "ADVANCED"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

const (
	DefaultMaxCapacity     = 10
	DefaultDurationMinutes = 60
	DefaultDifficulty      = DifficultyBeginner
)

// TimeOfDayLayout is the wall-clock format used for slots and bookings.
const TimeOfDayLayout = "15:04"

// Slot is one weekly recurrence of a class.
type Slot struct {
	Day       Weekday `json:"day"`        // class_slots.day_of_week
	StartTime string  `json:"start_time"` // class_slots.start_time (HH:MM)
	EndTime   string  `json:"end_time"`   // class_slots.end_time (HH:MM)
}

// Validate checks the day name, both clock values and that the slot ends
// after it starts.
func (s Slot) Validate() error {
	if !s.Day.Valid() {
		return fmt.Errorf("invalid day %q", s.Day)
	}
	start, err := time.Parse(TimeOfDayLayout, s.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start time %q", s.StartTime)
	}
	end, err := time.Parse(TimeOfDayLayout, s.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end time %q", s.EndTime)
	}
	if !end.After(start) {
		return errors.New("slot must end after it starts")
	}
	return nil
}

// ScheduledClass is a class definition with its weekly slots and the seat
// counters owned by the capacity ledger. CurrentBookings is only ever
// changed together with a booking status transition.
type ScheduledClass struct {
	ID              uint64     `json:"id"`                    // classes.id
	Name            string     `json:"name"`                  // classes.name
	Description     string     `json:"description,omitempty"` // classes.description
	TrainerID       uint64     `json:"trainer_id"`            // classes.trainer_id (users.id)
	Slots           []Slot     `json:"slots"`                 // class_slots rows
	MaxCapacity     int        `json:"max_capacity"`          // classes.max_capacity
	CurrentBookings int        `json:"current_bookings"`      // classes.current_bookings
	DurationMinutes int        `json:"duration_minutes"`      // classes.duration_minutes
	Difficulty      Difficulty `json:"difficulty"`            // classes.difficulty
	CreatedAt       time.Time  `json:"created_at"`            // classes.created_at
	UpdatedAt       time.Time  `json:"updated_at"`            // classes.updated_at
}

// NewScheduledClass returns a class carrying the catalog defaults.
func NewScheduledClass(name string, trainerID uint64) ScheduledClass {
	return ScheduledClass{
		Name:            name,
		TrainerID:       trainerID,
		MaxCapacity:     DefaultMaxCapacity,
		DurationMinutes: DefaultDurationMinutes,
		Difficulty:      DefaultDifficulty,
	}
}

// AvailableSpots is the number of seats still open.
func (c ScheduledClass) AvailableSpots() int {
	if n := c.MaxCapacity - c.CurrentBookings; n > 0 {
		return n
	}
	return 0
}

// Validate checks the definition fields an administrator controls.
func (c ScheduledClass) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if c.TrainerID == 0 {
		return errors.New("trainer_id is required")
	}
	if c.MaxCapacity < 1 {
		return errors.New("max_capacity must be positive")
	}
	if c.DurationMinutes < 1 {
		return errors.New("duration_minutes must be positive")
	}
	if !c.Difficulty.Valid() {
		return fmt.Errorf("invalid difficulty %q", c.Difficulty)
	}
	for _, s := range c.Slots {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
