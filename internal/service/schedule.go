package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/iliyamo/gym-class-booking/internal/model"
	"github.com/iliyamo/gym-class-booking/internal/repository"
)

// CacheInvalidator drops cached schedule responses after a catalog write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// ClassInput carries the administrator-controlled fields of a class. Nil
// fields take the catalog default on create and keep the stored value on
// update.
type ClassInput struct {
	Name            *string           `json:"name"`
	Description     *string           `json:"description"`
	TrainerID       *uint64           `json:"trainer_id"`
	Slots           *[]model.Slot     `json:"slots"`
	MaxCapacity     *int              `json:"max_capacity"`
	DurationMinutes *int              `json:"duration_minutes"`
	Difficulty      *model.Difficulty `json:"difficulty"`
}

func (in ClassInput) apply(c *model.ScheduledClass) {
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		c.Description = *in.Description
	}
	if in.TrainerID != nil {
		c.TrainerID = *in.TrainerID
	}
	if in.Slots != nil {
		c.Slots = make([]model.Slot, len(*in.Slots))
		for i, slot := range *in.Slots {
			slot.Day = model.Weekday(strings.ToUpper(strings.TrimSpace(string(slot.Day))))
			c.Slots[i] = slot
		}
	}
	if in.MaxCapacity != nil {
		c.MaxCapacity = *in.MaxCapacity
	}
	if in.DurationMinutes != nil {
		c.DurationMinutes = *in.DurationMinutes
	}
	if in.Difficulty != nil {
		c.Difficulty = model.Difficulty(strings.ToUpper(string(*in.Difficulty)))
	}
}

// ScheduleEntry is one slot of one class in the weekly schedule.
type ScheduleEntry struct {
	ClassID        uint64           `json:"class_id"`
	Name           string           `json:"name"`
	TrainerID      uint64           `json:"trainer_id"`
	Difficulty     model.Difficulty `json:"difficulty"`
	StartTime      string           `json:"start_time"`
	EndTime        string           `json:"end_time"`
	MaxCapacity    int              `json:"max_capacity"`
	AvailableSpots int              `json:"available_spots"`
}

// DaySchedule is the schedule of one weekday.
type DaySchedule struct {
	Day     model.Weekday   `json:"day"`
	Classes []ScheduleEntry `json:"classes"`
}

// ScheduleCatalog is the class catalog. Reads are open to every
// authenticated caller; writes are admin only. The seat counter of a class
// belongs to the capacity ledger and is never written here.
type ScheduleCatalog struct {
	classes *repository.ClassRepo
	users   *repository.UserRepo
	cache   CacheInvalidator
}

func NewScheduleCatalog(classes *repository.ClassRepo, users *repository.UserRepo, cache CacheInvalidator) *ScheduleCatalog {
	return &ScheduleCatalog{classes: classes, users: users, cache: cache}
}

// CreateClass stores a new class with zero bookings.
func (s *ScheduleCatalog) CreateClass(ctx context.Context, p model.Principal, in ClassInput) (model.ScheduledClass, error) {
	if !p.IsAdmin() {
		return model.ScheduledClass{}, ErrForbidden
	}
	ctx, span := tracer.Start(ctx, "ScheduleCatalog.CreateClass")
	var err error
	defer func() { finish(span, err) }()

	c := model.NewScheduledClass("", 0)
	in.apply(&c)
	c.Slots = nonNilSlots(c.Slots)
	if err = s.validate(ctx, c); err != nil {
		return model.ScheduledClass{}, err
	}
	if err = s.classes.Create(ctx, &c); err != nil {
		return model.ScheduledClass{}, err
	}
	slog.InfoContext(ctx, "class created", "class_id", c.ID, "name", c.Name, "capacity", c.MaxCapacity)
	s.invalidate(ctx)
	return c, nil
}

// UpdateClass applies the non-nil fields of in. Lowering MaxCapacity below
// the seats already taken fails with ErrInvalidCapacity.
func (s *ScheduleCatalog) UpdateClass(ctx context.Context, p model.Principal, id uint64, in ClassInput) (model.ScheduledClass, error) {
	if !p.IsAdmin() {
		return model.ScheduledClass{}, ErrForbidden
	}
	ctx, span := tracer.Start(ctx, "ScheduleCatalog.UpdateClass")
	span.SetAttributes(attribute.Int64("class.id", int64(id)))
	var err error
	defer func() { finish(span, err) }()

	var c model.ScheduledClass
	c, err = s.classes.GetByID(ctx, id)
	if err != nil {
		err = translate(err)
		return model.ScheduledClass{}, err
	}
	in.apply(&c)
	c.Slots = nonNilSlots(c.Slots)
	if err = s.validate(ctx, c); err != nil {
		return model.ScheduledClass{}, err
	}
	if err = s.classes.Update(ctx, &c); err != nil {
		err = translate(err)
		return model.ScheduledClass{}, err
	}
	s.invalidate(ctx)
	return c, nil
}

// DeleteClass removes a class with no CONFIRMED bookings.
func (s *ScheduleCatalog) DeleteClass(ctx context.Context, p model.Principal, id uint64) error {
	if !p.IsAdmin() {
		return ErrForbidden
	}
	if err := s.classes.Delete(ctx, id); err != nil {
		return translate(err)
	}
	slog.InfoContext(ctx, "class deleted", "class_id", id)
	s.invalidate(ctx)
	return nil
}

func (s *ScheduleCatalog) GetClass(ctx context.Context, id uint64) (model.ScheduledClass, error) {
	c, err := s.classes.GetByID(ctx, id)
	return c, translate(err)
}

// ClassQuery filters ListClasses.
type ClassQuery struct {
	TrainerID  uint64
	Difficulty model.Difficulty
}

func (s *ScheduleCatalog) ListClasses(ctx context.Context, q ClassQuery) ([]model.ScheduledClass, error) {
	if q.Difficulty != "" && !q.Difficulty.Valid() {
		return nil, invalid("unknown difficulty %q", q.Difficulty)
	}
	return s.classes.List(ctx, repository.ClassFilter{TrainerID: q.TrainerID, Difficulty: q.Difficulty})
}

// WeeklySchedule groups every class slot by weekday, Monday first, with
// each day's entries ordered by start time. Days without classes are
// included with an empty list.
func (s *ScheduleCatalog) WeeklySchedule(ctx context.Context) ([]DaySchedule, error) {
	classes, err := s.classes.List(ctx, repository.ClassFilter{})
	if err != nil {
		return nil, err
	}
	byDay := make(map[model.Weekday][]ScheduleEntry, len(model.Weekdays))
	for _, c := range classes {
		for _, slot := range c.Slots {
			byDay[slot.Day] = append(byDay[slot.Day], entryFor(c, slot))
		}
	}
	out := make([]DaySchedule, 0, len(model.Weekdays))
	for _, d := range model.Weekdays {
		out = append(out, DaySchedule{Day: d, Classes: sortEntries(byDay[d])})
	}
	return out, nil
}

// DaySchedule returns the schedule of one weekday.
func (s *ScheduleCatalog) DaySchedule(ctx context.Context, day model.Weekday) (DaySchedule, error) {
	day = model.Weekday(strings.ToUpper(string(day)))
	if !day.Valid() {
		return DaySchedule{}, invalid("unknown day %q", day)
	}
	classes, err := s.classes.List(ctx, repository.ClassFilter{Day: day})
	if err != nil {
		return DaySchedule{}, err
	}
	var entries []ScheduleEntry
	for _, c := range classes {
		for _, slot := range c.Slots {
			if slot.Day == day {
				entries = append(entries, entryFor(c, slot))
			}
		}
	}
	return DaySchedule{Day: day, Classes: sortEntries(entries)}, nil
}

func (s *ScheduleCatalog) validate(ctx context.Context, c model.ScheduledClass) error {
	if err := c.Validate(); err != nil {
		return invalid("%v", err)
	}
	canonicalSlots(c.Slots)
	u, err := s.users.GetByID(ctx, c.TrainerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return invalid("trainer %d does not exist", c.TrainerID)
		}
		return err
	}
	if u.Role != model.RoleTrainer {
		return invalid("user %d is not a trainer", c.TrainerID)
	}
	return nil
}

func (s *ScheduleCatalog) invalidate(ctx context.Context) { purgeSchedule(ctx, s.cache) }

// purgeSchedule drops cached schedule responses. Cached entries carry
// available spots, so every committed seat change must call it.
func purgeSchedule(ctx context.Context, cache CacheInvalidator) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		slog.WarnContext(ctx, "schedule cache invalidation failed", "err", err)
	}
}

func entryFor(c model.ScheduledClass, slot model.Slot) ScheduleEntry {
	return ScheduleEntry{
		ClassID:        c.ID,
		Name:           c.Name,
		TrainerID:      c.TrainerID,
		Difficulty:     c.Difficulty,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		MaxCapacity:    c.MaxCapacity,
		AvailableSpots: c.AvailableSpots(),
	}
}

func sortEntries(entries []ScheduleEntry) []ScheduleEntry {
	if entries == nil {
		return []ScheduleEntry{}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].StartTime != entries[j].StartTime {
			return entries[i].StartTime < entries[j].StartTime
		}
		return entries[i].ClassID < entries[j].ClassID
	})
	return entries
}

// canonicalSlots rewrites validated slot times as zero-padded HH:MM so
// they sort as strings.
func canonicalSlots(slots []model.Slot) {
	for i := range slots {
		if t, err := time.Parse(model.TimeOfDayLayout, slots[i].StartTime); err == nil {
			slots[i].StartTime = t.Format(model.TimeOfDayLayout)
		}
		if t, err := time.Parse(model.TimeOfDayLayout, slots[i].EndTime); err == nil {
			slots[i].EndTime = t.Format(model.TimeOfDayLayout)
		}
	}
}

func nonNilSlots(slots []model.Slot) []model.Slot {
	if slots == nil {
		return []model.Slot{}
	}
	return slots
}
