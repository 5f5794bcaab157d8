package rankingdomain

import (
	"fmt"
	"time"
)

// WeekStatus is the lifecycle state of a competitive week.
type WeekStatus string

const (
	WeekOpen      WeekStatus = "OPEN"
	WeekLocked    WeekStatus = "LOCKED"
	WeekEvaluated WeekStatus = "EVALUATED"
	WeekArchived  WeekStatus = "ARCHIVED"
)

var weekTransitions = map[WeekStatus]WeekStatus{
	WeekOpen:      WeekLocked,
	WeekLocked:    WeekEvaluated,
	WeekEvaluated: WeekArchived,
}

// CanTransitionTo reports whether next is the single allowed successor of s.
// ARCHIVED is terminal.
func (s WeekStatus) CanTransitionTo(next WeekStatus) bool {
	allowed, ok := weekTransitions[s]
	return ok && allowed == next
}

// IsFinal reports whether the week has already been ranked.
func (s WeekStatus) IsFinal() bool {
	return s == WeekEvaluated || s == WeekArchived
}

// Valid reports whether s is one of the four lifecycle states.
func (s WeekStatus) Valid() bool {
	switch s {
	case WeekOpen, WeekLocked, WeekEvaluated, WeekArchived:
		return true
	}
	return false
}

// ValidateTransition returns an *InvalidStateError when from cannot move to to.
func ValidateTransition(weekID int64, from, to WeekStatus) error {
	if !from.CanTransitionTo(to) {
		return &InvalidStateError{WeekID: weekID, From: from, To: to}
	}
	return nil
}

// Week is a competitive period.
type Week struct {
	ID          int64
	Key         string
	StartsAt    time.Time
	EndsAt      time.Time
	Status      WeekStatus
	EvaluatedAt *time.Time
}

// Due reports whether an OPEN week has ended and can be evaluated.
func (w Week) Due(now time.Time) bool {
	return w.Status == WeekOpen && !now.Before(w.EndsAt)
}

// WeekKey formats t as an ISO-8601 week key, e.g. "2026-07".
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-%02d", year, week)
}

// StartOfWeek returns Monday 00:00 of t's ISO week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return day.AddDate(0, 0, -offset)
}

// NextWindow returns the window that follows a week ending at prevEnd.
func NextWindow(prevEnd time.Time, length time.Duration) (time.Time, time.Time) {
	return prevEnd, prevEnd.Add(length)
}

// RetentionElapsed reports whether an evaluated week may be archived.
func RetentionElapsed(evaluatedAt *time.Time, retention time.Duration, now time.Time) bool {
	if evaluatedAt == nil {
		return false
	}
	return !now.Before(evaluatedAt.Add(retention))
}
