package rankingdomain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyLadder          = errors.New("ladder has no tiers")
	ErrInvalidLadder        = errors.New("invalid ladder")
	ErrInvalidRule          = errors.New("invalid tier rule")
	ErrInvalidReward        = errors.New("invalid reward rule")
	ErrRetentionNotElapsed  = errors.New("retention window has not elapsed")
	ErrOpenWeekExists       = errors.New("an open week already exists")
	ErrPreviousWeekNotFinal = errors.New("previous week is not evaluated")
	ErrNoDueWeek            = errors.New("no open week is due for evaluation")
	ErrAlreadyBootstrapped  = errors.New("a week already exists")
	ErrEvaluationInProgress = errors.New("a week is being evaluated")
	ErrWeekNotLocked        = errors.New("week is not locked")
	ErrWeekSuperseded       = errors.New("week already has a successor")
	ErrWeekNotFinal         = errors.New("week has not been evaluated")
)

// InvalidStateError reports a lifecycle transition that the week's current
// status does not allow.
type InvalidStateError struct {
	WeekID int64
	From   WeekStatus
	To     WeekStatus
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("week %d: cannot transition from %s to %s", e.WeekID, e.From, e.To)
}

// AlreadyEvaluatedError is returned when an evaluation is requested for a week
// that is already EVALUATED or ARCHIVED. Nothing is written.
type AlreadyEvaluatedError struct {
	WeekID int64
	Status WeekStatus
}

func (e *AlreadyEvaluatedError) Error() string {
	return fmt.Sprintf("week %d is already %s", e.WeekID, e.Status)
}

// IncompleteGroupDataError means a participant cannot be placed on the ladder
// (unknown tier, missing user row).
type IncompleteGroupDataError struct {
	WeekID int64
	TierID int64
	UserID int64
	Reason string
}

func (e *IncompleteGroupDataError) Error() string {
	return fmt.Sprintf("week %d tier %d user %d: incomplete group data: %s", e.WeekID, e.TierID, e.UserID, e.Reason)
}

// DataIntegrityError is a fatal fault in persisted state. The run halts.
type DataIntegrityError struct {
	WeekID int64
	TierID int64
	Reason string
}

func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("week %d tier %d: data integrity fault: %s", e.WeekID, e.TierID, e.Reason)
}

// TierFailure records why one tier did not complete.
type TierFailure struct {
	TierID   int64
	TierName TierName
	Err      error
}

// PartialEvaluationError lists the tiers left incomplete by a run. Tiers that
// committed stay committed and the week stays LOCKED.
type PartialEvaluationError struct {
	WeekID    int64
	Completed []TierName
	Failed    []TierFailure
}

func (e *PartialEvaluationError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", f.TierName, f.Err))
	}
	return fmt.Sprintf("week %d: %d tier(s) incomplete: %s", e.WeekID, len(e.Failed), strings.Join(parts, "; "))
}

func (e *PartialEvaluationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}

// IncompleteTierIDs returns the ids of the tiers that still need work.
func (e *PartialEvaluationError) IncompleteTierIDs() []int64 {
	ids := make([]int64, 0, len(e.Failed))
	for _, f := range e.Failed {
		ids = append(ids, f.TierID)
	}
	return ids
}

// IsFatal reports whether err must halt the whole run instead of leaving a
// single tier incomplete.
func IsFatal(err error) bool {
	var integrity *DataIntegrityError
	var incomplete *IncompleteGroupDataError
	return errors.As(err, &integrity) || errors.As(err, &incomplete)
}
