package rankingqueue

import (
	"time"

	"github.com/riverqueue/river"
)

const (
	KindEvaluateWeek = "ranking_evaluate_week"
	KindArchiveWeeks = "ranking_archive_weeks"
)

// EvaluateWeekArgs evaluates the week that is due. The run itself works out
// which week that is, so the args carry nothing but the trigger.
type EvaluateWeekArgs struct {
	Trigger string `json:"trigger"`
}

// Kind returns the job type identifier for River
func (EvaluateWeekArgs) Kind() string { return KindEvaluateWeek }

// InsertOpts keeps at most one pending evaluation per trigger within an hour.
func (EvaluateWeekArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Hour,
		},
	}
}

// ArchiveWeeksArgs archives every evaluated week past retention.
type ArchiveWeeksArgs struct{}

// Kind returns the job type identifier for River
func (ArchiveWeeksArgs) Kind() string { return KindArchiveWeeks }

func (ArchiveWeeksArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByPeriod: time.Hour},
	}
}

// JobInfo represents information about a ranking job (for debugging/monitoring)
type JobInfo struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	ScheduledAt string `json:"scheduled_at"`
	CreatedAt   string `json:"created_at"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
}
