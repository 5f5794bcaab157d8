package rankingqueue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

type fakeEvaluator struct {
	EvaluateDueWeekFunc     func(ctx context.Context) (*rankingservice.EvaluationReport, error)
	ArchiveExpiredWeeksFunc func(ctx context.Context) ([]rankingservice.WeekView, error)
}

func (f *fakeEvaluator) EvaluateDueWeek(ctx context.Context) (*rankingservice.EvaluationReport, error) {
	return f.EvaluateDueWeekFunc(ctx)
}

func (f *fakeEvaluator) ArchiveExpiredWeeks(ctx context.Context) ([]rankingservice.WeekView, error) {
	return f.ArchiveExpiredWeeksFunc(ctx)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func evaluateJob() *river.Job[EvaluateWeekArgs] {
	return &river.Job[EvaluateWeekArgs]{
		JobRow: &rivertype.JobRow{ID: 7, Attempt: 1},
		Args:   EvaluateWeekArgs{Trigger: "schedule"},
	}
}

func TestEvaluateWeekWorker_Work(t *testing.T) {
	report := &rankingservice.EvaluationReport{
		RunID:    uuid.New(),
		Week:     rankingservice.WeekView{ID: 1, Key: "2026-41"},
		NextWeek: &rankingservice.WeekView{ID: 2, Key: "2026-42"},
	}

	tests := []struct {
		name       string
		report     *rankingservice.EvaluationReport
		err        error
		wantErr    bool
		wantCancel bool
	}{
		{name: "evaluated", report: report},
		{name: "nothing due", err: rankingdomain.ErrNoDueWeek},
		{name: "partial run is retried", report: report, err: &rankingdomain.PartialEvaluationError{WeekID: 1}, wantErr: true},
		{name: "storage error is retried", err: errors.New("connection refused"), wantErr: true},
		{name: "already evaluated is cancelled", err: &rankingdomain.AlreadyEvaluatedError{WeekID: 1, Status: rankingdomain.WeekEvaluated}, wantErr: true, wantCancel: true},
		{name: "integrity fault is cancelled", err: &rankingdomain.DataIntegrityError{WeekID: 1, TierID: 3, Reason: "over capacity"}, wantErr: true, wantCancel: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evaluator := &fakeEvaluator{
				EvaluateDueWeekFunc: func(ctx context.Context) (*rankingservice.EvaluationReport, error) {
					return tt.report, tt.err
				},
			}
			worker := NewEvaluateWeekWorker(evaluator, discardLogger(), time.Minute)

			err := worker.Work(context.Background(), evaluateJob())

			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCancel, errors.Is(err, &rivertype.JobCancelError{}))
		})
	}
}

func TestEvaluateWeekWorker_Timeout(t *testing.T) {
	worker := NewEvaluateWeekWorker(&fakeEvaluator{}, discardLogger(), 30*time.Minute)
	assert.Equal(t, 30*time.Minute, worker.Timeout(evaluateJob()))
}

func TestArchiveWeeksWorker_Work(t *testing.T) {
	t.Run("archives", func(t *testing.T) {
		calls := 0
		worker := NewArchiveWeeksWorker(&fakeEvaluator{
			ArchiveExpiredWeeksFunc: func(ctx context.Context) ([]rankingservice.WeekView, error) {
				calls++
				return []rankingservice.WeekView{{ID: 1, Key: "2026-37"}}, nil
			},
		}, discardLogger())

		err := worker.Work(context.Background(), &river.Job[ArchiveWeeksArgs]{JobRow: &rivertype.JobRow{ID: 9}})

		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("error is retried", func(t *testing.T) {
		worker := NewArchiveWeeksWorker(&fakeEvaluator{
			ArchiveExpiredWeeksFunc: func(ctx context.Context) ([]rankingservice.WeekView, error) {
				return nil, errors.New("boom")
			},
		}, discardLogger())

		err := worker.Work(context.Background(), &river.Job[ArchiveWeeksArgs]{JobRow: &rivertype.JobRow{ID: 9}})
		require.EqualError(t, err, "boom")
	})
}

func TestPeriodicJobs(t *testing.T) {
	jobs := periodicJobs(Options{
		Queue:           "ranking",
		Schedule:        WeeklySchedule{Weekday: time.Monday},
		ArchiveInterval: time.Hour,
		MaxAttempts:     10,
	})
	assert.Len(t, jobs, 2)
}
