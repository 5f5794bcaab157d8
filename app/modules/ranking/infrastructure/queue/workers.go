package rankingqueue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

// Evaluator is the part of the ranking service the workers drive.
type Evaluator interface {
	EvaluateDueWeek(ctx context.Context) (*rankingservice.EvaluationReport, error)
	ArchiveExpiredWeeks(ctx context.Context) ([]rankingservice.WeekView, error)
}

// EvaluateWeekWorker runs the weekly evaluation.
//
// A partial run returns its error so River retries it; the retry resumes the
// LOCKED week. Integrity faults and an already evaluated week cancel the job
// since no retry can change their outcome.
type EvaluateWeekWorker struct {
	river.WorkerDefaults[EvaluateWeekArgs]
	service Evaluator
	logger  *slog.Logger
	timeout time.Duration
}

func NewEvaluateWeekWorker(service Evaluator, logger *slog.Logger, timeout time.Duration) *EvaluateWeekWorker {
	return &EvaluateWeekWorker{service: service, logger: logger, timeout: timeout}
}

func (w *EvaluateWeekWorker) Timeout(*river.Job[EvaluateWeekArgs]) time.Duration {
	return w.timeout
}

func (w *EvaluateWeekWorker) Work(ctx context.Context, job *river.Job[EvaluateWeekArgs]) error {
	logger := w.logger.With(
		slog.Int64("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
		slog.String("trigger", job.Args.Trigger),
	)

	report, err := w.service.EvaluateDueWeek(ctx)
	if errors.Is(err, rankingdomain.ErrNoDueWeek) {
		logger.InfoContext(ctx, "No week due for evaluation", slog.Any("reason", err))
		return nil
	}

	var already *rankingdomain.AlreadyEvaluatedError
	switch {
	case err == nil:
	case errors.As(err, &already):
		logger.InfoContext(ctx, "Week already evaluated", slog.Int64("week_id", already.WeekID))
		return river.JobCancel(err)
	case rankingdomain.IsFatal(err):
		logger.ErrorContext(ctx, "Evaluation halted by a data integrity fault", slog.Any("error", err))
		return river.JobCancel(err)
	default:
		logger.WarnContext(ctx, "Evaluation did not complete, will retry", slog.Any("error", err))
		return err
	}

	attrs := []any{
		slog.String("run_id", report.RunID.String()),
		slog.String("week_key", report.Week.Key),
		slog.Bool("resumed", report.Resumed),
		slog.Int("tiers", len(report.Tiers)),
	}
	if report.NextWeek != nil {
		attrs = append(attrs, slog.String("next_week_key", report.NextWeek.Key))
	}
	logger.InfoContext(ctx, "Weekly evaluation job finished", attrs...)
	return nil
}

// ArchiveWeeksWorker archives evaluated weeks past retention.
type ArchiveWeeksWorker struct {
	river.WorkerDefaults[ArchiveWeeksArgs]
	service Evaluator
	logger  *slog.Logger
}

func NewArchiveWeeksWorker(service Evaluator, logger *slog.Logger) *ArchiveWeeksWorker {
	return &ArchiveWeeksWorker{service: service, logger: logger}
}

func (w *ArchiveWeeksWorker) Work(ctx context.Context, job *river.Job[ArchiveWeeksArgs]) error {
	archived, err := w.service.ArchiveExpiredWeeks(ctx)
	if err != nil {
		return err
	}
	if len(archived) > 0 {
		w.logger.InfoContext(ctx, "Archived expired weeks",
			slog.Int64("job_id", job.ID),
			slog.Int("count", len(archived)),
		)
	}
	return nil
}
