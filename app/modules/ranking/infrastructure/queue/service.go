package rankingqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/uptrace/bun"
)

const component = "river"

// Metrics is the operation subset of the ranking metrics.
type Metrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)
}

// Options configures the queue and its periodic jobs.
type Options struct {
	Queue           string
	MaxWorkers      int
	Schedule        WeeklySchedule
	ArchiveInterval time.Duration
	JobTimeout      time.Duration
	MaxAttempts     int
}

// QueueService schedules and runs the ranking jobs.
type QueueService interface {
	// EnqueueEvaluation asks for an evaluation of the due week right away.
	EnqueueEvaluation(ctx context.Context, trigger string) (int64, error)
	// ListJobs returns the most recent ranking jobs (for debugging)
	ListJobs(ctx context.Context, limit int) ([]JobInfo, error)
	// HealthCheck verifies the queue service is healthy
	HealthCheck(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

var _ QueueService = (*Service)(nil)

// Service runs the ranking jobs on River.
type Service struct {
	client  *river.Client[pgx.Tx]
	pool    *pgxpool.Pool
	db      *bun.DB
	logger  *slog.Logger
	metrics Metrics
	opts    Options
}

// NewService creates the River client with the ranking workers and the
// weekly evaluation and archive schedules.
func NewService(ctx context.Context, bunDB *bun.DB, logger *slog.Logger, dsn string, metrics Metrics, evaluator Evaluator, opts Options) (*Service, error) {
	ctxLogger := logger.With(
		slog.String("operation", "new_ranking_queue_service"),
		slog.String("component", "river_queue"),
	)

	start := time.Now()
	metrics.RecordOperationAttempt(ctx, "initialize_service", component)

	// River requires pgx, not database/sql
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		metrics.RecordOperationFailure(ctx, "initialize_service", component)
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		metrics.RecordOperationFailure(ctx, "initialize_service", component)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, NewEvaluateWeekWorker(evaluator, ctxLogger, opts.JobTimeout))
	river.AddWorker(workers, NewArchiveWeeksWorker(evaluator, ctxLogger))

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			opts.Queue: {MaxWorkers: opts.MaxWorkers},
		},
		Workers:      workers,
		PeriodicJobs: periodicJobs(opts),
		Logger:       logger,
	})
	if err != nil {
		pool.Close()
		ctxLogger.Error("Failed to create River client", slog.Any("error", err))
		metrics.RecordOperationFailure(ctx, "initialize_service", component)
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	metrics.RecordOperationSuccess(ctx, "initialize_service", component)
	metrics.RecordOperationDuration(ctx, "initialize_service", component, time.Since(start))
	ctxLogger.Info("Ranking queue service initialized",
		slog.String("queue", opts.Queue),
		slog.String("evaluation_weekday", opts.Schedule.Weekday.String()),
		slog.Int("evaluation_hour", opts.Schedule.Hour),
		slog.Int("evaluation_minute", opts.Schedule.Minute),
	)

	return &Service{
		client:  client,
		pool:    pool,
		db:      bunDB,
		logger:  ctxLogger,
		metrics: metrics,
		opts:    opts,
	}, nil
}

// periodicJobs runs the evaluation on the weekly schedule and once on start,
// so a week that came due while the process was down is picked up.
func periodicJobs(opts Options) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			opts.Schedule,
			func() (river.JobArgs, *river.InsertOpts) {
				return EvaluateWeekArgs{Trigger: "schedule"}, &river.InsertOpts{
					Queue:       opts.Queue,
					MaxAttempts: opts.MaxAttempts,
				}
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(opts.ArchiveInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ArchiveWeeksArgs{}, &river.InsertOpts{Queue: opts.Queue}
			},
			nil,
		),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.metrics.RecordOperationAttempt(ctx, "start_service", component)
	if err := s.client.Start(ctx); err != nil {
		s.metrics.RecordOperationFailure(ctx, "start_service", component)
		return fmt.Errorf("failed to start River client: %w", err)
	}
	s.metrics.RecordOperationSuccess(ctx, "start_service", component)
	s.logger.InfoContext(ctx, "Ranking queue service started")
	return nil
}

// Stop waits for running jobs to finish, then closes the pool.
func (s *Service) Stop(ctx context.Context) error {
	s.metrics.RecordOperationAttempt(ctx, "stop_service", component)
	defer s.pool.Close()
	if err := s.client.Stop(ctx); err != nil {
		s.metrics.RecordOperationFailure(ctx, "stop_service", component)
		return fmt.Errorf("failed to stop River client: %w", err)
	}
	s.metrics.RecordOperationSuccess(ctx, "stop_service", component)
	s.logger.InfoContext(ctx, "Ranking queue service stopped")
	return nil
}

// Close releases the pool of a client that was never started.
func (s *Service) Close() {
	s.pool.Close()
}

func (s *Service) EnqueueEvaluation(ctx context.Context, trigger string) (int64, error) {
	start := time.Now()
	s.metrics.RecordOperationAttempt(ctx, "enqueue_evaluation", component)

	res, err := s.client.Insert(ctx, EvaluateWeekArgs{Trigger: trigger}, &river.InsertOpts{
		Queue:       s.opts.Queue,
		MaxAttempts: s.opts.MaxAttempts,
	})
	if err != nil {
		s.metrics.RecordOperationFailure(ctx, "enqueue_evaluation", component)
		return 0, fmt.Errorf("failed to enqueue evaluation: %w", err)
	}

	s.metrics.RecordOperationSuccess(ctx, "enqueue_evaluation", component)
	s.metrics.RecordOperationDuration(ctx, "enqueue_evaluation", component, time.Since(start))
	s.logger.InfoContext(ctx, "Evaluation job enqueued",
		slog.Int64("job_id", res.Job.ID),
		slog.String("trigger", trigger),
		slog.Bool("duplicate", res.UniqueSkippedAsDuplicate),
	)
	return res.Job.ID, nil
}

func (s *Service) ListJobs(ctx context.Context, limit int) ([]JobInfo, error) {
	type riverJobRow struct {
		ID          int64      `bun:"id"`
		Kind        string     `bun:"kind"`
		State       string     `bun:"state"`
		ScheduledAt *time.Time `bun:"scheduled_at"`
		CreatedAt   time.Time  `bun:"created_at"`
		Attempt     int16      `bun:"attempt"`
		MaxAttempts int16      `bun:"max_attempts"`
	}

	var jobs []riverJobRow
	err := s.db.NewSelect().
		Table("river_job").
		Column("id", "kind", "state", "scheduled_at", "created_at", "attempt", "max_attempts").
		Where("kind IN (?, ?)", KindEvaluateWeek, KindArchiveWeeks).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx, &jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to query ranking jobs: %w", err)
	}

	result := make([]JobInfo, len(jobs))
	for i, job := range jobs {
		scheduledAt := ""
		if job.ScheduledAt != nil {
			scheduledAt = job.ScheduledAt.Format(time.RFC3339)
		}
		result[i] = JobInfo{
			ID:          job.ID,
			Kind:        job.Kind,
			State:       job.State,
			ScheduledAt: scheduledAt,
			CreatedAt:   job.CreatedAt.Format(time.RFC3339),
			Attempt:     int(job.Attempt),
			MaxAttempts: int(job.MaxAttempts),
		}
	}
	return result, nil
}

// HealthCheck verifies the queue service is healthy
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return fmt.Errorf("river client is nil")
	}
	if err := s.pool.Ping(ctx); err != nil {
		s.logger.ErrorContext(ctx, "Queue service health check failed", slog.Any("error", err))
		return fmt.Errorf("queue service health check failed: %w", err)
	}
	return nil
}
