package rankingservice

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
)

const serviceName = "RankingService"

// Settings are the run parameters read from configuration.
type Settings struct {
	WeekLength       time.Duration
	Retention        time.Duration
	Location         *time.Location
	MaxParallelTiers int
	Retry            RetryPolicy
}

// RetryPolicy bounds retries of a transaction after transient storage errors.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxTries        uint
}

func DefaultSettings() Settings {
	return Settings{
		WeekLength:       7 * 24 * time.Hour,
		Retention:        28 * 24 * time.Hour,
		Location:         time.UTC,
		MaxParallelTiers: 3,
		Retry: RetryPolicy{
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			MaxTries:        5,
		},
	}
}

// RankingService implements the Service interface.
type RankingService struct {
	db       *bun.DB
	repo     rankingdb.Repository
	events   EventPublisher
	logger   *slog.Logger
	metrics  observability.RankingMetrics
	tracer   trace.Tracer
	clock    Clock
	settings Settings
}

// NewRankingService creates a new RankingService. A nil db runs every
// operation without a transaction, which is what unit tests use.
func NewRankingService(
	db *bun.DB,
	repo rankingdb.Repository,
	events EventPublisher,
	logger *slog.Logger,
	metrics observability.RankingMetrics,
	tracer trace.Tracer,
	clock Clock,
	settings Settings,
) *RankingService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoOpMetrics{}
	}
	if events == nil {
		events = NoOpPublisher{}
	}
	if clock == nil {
		clock = RealClock{}
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.MaxParallelTiers < 1 {
		settings.MaxParallelTiers = 1
	}
	return &RankingService{
		db:       db,
		repo:     repo,
		events:   events,
		logger:   logger,
		metrics:  metrics,
		tracer:   tracer,
		clock:    clock,
		settings: settings,
	}
}

// conn returns the pool for reads outside a transaction.
func (s *RankingService) conn() bun.IDB {
	if s.db == nil {
		return nil
	}
	return s.db
}

// -----------------------------------------------------------------------------
// Generic Helpers (Defined as functions because methods cannot have type params)
// -----------------------------------------------------------------------------

// operationFunc is the generic signature for service operation functions.
type operationFunc[T any] func(ctx context.Context) (T, error)

// withTelemetry wraps a service operation with tracing, metrics, and panic recovery.
func withTelemetry[T any](
	s *RankingService,
	ctx context.Context,
	operationName string,
	identifier string,
	op operationFunc[T],
) (result T, err error) {
	var span trace.Span
	if s.tracer != nil {
		ctx, span = s.tracer.Start(ctx, operationName, trace.WithAttributes(
			attribute.String("operation", operationName),
			attribute.String("identifier", identifier),
		))
	} else {
		span = trace.SpanFromContext(ctx)
	}
	defer span.End()

	s.metrics.RecordOperationAttempt(ctx, operationName, serviceName)

	startTime := time.Now()
	defer func() {
		s.metrics.RecordOperationDuration(ctx, operationName, serviceName, time.Since(startTime))
	}()

	s.logger.InfoContext(ctx, "Operation triggered",
		slog.String("operation", operationName),
		slog.String("identifier", identifier),
	)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", operationName, r)
			s.logger.ErrorContext(ctx, "Critical panic recovered",
				slog.String("operation", operationName),
				slog.String("identifier", identifier),
				slog.Any("error", err),
			)
			s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	result, err = op(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Operation failed",
			slog.String("operation", operationName),
			slog.String("identifier", identifier),
			slog.Any("error", err),
		)
		s.metrics.RecordOperationFailure(ctx, operationName, serviceName)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	s.logger.InfoContext(ctx, "Operation completed successfully",
		slog.String("operation", operationName),
		slog.String("identifier", identifier),
	)
	s.metrics.RecordOperationSuccess(ctx, operationName, serviceName)
	return result, nil
}

// txFunc runs inside a transaction.
type txFunc[T any] func(ctx context.Context, db bun.IDB) (T, error)

// runInTx ensures the operation runs within a database transaction.
func runInTx[T any](s *RankingService, ctx context.Context, fn txFunc[T]) (T, error) {
	if s.db == nil {
		return fn(ctx, nil)
	}

	var result T
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var txErr error
		result, txErr = fn(ctx, tx)
		return txErr
	})
	return result, err
}
