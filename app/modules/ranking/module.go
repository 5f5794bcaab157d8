package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/uptrace/bun"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingpublisher "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/publisher"
	rankingqueue "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/queue"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
	"github.com/pcwadarong/web21-funda-sub001/config"
	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
)

// Module represents the ranking module.
type Module struct {
	RankingService rankingservice.Service
	Queue          *rankingqueue.Service

	service    *rankingservice.RankingService
	publisher  message.Publisher
	config     *config.Config
	db         *bun.DB
	obs        *observability.Observability
	cancelFunc context.CancelFunc
}

// NewRankingModule creates the ranking service and its event publisher.
// Events are dropped when no NATS URL is configured.
func NewRankingModule(ctx context.Context, cfg *config.Config, obs *observability.Observability, db *bun.DB) (*Module, error) {
	logger := obs.Logger
	logger.InfoContext(ctx, "ranking.NewRankingModule called")

	var (
		events    rankingservice.EventPublisher = rankingservice.NoOpPublisher{}
		publisher message.Publisher
	)
	if cfg.NATS.URL != "" {
		pub, err := rankingpublisher.NewNATSPublisher(cfg.NATS.URL, logger)
		if err != nil {
			return nil, err
		}
		publisher = pub
		events = rankingpublisher.NewEventPublisher(pub, cfg.Ranking.PublishRatePerSecond)
	} else {
		logger.WarnContext(ctx, "NATS URL not set, ranking events will not be published")
	}

	service := rankingservice.NewRankingService(
		db,
		rankingdb.NewRepository(),
		events,
		logger,
		obs.Metrics,
		obs.Tracing.Tracer("ranking"),
		rankingservice.RealClock{},
		Settings(cfg),
	)

	return &Module{
		RankingService: service,
		service:        service,
		publisher:      publisher,
		config:         cfg,
		db:             db,
		obs:            obs,
	}, nil
}

// Settings maps the ranking section of the configuration onto the service.
func Settings(cfg *config.Config) rankingservice.Settings {
	r := cfg.Ranking
	return rankingservice.Settings{
		WeekLength:       r.WeekLength,
		Retention:        r.Retention,
		Location:         cfg.Location(),
		MaxParallelTiers: r.MaxParallelTiers,
		Retry: rankingservice.RetryPolicy{
			InitialInterval: r.Retry.InitialInterval,
			MaxInterval:     r.Retry.MaxInterval,
			MaxTries:        r.Retry.MaxTries,
		},
	}
}

// QueueOptions maps the schedule and queue configuration onto River.
func QueueOptions(cfg *config.Config) (rankingqueue.Options, error) {
	r := cfg.Ranking
	weekday, err := config.ParseWeekday(r.EvaluationSchedule.Weekday)
	if err != nil {
		return rankingqueue.Options{}, err
	}
	return rankingqueue.Options{
		Queue:      r.Queue.Name,
		MaxWorkers: r.Queue.MaxWorkers,
		Schedule: rankingqueue.WeeklySchedule{
			Weekday:  weekday,
			Hour:     r.EvaluationSchedule.Hour,
			Minute:   r.EvaluationSchedule.Minute,
			Location: cfg.Location(),
		},
		ArchiveInterval: r.ArchiveInterval,
		JobTimeout:      r.JobTimeout,
		MaxAttempts:     r.JobMaxAttempts,
	}, nil
}

// NewQueue creates the River client without starting it. An unstarted client
// can still enqueue and list jobs.
func (m *Module) NewQueue(ctx context.Context) (*rankingqueue.Service, error) {
	opts, err := QueueOptions(m.config)
	if err != nil {
		return nil, err
	}
	queue, err := rankingqueue.NewService(ctx, m.db, m.obs.Logger, m.config.Postgres.DSN, m.obs.Metrics, m.service, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ranking queue: %w", err)
	}
	return queue, nil
}

// StartQueue creates the River client with the weekly schedule and starts
// working jobs.
func (m *Module) StartQueue(ctx context.Context) error {
	queue, err := m.NewQueue(ctx)
	if err != nil {
		return err
	}
	if err := queue.Start(ctx); err != nil {
		return err
	}
	m.Queue = queue
	return nil
}

// Run blocks until ctx is cancelled.
func (m *Module) Run(ctx context.Context, wg *sync.WaitGroup) {
	logger := m.obs.Logger
	logger.InfoContext(ctx, "Starting ranking module")

	ctx, cancel := context.WithCancel(ctx)
	m.cancelFunc = cancel
	defer cancel()

	if wg != nil {
		defer wg.Done()
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Ranking module goroutine stopped")
}

// Close stops the queue, waiting up to timeout for running jobs, and closes
// the publisher.
func (m *Module) Close(timeout time.Duration) error {
	logger := m.obs.Logger
	logger.Info("Stopping ranking module")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	var firstErr error
	if m.Queue != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := m.Queue.Stop(ctx); err != nil {
			logger.Error("Failed to stop ranking queue", slog.Any("error", err))
			firstErr = err
		}
	}
	if m.publisher != nil {
		if err := m.publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	logger.Info("Ranking module stopped")
	return firstErr
}
