//go:build integration

package testutils

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.opentelemetry.io/otel/trace/noop"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingqueue "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/queue"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
	rankingmigrations "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories/migrations"
	"github.com/pcwadarong/web21-funda-sub001/db/bundb"
	"github.com/pcwadarong/web21-funda-sub001/integration_tests/containers"
	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
)

// TestEnvironment holds the containers and connections shared by a package's
// integration tests.
type TestEnvironment struct {
	Ctx           context.Context
	CancelContext context.CancelFunc
	PgContainer   *postgres.PostgresContainer
	NatsContainer testcontainers.Container
	DB            *bun.DB
	DSN           string
	NatsURL       string
	Logger        *slog.Logger
}

// NewTestEnvironment starts Postgres and NATS and migrates the schema.
func NewTestEnvironment() (*TestEnvironment, error) {
	ctx, cancel := context.WithCancel(context.Background())
	env := &TestEnvironment{
		Ctx:           ctx,
		CancelContext: cancel,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	pgContainer, dsn, err := containers.SetupPostgresContainer(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	env.PgContainer, env.DSN = pgContainer, dsn

	natsContainer, natsURL, err := containers.SetupNatsContainer(ctx)
	if err != nil {
		env.Cleanup()
		return nil, err
	}
	env.NatsContainer, env.NatsURL = natsContainer, natsURL

	db, err := bundb.Open(ctx, dsn, env.Logger, bundb.Options{MaxOpenConns: 10})
	if err != nil {
		env.Cleanup()
		return nil, err
	}
	env.DB = db

	if err := env.migrate(ctx); err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return env, nil
}

func (env *TestEnvironment) migrate(ctx context.Context) error {
	migrator := migrate.NewMigrator(env.DB, rankingmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return err
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return err
	}
	return rankingqueue.Migrate(ctx, env.DSN, env.Logger)
}

// Cleanup closes connections and terminates the containers.
func (env *TestEnvironment) Cleanup() {
	if env.DB != nil {
		env.DB.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if env.NatsContainer != nil {
		if err := env.NatsContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate NATS container: %v", err)
		}
	}
	if env.PgContainer != nil {
		if err := env.PgContainer.Terminate(ctx); err != nil {
			log.Printf("Failed to terminate postgres container: %v", err)
		}
	}
	env.CancelContext()
}

// ResetDatabase removes users, weeks and everything derived from them. The
// seeded ladder is kept; tests that edit it restore it themselves.
func (env *TestEnvironment) ResetDatabase(t *testing.T) {
	t.Helper()
	_, err := env.DB.ExecContext(env.Ctx, `TRUNCATE
		ranking_reward_history,
		ranking_tier_change_history,
		ranking_weekly_snapshots,
		ranking_group_members,
		ranking_groups,
		ranking_weekly_xp,
		ranking_weeks,
		users,
		river_job
		RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("failed to reset database: %v", err)
	}
}

// Clock is a settable clock for driving the week lifecycle.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock { return &Clock{now: now} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Seoul is the zone the tests align weeks in.
func Seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("failed to load Asia/Seoul: %v", err)
	}
	return loc
}

// NewService builds a ranking service on the environment's database.
func (env *TestEnvironment) NewService(t *testing.T, clock rankingservice.Clock, events rankingservice.EventPublisher) *rankingservice.RankingService {
	t.Helper()
	if events == nil {
		events = rankingservice.NoOpPublisher{}
	}
	settings := rankingservice.DefaultSettings()
	settings.Location = Seoul(t)
	settings.MaxParallelTiers = 3
	settings.Retry.InitialInterval = 10 * time.Millisecond

	return rankingservice.NewRankingService(
		env.DB,
		rankingdb.NewRepository(),
		events,
		env.Logger,
		observability.NoOpMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		clock,
		settings,
	)
}
