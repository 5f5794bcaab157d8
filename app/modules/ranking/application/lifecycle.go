package rankingservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
)

func weekIdentifier(weekID int64) string {
	return "week:" + strconv.FormatInt(weekID, 10)
}

// LockWeek moves an OPEN week to LOCKED.
func (s *RankingService) LockWeek(ctx context.Context, weekID int64) (*WeekView, error) {
	lockTx := func(ctx context.Context, db bun.IDB) (*WeekView, error) {
		week, err := s.getWeek(ctx, db, weekID)
		if err != nil {
			return nil, err
		}
		return s.transitionWeek(ctx, db, week, rankingdomain.WeekLocked)
	}

	return withTelemetry(s, ctx, "LockWeek", weekIdentifier(weekID), func(ctx context.Context) (*WeekView, error) {
		view, err := retryInTx(s, ctx, "LockWeek", lockTx)
		if err != nil {
			return nil, err
		}
		s.publishWeek(ctx, TopicWeekLocked, uuid.NewString(), *view)
		return view, nil
	})
}

// MarkWeekEvaluated moves a LOCKED week to EVALUATED. Every tier with
// participants must have its full snapshot set; otherwise the incomplete
// tiers are reported in a *PartialEvaluationError and nothing changes.
func (s *RankingService) MarkWeekEvaluated(ctx context.Context, weekID int64) (*WeekView, error) {
	return withTelemetry(s, ctx, "MarkWeekEvaluated", weekIdentifier(weekID), func(ctx context.Context) (*WeekView, error) {
		view, err := retryInTx(s, ctx, "MarkWeekEvaluated", func(ctx context.Context, db bun.IDB) (*WeekView, error) {
			return s.markEvaluatedTx(ctx, db, weekID)
		})
		if err != nil {
			return nil, err
		}
		s.publishWeek(ctx, TopicWeekEvaluated, uuid.NewString(), *view)
		return view, nil
	})
}

func (s *RankingService) markEvaluatedTx(ctx context.Context, db bun.IDB, weekID int64) (*WeekView, error) {
	week, err := s.getWeek(ctx, db, weekID)
	if err != nil {
		return nil, err
	}
	if err := rankingdomain.ValidateTransition(week.ID, rankingdomain.WeekStatus(week.Status), rankingdomain.WeekEvaluated); err != nil {
		return nil, err
	}

	ladder, err := s.loadLadder(ctx, db)
	if err != nil {
		return nil, err
	}
	if err := s.verifyWeekComplete(ctx, db, weekID, ladder); err != nil {
		return nil, err
	}
	return s.transitionWeek(ctx, db, week, rankingdomain.WeekEvaluated)
}

// verifyWeekComplete checks that every tier holding participants has a
// complete snapshot set.
func (s *RankingService) verifyWeekComplete(ctx context.Context, db bun.IDB, weekID int64, ladder *rankingdomain.Ladder) error {
	tierIDs, err := s.repo.ListStandingTierIDs(ctx, db, weekID)
	if err != nil {
		return fmt.Errorf("failed to list participating tiers: %w", err)
	}

	partial := &rankingdomain.PartialEvaluationError{WeekID: weekID}
	for _, tierID := range tierIDs {
		tier, ok := ladder.ByID(tierID)
		if !ok {
			return &rankingdomain.IncompleteGroupDataError{WeekID: weekID, TierID: tierID, Reason: "tier is not on the ladder"}
		}
		progress, err := s.tierProgress(ctx, db, weekID, tierID)
		if err != nil {
			return err
		}
		done, err := rankingdomain.CheckTierProgress(weekID, tierID, progress)
		if err != nil {
			return err
		}
		if !done {
			partial.Failed = append(partial.Failed, rankingdomain.TierFailure{
				TierID:   tierID,
				TierName: tier.Name,
				Err:      fmt.Errorf("%d participants without snapshots", progress.Participants),
			})
			continue
		}
		partial.Completed = append(partial.Completed, tier.Name)
	}
	if len(partial.Failed) > 0 {
		return partial
	}
	return nil
}

func (s *RankingService) tierProgress(ctx context.Context, db bun.IDB, weekID, tierID int64) (rankingdomain.TierProgress, error) {
	participants, err := s.repo.CountStandings(ctx, db, weekID, tierID)
	if err != nil {
		return rankingdomain.TierProgress{}, fmt.Errorf("failed to count participants: %w", err)
	}
	snapshots, err := s.repo.CountSnapshots(ctx, db, weekID, tierID)
	if err != nil {
		return rankingdomain.TierProgress{}, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return rankingdomain.TierProgress{Participants: participants, Snapshots: snapshots}, nil
}

// ArchiveWeek moves an EVALUATED week to ARCHIVED once the retention window
// has elapsed. Snapshots, history and user tiers are untouched.
func (s *RankingService) ArchiveWeek(ctx context.Context, weekID int64) (*WeekView, error) {
	return withTelemetry(s, ctx, "ArchiveWeek", weekIdentifier(weekID), func(ctx context.Context) (*WeekView, error) {
		view, err := retryInTx(s, ctx, "ArchiveWeek", func(ctx context.Context, db bun.IDB) (*WeekView, error) {
			week, err := s.getWeek(ctx, db, weekID)
			if err != nil {
				return nil, err
			}
			return s.archiveTx(ctx, db, week)
		})
		if err != nil {
			return nil, err
		}
		s.publishWeek(ctx, TopicWeekArchived, uuid.NewString(), *view)
		return view, nil
	})
}

func (s *RankingService) archiveTx(ctx context.Context, db bun.IDB, week *rankingdb.Week) (*WeekView, error) {
	if err := rankingdomain.ValidateTransition(week.ID, rankingdomain.WeekStatus(week.Status), rankingdomain.WeekArchived); err != nil {
		return nil, err
	}
	if !rankingdomain.RetentionElapsed(week.EvaluatedAt, s.settings.Retention, s.clock.Now()) {
		return nil, fmt.Errorf("week %s: %w", week.WeekKey, rankingdomain.ErrRetentionNotElapsed)
	}
	return s.transitionWeek(ctx, db, week, rankingdomain.WeekArchived)
}

// ArchiveExpiredWeeks archives every EVALUATED week past retention, each in
// its own transaction.
func (s *RankingService) ArchiveExpiredWeeks(ctx context.Context) ([]WeekView, error) {
	return withTelemetry(s, ctx, "ArchiveExpiredWeeks", "all", func(ctx context.Context) ([]WeekView, error) {
		weeks, err := s.repo.ListWeeksByStatus(ctx, s.conn(), string(rankingdomain.WeekEvaluated), 0)
		if err != nil {
			return nil, fmt.Errorf("failed to list evaluated weeks: %w", err)
		}

		now := s.clock.Now()
		archived := make([]WeekView, 0, len(weeks))
		correlationID := uuid.NewString()
		for i := range weeks {
			week := weeks[i]
			if !rankingdomain.RetentionElapsed(week.EvaluatedAt, s.settings.Retention, now) {
				continue
			}
			view, err := retryInTx(s, ctx, "ArchiveWeek", func(ctx context.Context, db bun.IDB) (*WeekView, error) {
				return s.archiveTx(ctx, db, &week)
			})
			if err != nil {
				var stateErr *rankingdomain.InvalidStateError
				if errors.As(err, &stateErr) {
					// archived concurrently
					continue
				}
				return archived, fmt.Errorf("failed to archive week %s: %w", week.WeekKey, err)
			}
			archived = append(archived, *view)
			s.publishWeek(ctx, TopicWeekArchived, correlationID, *view)
		}
		return archived, nil
	})
}

// OpenNextWeek creates the OPEN week that follows previousWeekID.
func (s *RankingService) OpenNextWeek(ctx context.Context, previousWeekID int64) (*WeekView, error) {
	return withTelemetry(s, ctx, "OpenNextWeek", weekIdentifier(previousWeekID), func(ctx context.Context) (*WeekView, error) {
		return s.openNextWeek(ctx, previousWeekID, uuid.NewString())
	})
}

func (s *RankingService) openNextWeek(ctx context.Context, previousWeekID int64, correlationID string) (*WeekView, error) {
	openTx := func(ctx context.Context, db bun.IDB) (*WeekView, error) {
		// 1. Serialize week creation
		if err := s.repo.AcquireWeekLock(ctx, db); err != nil {
			return nil, err
		}

		// 2. The previous week must be final and the latest one
		prev, err := s.getWeek(ctx, db, previousWeekID)
		if err != nil {
			return nil, err
		}
		if !rankingdomain.WeekStatus(prev.Status).IsFinal() {
			return nil, fmt.Errorf("week %s is %s: %w", prev.WeekKey, prev.Status, rankingdomain.ErrPreviousWeekNotFinal)
		}
		if err := s.requireNoActiveWeek(ctx, db); err != nil {
			return nil, err
		}
		latest, err := s.repo.GetLatestWeek(ctx, db)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest week: %w", err)
		}
		if latest.ID != prev.ID {
			return nil, fmt.Errorf("week %s is followed by %s: %w", prev.WeekKey, latest.WeekKey, rankingdomain.ErrWeekSuperseded)
		}

		// 3. Create the week and seed standings
		start, end := rankingdomain.NextWindow(prev.EndsAt, s.settings.WeekLength)
		return s.createWeekTx(ctx, db, start, end)
	}

	view, err := retryInTx(s, ctx, "OpenNextWeek", openTx)
	if err != nil {
		return nil, err
	}
	s.publishWeek(ctx, TopicWeekOpened, correlationID, *view)
	return view, nil
}

// BootstrapWeek creates the first week, starting on the Monday of startsAt in
// the configured timezone.
func (s *RankingService) BootstrapWeek(ctx context.Context, startsAt time.Time) (*WeekView, error) {
	bootstrapTx := func(ctx context.Context, db bun.IDB) (*WeekView, error) {
		if err := s.repo.AcquireWeekLock(ctx, db); err != nil {
			return nil, err
		}
		latest, err := s.repo.GetLatestWeek(ctx, db)
		if err == nil {
			return nil, fmt.Errorf("latest week is %s: %w", latest.WeekKey, rankingdomain.ErrAlreadyBootstrapped)
		}
		if !errors.Is(err, rankingdb.ErrNotFound) {
			return nil, fmt.Errorf("failed to get latest week: %w", err)
		}

		start := rankingdomain.StartOfWeek(startsAt, s.settings.Location)
		return s.createWeekTx(ctx, db, start, start.Add(s.settings.WeekLength))
	}

	return withTelemetry(s, ctx, "BootstrapWeek", startsAt.Format(time.RFC3339), func(ctx context.Context) (*WeekView, error) {
		view, err := retryInTx(s, ctx, "BootstrapWeek", bootstrapTx)
		if err != nil {
			return nil, err
		}
		s.publishWeek(ctx, TopicWeekOpened, uuid.NewString(), *view)
		return view, nil
	})
}

// EnrollUntieredUsers puts every user without a tier on the lowest rung and
// seeds a zero standing for them in the OPEN week, if there is one.
func (s *RankingService) EnrollUntieredUsers(ctx context.Context) (int64, error) {
	enrollTx := func(ctx context.Context, db bun.IDB) (int64, error) {
		ladder, err := s.loadLadder(ctx, db)
		if err != nil {
			return 0, err
		}
		lowest := ladder.Lowest()

		enrolled, err := s.repo.EnrollUntiered(ctx, db, lowest.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to enroll users: %w", err)
		}

		open, err := s.repo.GetWeekByStatus(ctx, db, string(rankingdomain.WeekOpen))
		if errors.Is(err, rankingdb.ErrNotFound) {
			return enrolled, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to get open week: %w", err)
		}
		seeded, err := s.seedStandings(ctx, db, open.ID, ladder)
		if err != nil {
			return 0, err
		}
		s.logger.InfoContext(ctx, "Enrolled untiered users",
			slog.Int64("enrolled", enrolled),
			slog.Int64("seeded", seeded),
			slog.String("tier", string(lowest.Name)),
			slog.String("week_key", open.WeekKey),
		)
		return enrolled, nil
	}

	return withTelemetry(s, ctx, "EnrollUntieredUsers", "all", func(ctx context.Context) (int64, error) {
		return retryInTx(s, ctx, "EnrollUntieredUsers", enrollTx)
	})
}

// createWeekTx inserts an OPEN week and seeds a zero standing for every
// tiered user at their current tier.
func (s *RankingService) createWeekTx(ctx context.Context, db bun.IDB, start, end time.Time) (*WeekView, error) {
	ladder, err := s.loadLadder(ctx, db)
	if err != nil {
		return nil, err
	}

	week := &rankingdb.Week{
		WeekKey:  rankingdomain.WeekKey(start.In(s.settings.Location)),
		StartsAt: start.UTC(),
		EndsAt:   end.UTC(),
		Status:   string(rankingdomain.WeekOpen),
	}
	if err := s.repo.CreateWeek(ctx, db, week); err != nil {
		return nil, fmt.Errorf("failed to create week %s: %w", week.WeekKey, err)
	}

	seeded, err := s.seedStandings(ctx, db, week.ID, ladder)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Opened week",
		slog.Int64("week_id", week.ID),
		slog.String("week_key", week.WeekKey),
		slog.Time("starts_at", week.StartsAt),
		slog.Time("ends_at", week.EndsAt),
		slog.Int64("seeded", seeded),
	)

	view := toWeekView(week)
	return &view, nil
}

// seedStandings freezes each tiered user's current tier into the week.
func (s *RankingService) seedStandings(ctx context.Context, db bun.IDB, weekID int64, ladder *rankingdomain.Ladder) (int64, error) {
	users, err := s.repo.ListTieredUsers(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to list tiered users: %w", err)
	}
	rows := make([]rankingdb.WeeklyXP, 0, len(users))
	for _, u := range users {
		if u.CurrentTierID == nil {
			continue
		}
		if _, ok := ladder.ByID(*u.CurrentTierID); !ok {
			return 0, &rankingdomain.IncompleteGroupDataError{
				WeekID: weekID,
				TierID: *u.CurrentTierID,
				UserID: u.ID,
				Reason: "current tier is not on the ladder",
			}
		}
		rows = append(rows, rankingdb.WeeklyXP{WeekID: weekID, UserID: u.ID, TierID: *u.CurrentTierID})
	}
	seeded, err := s.repo.SeedStandings(ctx, db, rows)
	if err != nil {
		return 0, fmt.Errorf("failed to seed standings: %w", err)
	}
	return seeded, nil
}

// requireNoActiveWeek fails with ErrOpenWeekExists while an OPEN or LOCKED
// week exists.
func (s *RankingService) requireNoActiveWeek(ctx context.Context, db bun.IDB) error {
	for _, status := range []rankingdomain.WeekStatus{rankingdomain.WeekOpen, rankingdomain.WeekLocked} {
		week, err := s.repo.GetWeekByStatus(ctx, db, string(status))
		if err == nil {
			return fmt.Errorf("week %s is %s: %w", week.WeekKey, week.Status, rankingdomain.ErrOpenWeekExists)
		}
		if !errors.Is(err, rankingdb.ErrNotFound) {
			return fmt.Errorf("failed to get %s week: %w", status, err)
		}
	}
	return nil
}

func (s *RankingService) getWeek(ctx context.Context, db bun.IDB, weekID int64) (*rankingdb.Week, error) {
	week, err := s.repo.GetWeek(ctx, db, weekID)
	if err != nil {
		return nil, fmt.Errorf("failed to get week %d: %w", weekID, err)
	}
	if !rankingdomain.WeekStatus(week.Status).Valid() {
		return nil, &rankingdomain.DataIntegrityError{WeekID: week.ID, Reason: fmt.Sprintf("unknown week status %q", week.Status)}
	}
	return week, nil
}

// transitionWeek validates and applies a status change with a conditional
// update. Losing a race to another writer surfaces as *InvalidStateError.
func (s *RankingService) transitionWeek(ctx context.Context, db bun.IDB, week *rankingdb.Week, to rankingdomain.WeekStatus) (*WeekView, error) {
	from := rankingdomain.WeekStatus(week.Status)
	if err := rankingdomain.ValidateTransition(week.ID, from, to); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := s.repo.TransitionWeek(ctx, db, week.ID, string(from), string(to), now); err != nil {
		if errors.Is(err, rankingdb.ErrNoRowsAffected) {
			return nil, &rankingdomain.InvalidStateError{WeekID: week.ID, From: from, To: to}
		}
		return nil, fmt.Errorf("failed to transition week %d: %w", week.ID, err)
	}
	s.metrics.RecordWeekTransition(ctx, string(from), string(to))

	updated := *week
	updated.Status = string(to)
	switch to {
	case rankingdomain.WeekLocked:
		updated.LockedAt = &now
	case rankingdomain.WeekEvaluated:
		updated.EvaluatedAt = &now
	case rankingdomain.WeekArchived:
		updated.ArchivedAt = &now
	}

	s.logger.InfoContext(ctx, "Week status changed",
		slog.Int64("week_id", week.ID),
		slog.String("week_key", week.WeekKey),
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)
	view := toWeekView(&updated)
	return &view, nil
}
