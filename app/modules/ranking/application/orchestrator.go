package rankingservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
)

// EvaluateWeek runs the weekly evaluation.
//
// An OPEN week is locked first; a LOCKED week is resumed, skipping the tiers
// whose snapshot set is already complete. Each tier commits on its own, so a
// tier failure leaves the others committed, the week LOCKED and a
// *PartialEvaluationError returned alongside the report. Integrity faults
// halt the run. When every tier is complete the week is marked EVALUATED and
// the next week is opened.
func (s *RankingService) EvaluateWeek(ctx context.Context, weekID int64) (*EvaluationReport, error) {
	return withTelemetry(s, ctx, "EvaluateWeek", weekIdentifier(weekID), func(ctx context.Context) (*EvaluationReport, error) {
		return s.evaluateWeek(ctx, weekID)
	})
}

func (s *RankingService) evaluateWeek(ctx context.Context, weekID int64) (*EvaluationReport, error) {
	runID := uuid.New()
	correlationID := runID.String()
	logger := s.logger.With(slog.String("run_id", correlationID), slog.Int64("week_id", weekID))

	// 1. Lock or resume
	week, resumed, err := s.lockOrResume(ctx, weekID, correlationID)
	if err != nil {
		return nil, err
	}
	report := &EvaluationReport{RunID: runID, Week: *week, Resumed: resumed}
	logger.InfoContext(ctx, "Evaluation run started",
		slog.String("week_key", week.Key),
		slog.Bool("resumed", resumed),
	)

	// 2. Configuration is read fresh for every run
	ladder, err := s.loadLadder(ctx, s.conn())
	if err != nil {
		return report, err
	}
	policy, err := s.loadRewardPolicy(ctx, s.conn())
	if err != nil {
		return report, err
	}
	if err := s.checkStandingTiers(ctx, weekID, ladder); err != nil {
		return report, err
	}

	// 3. Tiers
	outcomes, err := s.runTiers(ctx, weekID, ladder, policy, correlationID)
	report.Tiers = outcomes
	if err != nil {
		// Committed tiers are skipped on resume and announced only here.
		s.publishTierOutcomes(ctx, correlationID, weekID, outcomes)
		return report, err
	}

	// 4. Close the week, then announce the tiers
	evaluated, err := retryInTx(s, ctx, "MarkWeekEvaluated", func(ctx context.Context, db bun.IDB) (*WeekView, error) {
		return s.markEvaluatedTx(ctx, db, weekID)
	})
	s.publishTierOutcomes(ctx, correlationID, weekID, outcomes)
	if err != nil {
		return report, err
	}
	report.Week = *evaluated
	s.publishWeek(ctx, TopicWeekEvaluated, correlationID, *evaluated)

	// 5. Open the next week
	next, err := s.openNextWeek(ctx, weekID, correlationID)
	switch {
	case err == nil:
		report.NextWeek = next
	case errors.Is(err, rankingdomain.ErrOpenWeekExists), errors.Is(err, rankingdomain.ErrWeekSuperseded):
		logger.InfoContext(ctx, "Next week already exists", slog.Any("reason", err))
	default:
		return report, fmt.Errorf("week %s evaluated but the next week was not opened: %w", evaluated.Key, err)
	}

	logger.InfoContext(ctx, "Evaluation run finished",
		slog.String("week_key", evaluated.Key),
		slog.Int("tiers", len(outcomes)),
	)
	return report, nil
}

// lockOrResume returns the week in LOCKED status and whether it already was.
func (s *RankingService) lockOrResume(ctx context.Context, weekID int64, correlationID string) (*WeekView, bool, error) {
	week, err := s.getWeek(ctx, s.conn(), weekID)
	if err != nil {
		return nil, false, err
	}

	status := rankingdomain.WeekStatus(week.Status)
	switch {
	case status.IsFinal():
		return nil, false, &rankingdomain.AlreadyEvaluatedError{WeekID: weekID, Status: status}
	case status == rankingdomain.WeekLocked:
		view := toWeekView(week)
		return &view, true, nil
	}

	locked, err := retryInTx(s, ctx, "LockWeek", func(ctx context.Context, db bun.IDB) (*WeekView, error) {
		return s.transitionWeek(ctx, db, week, rankingdomain.WeekLocked)
	})
	var stateErr *rankingdomain.InvalidStateError
	if errors.As(err, &stateErr) {
		// Another run moved the week first.
		week, err = s.getWeek(ctx, s.conn(), weekID)
		if err != nil {
			return nil, false, err
		}
		current := rankingdomain.WeekStatus(week.Status)
		if current.IsFinal() {
			return nil, false, &rankingdomain.AlreadyEvaluatedError{WeekID: weekID, Status: current}
		}
		view := toWeekView(week)
		return &view, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	s.publishWeek(ctx, TopicWeekLocked, correlationID, *locked)
	return locked, false, nil
}

// checkStandingTiers fails when a standing references a tier that is not on
// the ladder; those users could never be evaluated.
func (s *RankingService) checkStandingTiers(ctx context.Context, weekID int64, ladder *rankingdomain.Ladder) error {
	tierIDs, err := s.repo.ListStandingTierIDs(ctx, s.conn(), weekID)
	if err != nil {
		return fmt.Errorf("failed to list participating tiers: %w", err)
	}
	for _, id := range tierIDs {
		if _, ok := ladder.ByID(id); !ok {
			return &rankingdomain.IncompleteGroupDataError{WeekID: weekID, TierID: id, Reason: "tier is not on the ladder"}
		}
	}
	return nil
}

// runTiers evaluates the ladder's tiers with bounded parallelism and returns
// the outcomes of the tiers that committed. A fatal error from any tier
// cancels the rest and is returned as is. Other failures are collected into
// a *PartialEvaluationError.
func (s *RankingService) runTiers(
	ctx context.Context,
	weekID int64,
	ladder *rankingdomain.Ladder,
	policy rankingdomain.RewardPolicy,
	correlationID string,
) ([]TierOutcome, error) {
	tiers := ladder.Tiers()
	outcomes := make([]TierOutcome, len(tiers))
	failures := make([]error, len(tiers))
	committed := make([]bool, len(tiers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.MaxParallelTiers)
	for i, tier := range tiers {
		g.Go(func() error {
			if gctx.Err() != nil {
				failures[i] = context.Cause(gctx)
				return nil
			}
			outcome, err := s.runTier(gctx, weekID, tier, ladder, policy)
			outcomes[i] = outcome
			if err != nil {
				if rankingdomain.IsFatal(err) {
					return err
				}
				failures[i] = err
				return nil
			}
			committed[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Evaluation halted by integrity fault",
			slog.Int64("week_id", weekID),
			slog.String("run_id", correlationID),
			slog.Any("error", err),
		)
		done := make([]TierOutcome, 0, len(tiers))
		for i := range tiers {
			if committed[i] {
				done = append(done, outcomes[i])
			}
		}
		return done, err
	}

	partial := &rankingdomain.PartialEvaluationError{WeekID: weekID}
	completed := make([]TierOutcome, 0, len(tiers))
	for i, tier := range tiers {
		if failures[i] != nil {
			partial.Failed = append(partial.Failed, rankingdomain.TierFailure{TierID: tier.ID, TierName: tier.Name, Err: failures[i]})
			continue
		}
		partial.Completed = append(partial.Completed, tier.Name)
		completed = append(completed, outcomes[i])
	}
	if len(partial.Failed) > 0 {
		s.logger.WarnContext(ctx, "Evaluation left tiers incomplete",
			slog.Int64("week_id", weekID),
			slog.String("run_id", correlationID),
			slog.Any("incomplete_tier_ids", partial.IncompleteTierIDs()),
		)
		return completed, partial
	}
	return completed, nil
}

// runTier evaluates a single tier in its own retried transaction. Events are
// left to the caller.
func (s *RankingService) runTier(
	ctx context.Context,
	weekID int64,
	tier rankingdomain.Tier,
	ladder *rankingdomain.Ladder,
	policy rankingdomain.RewardPolicy,
) (TierOutcome, error) {
	outcome, err := retryInTx(s, ctx, "EvaluateTier", func(ctx context.Context, db bun.IDB) (TierOutcome, error) {
		return s.evaluateTierTx(ctx, db, weekID, tier, ladder, policy)
	})
	if err != nil {
		return TierOutcome{TierID: tier.ID, TierName: tier.Name}, fmt.Errorf("tier %s: %w", tier.Name, err)
	}

	if outcome.Skipped {
		s.metrics.RecordTierSkipped(ctx, string(tier.Name))
		return outcome, nil
	}
	s.metrics.RecordTierEvaluated(ctx, string(tier.Name), outcome.Promoted, outcome.Maintained, outcome.Demoted)
	rewardCounts := make(map[rankingdomain.RewardType]int)
	for _, g := range outcome.Grants {
		rewardCounts[g.RewardType]++
	}
	for rewardType, n := range rewardCounts {
		s.metrics.RecordRewardsGranted(ctx, string(tier.Name), string(rewardType), n)
	}
	return outcome, nil
}

// EvaluateTier evaluates one tier of a LOCKED week. It is the manual retry
// for a tier reported by a *PartialEvaluationError.
func (s *RankingService) EvaluateTier(ctx context.Context, weekID int64, tierName rankingdomain.TierName) (*TierOutcome, error) {
	return withTelemetry(s, ctx, "EvaluateTier", weekIdentifier(weekID)+":"+string(tierName), func(ctx context.Context) (*TierOutcome, error) {
		week, err := s.getWeek(ctx, s.conn(), weekID)
		if err != nil {
			return nil, err
		}
		status := rankingdomain.WeekStatus(week.Status)
		if status.IsFinal() {
			return nil, &rankingdomain.AlreadyEvaluatedError{WeekID: weekID, Status: status}
		}
		if status != rankingdomain.WeekLocked {
			return nil, fmt.Errorf("week %s is %s: %w", week.WeekKey, status, rankingdomain.ErrWeekNotLocked)
		}

		ladder, err := s.loadLadder(ctx, s.conn())
		if err != nil {
			return nil, err
		}
		tier, ok := ladder.ByName(tierName)
		if !ok {
			return nil, fmt.Errorf("tier %s: %w", tierName, rankingdb.ErrNotFound)
		}
		policy, err := s.loadRewardPolicy(ctx, s.conn())
		if err != nil {
			return nil, err
		}

		outcome, err := s.runTier(ctx, weekID, tier, ladder, policy)
		if err != nil {
			return nil, err
		}
		s.publishTierOutcomes(ctx, uuid.NewString(), weekID, []TierOutcome{outcome})
		return &outcome, nil
	})
}

// EvaluateDueWeek picks the week the scheduler should work on. A LOCKED week
// left by an interrupted run comes first, then the OPEN week once it has
// ended. When the latest week is already final and no week is open, the next
// week is opened and ErrNoDueWeek is returned.
func (s *RankingService) EvaluateDueWeek(ctx context.Context) (*EvaluationReport, error) {
	return withTelemetry(s, ctx, "EvaluateDueWeek", "due", func(ctx context.Context) (*EvaluationReport, error) {
		locked, err := s.repo.GetWeekByStatus(ctx, s.conn(), string(rankingdomain.WeekLocked))
		switch {
		case err == nil:
			return s.evaluateWeek(ctx, locked.ID)
		case !errors.Is(err, rankingdb.ErrNotFound):
			return nil, fmt.Errorf("failed to get locked week: %w", err)
		}

		open, err := s.repo.GetWeekByStatus(ctx, s.conn(), string(rankingdomain.WeekOpen))
		switch {
		case err == nil:
			view := toWeekView(open)
			due := rankingdomain.Week{ID: view.ID, Status: view.Status, EndsAt: view.EndsAt}.Due(s.clock.Now())
			if !due {
				return nil, fmt.Errorf("week %s ends at %s: %w", open.WeekKey, open.EndsAt.Format("2006-01-02T15:04Z07:00"), rankingdomain.ErrNoDueWeek)
			}
			return s.evaluateWeek(ctx, open.ID)
		case !errors.Is(err, rankingdb.ErrNotFound):
			return nil, fmt.Errorf("failed to get open week: %w", err)
		}

		latest, err := s.repo.GetLatestWeek(ctx, s.conn())
		if errors.Is(err, rankingdb.ErrNotFound) {
			return nil, fmt.Errorf("no week has been bootstrapped: %w", rankingdomain.ErrNoDueWeek)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get latest week: %w", err)
		}
		if rankingdomain.WeekStatus(latest.Status).IsFinal() {
			next, err := s.openNextWeek(ctx, latest.ID, uuid.NewString())
			if err != nil {
				return nil, err
			}
			s.logger.WarnContext(ctx, "Opened missing week after an evaluated week",
				slog.String("previous_week_key", latest.WeekKey),
				slog.String("week_key", next.Key),
			)
		}
		return nil, rankingdomain.ErrNoDueWeek
	})
}
