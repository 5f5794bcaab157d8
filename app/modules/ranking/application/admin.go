package rankingservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
)

// UpdateTierRule replaces the rule of a tier. The ladder is validated with
// the new rule in place before anything is written. The next run picks it up.
func (s *RankingService) UpdateTierRule(ctx context.Context, update TierRuleUpdate) (*TierView, error) {
	rule := rankingdomain.TierRule{
		PromoteMinXP: update.PromoteMinXP,
		DemoteMinXP:  update.DemoteMinXP,
		PromoteRatio: update.PromoteRatio,
		DemoteRatio:  update.DemoteRatio,
		IsMaster:     update.IsMaster,
	}

	updateTx := func(ctx context.Context, db bun.IDB) (*TierView, error) {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		ladder, err := s.loadLadder(ctx, db)
		if err != nil {
			return nil, err
		}
		tier, ok := ladder.ByName(update.TierName)
		if !ok {
			return nil, fmt.Errorf("tier %s: %w", update.TierName, rankingdb.ErrNotFound)
		}

		tiers := ladder.Tiers()
		for i := range tiers {
			if tiers[i].ID == tier.ID {
				tiers[i].Rule = rule
			}
		}
		if _, err := rankingdomain.NewLadder(tiers); err != nil {
			return nil, err
		}

		err = s.repo.UpdateTierRule(ctx, db, &rankingdb.TierRule{
			TierID:       tier.ID,
			PromoteMinXP: rule.PromoteMinXP,
			DemoteMinXP:  rule.DemoteMinXP,
			PromoteRatio: rule.PromoteRatio,
			DemoteRatio:  rule.DemoteRatio,
			IsMaster:     rule.IsMaster,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to update rule of %s: %w", tier.Name, err)
		}

		tier.Rule = rule
		view := toTierView(tier)
		return &view, nil
	}

	return withTelemetry(s, ctx, "UpdateTierRule", string(update.TierName), func(ctx context.Context) (*TierView, error) {
		return runInTx(s, ctx, updateTx)
	})
}

// UpdateTierCapacity changes max_group_size for groups formed from now on.
// It is refused while a week is LOCKED so that a resumed run forms its
// remaining groups with the capacity it started with.
func (s *RankingService) UpdateTierCapacity(ctx context.Context, tierName rankingdomain.TierName, maxGroupSize int) (*TierView, error) {
	capacityTx := func(ctx context.Context, db bun.IDB) (*TierView, error) {
		if maxGroupSize < 1 {
			return nil, fmt.Errorf("%w: max group size %d must be at least 1", rankingdomain.ErrInvalidLadder, maxGroupSize)
		}
		locked, err := s.repo.GetWeekByStatus(ctx, db, string(rankingdomain.WeekLocked))
		if err == nil {
			return nil, fmt.Errorf("week %s: %w", locked.WeekKey, rankingdomain.ErrEvaluationInProgress)
		}
		if !errors.Is(err, rankingdb.ErrNotFound) {
			return nil, fmt.Errorf("failed to get locked week: %w", err)
		}

		row, err := s.repo.GetTierByName(ctx, db, string(tierName))
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tierName, err)
		}
		if err := s.repo.UpdateTierCapacity(ctx, db, row.ID, maxGroupSize); err != nil {
			return nil, fmt.Errorf("failed to update capacity of %s: %w", tierName, err)
		}

		s.logger.InfoContext(ctx, "Tier capacity changed",
			slog.String("tier", string(tierName)),
			slog.Int("from", row.MaxGroupSize),
			slog.Int("to", maxGroupSize),
		)
		row.MaxGroupSize = maxGroupSize
		view := toTierView(toDomainTier(*row))
		return &view, nil
	}

	return withTelemetry(s, ctx, "UpdateTierCapacity", string(tierName), func(ctx context.Context) (*TierView, error) {
		return runInTx(s, ctx, capacityTx)
	})
}

// SetRewardRule creates or replaces the grant for (tier, status, reward type).
// A zero amount disables the grant.
func (s *RankingService) SetRewardRule(ctx context.Context, rule rankingdomain.RewardRule) error {
	setTx := func(ctx context.Context, db bun.IDB) (struct{}, error) {
		if err := rule.Validate(); err != nil {
			return struct{}{}, err
		}
		ladder, err := s.loadLadder(ctx, db)
		if err != nil {
			return struct{}{}, err
		}
		if _, ok := ladder.ByID(rule.TierID); !ok {
			return struct{}{}, fmt.Errorf("tier %d: %w", rule.TierID, rankingdb.ErrNotFound)
		}
		err = s.repo.UpsertRewardRule(ctx, db, &rankingdb.RewardRule{
			TierID:     rule.TierID,
			Status:     string(rule.Status),
			RewardType: string(rule.RewardType),
			Amount:     rule.Amount,
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to save reward rule: %w", err)
		}
		return struct{}{}, nil
	}

	_, err := withTelemetry(s, ctx, "SetRewardRule", fmt.Sprintf("tier:%d:%s", rule.TierID, rule.Status), func(ctx context.Context) (struct{}, error) {
		return runInTx(s, ctx, setTx)
	})
	return err
}
