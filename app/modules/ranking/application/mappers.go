package rankingservice

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
)

func toWeekView(w *rankingdb.Week) WeekView {
	return WeekView{
		ID:          w.ID,
		Key:         w.WeekKey,
		StartsAt:    w.StartsAt,
		EndsAt:      w.EndsAt,
		Status:      rankingdomain.WeekStatus(w.Status),
		EvaluatedAt: w.EvaluatedAt,
	}
}

func toDomainTier(t rankingdb.Tier) rankingdomain.Tier {
	tier := rankingdomain.Tier{
		ID:           t.ID,
		Name:         rankingdomain.TierName(t.Name),
		OrderIndex:   t.OrderIndex,
		MaxGroupSize: t.MaxGroupSize,
	}
	if t.Rule != nil {
		tier.Rule = rankingdomain.TierRule{
			PromoteMinXP: t.Rule.PromoteMinXP,
			DemoteMinXP:  t.Rule.DemoteMinXP,
			PromoteRatio: t.Rule.PromoteRatio,
			DemoteRatio:  t.Rule.DemoteRatio,
			IsMaster:     t.Rule.IsMaster,
		}
	}
	return tier
}

func toTierView(t rankingdomain.Tier) TierView {
	return TierView{
		ID:           t.ID,
		Name:         t.Name,
		OrderIndex:   t.OrderIndex,
		MaxGroupSize: t.MaxGroupSize,
		Rule:         t.Rule,
	}
}

func toParticipant(row rankingdb.WeeklyXP) rankingdomain.Participant {
	return rankingdomain.Participant{
		UserID:        row.UserID,
		XP:            row.XP,
		SolvedCount:   row.SolvedCount,
		FirstSolvedAt: row.FirstSolvedAt,
		LastSolvedAt:  row.LastSolvedAt,
	}
}

func toDomainRewardRule(r rankingdb.RewardRule) rankingdomain.RewardRule {
	return rankingdomain.RewardRule{
		TierID:     r.TierID,
		Status:     rankingdomain.Status(r.Status),
		RewardType: rankingdomain.RewardType(r.RewardType),
		Amount:     r.Amount,
	}
}

func toSnapshotView(s rankingdb.WeeklySnapshot) SnapshotView {
	return SnapshotView{
		WeekID:       s.WeekID,
		TierID:       s.TierID,
		GroupID:      s.GroupID,
		Rank:         s.Rank,
		XP:           s.XP,
		Status:       rankingdomain.Status(s.Status),
		PromoteCutXP: s.PromoteCutXP,
		DemoteCutXP:  s.DemoteCutXP,
		CreatedAt:    s.CreatedAt,
	}
}

// loadLadder reads the tiers fresh. Ladder configuration is never cached
// across runs.
func (s *RankingService) loadLadder(ctx context.Context, db bun.IDB) (*rankingdomain.Ladder, error) {
	rows, err := s.repo.ListTiers(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiers: %w", err)
	}
	tiers := make([]rankingdomain.Tier, 0, len(rows))
	for _, row := range rows {
		if row.Rule == nil {
			return nil, fmt.Errorf("%w: tier %s has no rule", rankingdomain.ErrInvalidLadder, row.Name)
		}
		tiers = append(tiers, toDomainTier(row))
	}
	return rankingdomain.NewLadder(tiers)
}

func (s *RankingService) loadRewardPolicy(ctx context.Context, db bun.IDB) (rankingdomain.RewardPolicy, error) {
	rows, err := s.repo.ListRewardRules(ctx, db)
	if err != nil {
		return rankingdomain.RewardPolicy{}, fmt.Errorf("failed to load reward rules: %w", err)
	}
	rules := make([]rankingdomain.RewardRule, 0, len(rows))
	for _, row := range rows {
		rules = append(rules, toDomainRewardRule(row))
	}
	return rankingdomain.NewRewardPolicy(rules), nil
}
