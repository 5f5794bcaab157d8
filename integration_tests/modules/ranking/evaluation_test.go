//go:build integration

package rankingintegrationtests

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
	"github.com/pcwadarong/web21-funda-sub001/integration_tests/testutils"
)

func TestEvaluateWeek(t *testing.T) {
	s := newScenario(t, nil)
	ctx, db := s.ctx, testEnv.DB

	ladder, err := s.svc.GetLadder(ctx)
	require.NoError(t, err)
	orderOf := make(map[int64]int, len(ladder))
	promoteFloor := make(map[int64]int64, len(ladder))
	for _, tier := range ladder {
		orderOf[tier.ID] = tier.OrderIndex
		promoteFloor[tier.ID] = tier.Rule.PromoteMinXP
	}

	report, err := s.svc.EvaluateWeek(ctx, s.week.ID)
	require.NoError(t, err)

	assert.Equal(t, rankingdomain.WeekEvaluated, report.Week.Status)
	assert.False(t, report.Resumed)
	require.NotNil(t, report.NextWeek)
	assert.Equal(t, "2026-42", report.NextWeek.Key)
	assert.True(t, report.NextWeek.StartsAt.Equal(s.week.EndsAt), "weeks are contiguous")

	t.Run("every participant has one snapshot", func(t *testing.T) {
		var snapshots []rankingdb.WeeklySnapshot
		require.NoError(t, db.NewSelect().Model(&snapshots).Where("week_id = ?", s.week.ID).Scan(ctx))
		require.Len(t, snapshots, s.players)

		moved := 0
		for _, snap := range snapshots {
			assert.Equal(t, s.xp[snap.UserID], snap.XP, "user %d", snap.UserID)

			after := testutils.UserTier(t, ctx, db, snap.UserID)
			switch rankingdomain.Status(snap.Status) {
			case rankingdomain.StatusPromoted:
				moved++
				assert.Equal(t, orderOf[snap.TierID]+1, orderOf[after])
				assert.GreaterOrEqual(t, snap.XP, promoteFloor[snap.TierID])
			case rankingdomain.StatusDemoted:
				moved++
				assert.Equal(t, orderOf[snap.TierID]-1, orderOf[after])
			default:
				assert.Equal(t, snap.TierID, after)
			}
		}
		changes := testutils.CountRows(t, ctx, db, (*rankingdb.TierChangeHistory)(nil), "week_id = ?", s.week.ID)
		assert.Equal(t, moved, changes)
	})

	t.Run("nobody is demoted out of the lowest tier", func(t *testing.T) {
		n := testutils.CountRows(t, ctx, db, (*rankingdb.WeeklySnapshot)(nil),
			"week_id = ? AND tier_id = ? AND status = ?", s.week.ID, s.bronze, rankingdomain.StatusDemoted)
		assert.Zero(t, n)
	})

	t.Run("groups respect capacity", func(t *testing.T) {
		var groups []rankingdb.Group
		require.NoError(t, db.NewSelect().Model(&groups).Where("week_id = ?", s.week.ID).Scan(ctx))
		require.NotEmpty(t, groups)
		for _, g := range groups {
			members := testutils.CountRows(t, ctx, db, (*rankingdb.GroupMember)(nil), "group_id = ?", g.ID)
			assert.LessOrEqual(t, members, g.Capacity, "group %d", g.ID)
			assert.NotZero(t, members, "group %d", g.ID)
		}
	})

	t.Run("promotions are rewarded", func(t *testing.T) {
		var rewards []rankingdb.RewardHistory
		require.NoError(t, db.NewSelect().Model(&rewards).Where("week_id = ?", s.week.ID).Scan(ctx))
		promoted := testutils.CountRows(t, ctx, db, (*rankingdb.WeeklySnapshot)(nil),
			"week_id = ? AND status = ?", s.week.ID, rankingdomain.StatusPromoted)
		assert.Len(t, rewards, promoted)
		for _, r := range rewards {
			switch r.TierID {
			case s.bronze:
				assert.True(t, decimal.NewFromInt(10).Equal(r.Amount))
			case s.gold:
				assert.True(t, decimal.NewFromInt(30).Equal(r.Amount))
			}
		}
	})

	t.Run("next week is seeded at the new tiers", func(t *testing.T) {
		var standings []rankingdb.WeeklyXP
		require.NoError(t, db.NewSelect().Model(&standings).Where("week_id = ?", report.NextWeek.ID).Scan(ctx))
		require.Len(t, standings, s.players)
		for _, st := range standings {
			assert.Zero(t, st.XP)
			assert.Equal(t, testutils.UserTier(t, ctx, db, st.UserID), st.TierID)
		}
	})

	t.Run("a second run writes nothing", func(t *testing.T) {
		_, err := s.svc.EvaluateWeek(ctx, s.week.ID)
		var done *rankingdomain.AlreadyEvaluatedError
		require.ErrorAs(t, err, &done)
		n := testutils.CountRows(t, ctx, db, (*rankingdb.WeeklySnapshot)(nil), "week_id = ?", s.week.ID)
		assert.Equal(t, s.players, n)
	})

	t.Run("leaderboard reads the snapshots", func(t *testing.T) {
		var anyGold rankingdb.WeeklySnapshot
		require.NoError(t, db.NewSelect().Model(&anyGold).
			Where("week_id = ? AND tier_id = ?", s.week.ID, s.gold).Limit(1).Scan(ctx))

		board, err := s.svc.GetGroupLeaderboard(ctx, s.week.ID, anyGold.UserID)
		require.NoError(t, err)
		assert.True(t, board.Final)
		assert.Equal(t, anyGold.GroupID, board.GroupID)
		for i := 1; i < len(board.Entries); i++ {
			assert.GreaterOrEqual(t, board.Entries[i-1].XP, board.Entries[i].XP)
		}
	})
}

func TestEvaluateWeek_ResumesLockedWeek(t *testing.T) {
	s := newScenario(t, nil)
	ctx, db := s.ctx, testEnv.DB

	_, err := s.svc.LockWeek(ctx, s.week.ID)
	require.NoError(t, err)
	outcome, err := s.svc.EvaluateTier(ctx, s.week.ID, rankingdomain.TierBronze)
	require.NoError(t, err)
	assert.Equal(t, 28, outcome.Participants)

	_, err = s.svc.MarkWeekEvaluated(ctx, s.week.ID)
	var partial *rankingdomain.PartialEvaluationError
	require.ErrorAs(t, err, &partial, "gold is still pending")

	var bronze rankingdb.WeeklySnapshot
	require.NoError(t, db.NewSelect().Model(&bronze).
		Where("week_id = ? AND tier_id = ?", s.week.ID, s.bronze).Limit(1).Scan(ctx))
	history, err := s.svc.GetUserSnapshots(ctx, bronze.UserID, 10)
	require.NoError(t, err)
	assert.Empty(t, history, "a locked week is not history yet")
	board, err := s.svc.GetGroupLeaderboard(ctx, s.week.ID, bronze.UserID)
	require.NoError(t, err)
	assert.False(t, board.Final)
	_, err = s.svc.GetWeekReport(ctx, s.week.ID)
	require.ErrorIs(t, err, rankingdomain.ErrWeekNotFinal)

	report, err := s.svc.EvaluateWeek(ctx, s.week.ID)
	require.NoError(t, err)
	assert.True(t, report.Resumed)
	assert.Equal(t, rankingdomain.WeekEvaluated, report.Week.Status)

	history, err = s.svc.GetUserSnapshots(ctx, bronze.UserID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	n := testutils.CountRows(t, ctx, db, (*rankingdb.WeeklySnapshot)(nil), "week_id = ?", s.week.ID)
	assert.Equal(t, s.players, n, "bronze was not evaluated twice")
}

func TestEvaluateWeek_ConcurrentRuns(t *testing.T) {
	s := newScenario(t, nil)
	ctx, db := s.ctx, testEnv.DB

	const runs = 3
	errs := make([]error, runs)
	var wg sync.WaitGroup
	for i := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.svc.EvaluateWeek(ctx, s.week.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var done *rankingdomain.AlreadyEvaluatedError
		var partial *rankingdomain.PartialEvaluationError
		assert.True(t, errors.As(err, &done) || errors.As(err, &partial), "unexpected error: %v", err)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	week, err := s.svc.GetWeek(ctx, "2026-41")
	require.NoError(t, err)
	assert.Equal(t, rankingdomain.WeekEvaluated, week.Status)
	assert.Equal(t, s.players, testutils.CountRows(t, ctx, db, (*rankingdb.WeeklySnapshot)(nil), "week_id = ?", s.week.ID))
	assert.Equal(t, 1, testutils.CountRows(t, ctx, db, (*rankingdb.Week)(nil), "status = ?", rankingdomain.WeekOpen))
}

func TestEvaluateWeek_RuleChangeBetweenWeeks(t *testing.T) {
	s := newScenario(t, nil)
	ctx, db := s.ctx, testEnv.DB

	ladder, err := s.svc.GetLadder(ctx)
	require.NoError(t, err)
	original := ladder[0]
	t.Cleanup(func() {
		_, err := s.svc.UpdateTierRule(ctx, tierRuleOf(original))
		require.NoError(t, err)
	})

	// nobody can reach the floor, so bronze promotes nobody
	update := tierRuleOf(original)
	update.PromoteMinXP = 1000
	_, err = s.svc.UpdateTierRule(ctx, update)
	require.NoError(t, err)

	_, err = s.svc.EvaluateWeek(ctx, s.week.ID)
	require.NoError(t, err)

	promoted := testutils.CountRows(t, ctx, db, (*rankingdb.WeeklySnapshot)(nil),
		"week_id = ? AND tier_id = ? AND status = ?", s.week.ID, s.bronze, rankingdomain.StatusPromoted)
	assert.Zero(t, promoted)
}
