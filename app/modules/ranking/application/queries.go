package rankingservice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
)

// GetLadder returns the tiers with their rules, lowest rung first.
func (s *RankingService) GetLadder(ctx context.Context) ([]TierView, error) {
	return withTelemetry(s, ctx, "GetLadder", "ladder", func(ctx context.Context) ([]TierView, error) {
		ladder, err := s.loadLadder(ctx, s.conn())
		if err != nil {
			return nil, err
		}
		views := make([]TierView, 0, ladder.Len())
		for _, t := range ladder.Tiers() {
			views = append(views, toTierView(t))
		}
		return views, nil
	})
}

func (s *RankingService) GetWeek(ctx context.Context, weekKey string) (*WeekView, error) {
	return withTelemetry(s, ctx, "GetWeek", weekKey, func(ctx context.Context) (*WeekView, error) {
		week, err := s.repo.GetWeekByKey(ctx, s.conn(), weekKey)
		if err != nil {
			return nil, fmt.Errorf("failed to get week %s: %w", weekKey, err)
		}
		view := toWeekView(week)
		return &view, nil
	})
}

// GetCurrentWeek returns the OPEN week, or the LOCKED week while an
// evaluation is in progress.
func (s *RankingService) GetCurrentWeek(ctx context.Context) (*WeekView, error) {
	return withTelemetry(s, ctx, "GetCurrentWeek", "current", func(ctx context.Context) (*WeekView, error) {
		for _, status := range []rankingdomain.WeekStatus{rankingdomain.WeekOpen, rankingdomain.WeekLocked} {
			week, err := s.repo.GetWeekByStatus(ctx, s.conn(), string(status))
			if err == nil {
				view := toWeekView(week)
				return &view, nil
			}
			if !errors.Is(err, rankingdb.ErrNotFound) {
				return nil, fmt.Errorf("failed to get %s week: %w", status, err)
			}
		}
		return nil, rankingdb.ErrNotFound
	})
}

// GetGroupLeaderboard returns the user's group for a week. Once the week is
// EVALUATED the entries come from the snapshots. Before that, including
// while the week is LOCKED, they are a projection of the current standings
// and nothing is written.
func (s *RankingService) GetGroupLeaderboard(ctx context.Context, weekID, userID int64) (*GroupLeaderboard, error) {
	identifier := weekIdentifier(weekID) + ":user:" + strconv.FormatInt(userID, 10)
	return withTelemetry(s, ctx, "GetGroupLeaderboard", identifier, func(ctx context.Context) (*GroupLeaderboard, error) {
		db := s.conn()
		week, err := s.getWeek(ctx, db, weekID)
		if err != nil {
			return nil, err
		}
		ladder, err := s.loadLadder(ctx, db)
		if err != nil {
			return nil, err
		}
		board := &GroupLeaderboard{Week: toWeekView(week)}
		final := rankingdomain.WeekStatus(week.Status).IsFinal()

		membership, err := s.repo.GetMembership(ctx, db, weekID, userID)
		switch {
		case err == nil:
			if final {
				snapshots, err := s.repo.ListGroupSnapshots(ctx, db, weekID, membership.GroupID)
				if err != nil {
					return nil, fmt.Errorf("failed to list group snapshots: %w", err)
				}
				if len(snapshots) > 0 {
					fillFromSnapshots(board, ladder, membership.TierID, membership.GroupID, snapshots)
					return board, nil
				}
			}
		case !errors.Is(err, rankingdb.ErrNotFound):
			return nil, fmt.Errorf("failed to get membership: %w", err)
		default:
			membership = nil
		}

		if final {
			return nil, fmt.Errorf("user %d has no snapshot for week %s: %w", userID, week.WeekKey, rankingdb.ErrNotFound)
		}
		if err := s.projectGroup(ctx, db, board, ladder, weekID, userID, membership); err != nil {
			return nil, err
		}
		return board, nil
	})
}

func fillFromSnapshots(board *GroupLeaderboard, ladder *rankingdomain.Ladder, tierID, groupID int64, snapshots []rankingdb.WeeklySnapshot) {
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Rank < snapshots[j].Rank })
	board.TierID = tierID
	board.TierName = tierNameOf(ladder, tierID)
	board.GroupID = groupID
	board.Final = true
	board.PromoteCutXP = snapshots[0].PromoteCutXP
	board.DemoteCutXP = snapshots[0].DemoteCutXP
	for _, snap := range snapshots {
		status := rankingdomain.Status(snap.Status)
		board.Entries = append(board.Entries, LeaderboardEntry{
			UserID: snap.UserID,
			Rank:   snap.Rank,
			XP:     snap.XP,
			Status: status,
			Zone:   zoneOf(status),
		})
	}
}

// projectGroup classifies the user's group in memory. Without a persisted
// membership the group is the one grouping would form right now.
func (s *RankingService) projectGroup(
	ctx context.Context,
	db bun.IDB,
	board *GroupLeaderboard,
	ladder *rankingdomain.Ladder,
	weekID, userID int64,
	membership *rankingdb.GroupMember,
) error {
	standing, err := s.repo.GetStanding(ctx, db, weekID, userID)
	if err != nil {
		return fmt.Errorf("failed to get standing of user %d: %w", userID, err)
	}
	tier, ok := ladder.ByID(standing.TierID)
	if !ok {
		return &rankingdomain.IncompleteGroupDataError{WeekID: weekID, TierID: standing.TierID, UserID: userID, Reason: "tier is not on the ladder"}
	}
	standings, err := s.repo.ListStandings(ctx, db, weekID, tier.ID)
	if err != nil {
		return fmt.Errorf("failed to list standings: %w", err)
	}
	byUser := make(map[int64]rankingdb.WeeklyXP, len(standings))
	for _, row := range standings {
		byUser[row.UserID] = row
	}

	var peers []int64
	if membership != nil {
		members, err := s.repo.ListMembers(ctx, db, weekID, tier.ID)
		if err != nil {
			return fmt.Errorf("failed to list group members: %w", err)
		}
		for _, m := range members {
			if m.GroupID == membership.GroupID {
				peers = append(peers, m.UserID)
			}
		}
		board.GroupID = membership.GroupID
	} else {
		ids := make([]int64, 0, len(standings))
		for _, row := range standings {
			ids = append(ids, row.UserID)
		}
		for _, group := range rankingdomain.AssignGroups(weekID, tier.ID, ids, tier.MaxGroupSize) {
			if slices.Contains(group, userID) {
				peers = group
				break
			}
		}
	}

	participants := make([]rankingdomain.Participant, 0, len(peers))
	for _, id := range peers {
		if row, ok := byUser[id]; ok {
			participants = append(participants, toParticipant(row))
		}
	}
	result := rankingdomain.ClassifyGroup(participants, tier.Rule, ladder.Position(tier.ID))

	board.TierID = tier.ID
	board.TierName = tier.Name
	board.PromoteCutXP = result.PromoteCutXP
	board.DemoteCutXP = result.DemoteCutXP
	for _, m := range result.Members {
		board.Entries = append(board.Entries, LeaderboardEntry{
			UserID: m.UserID,
			Rank:   m.Rank,
			XP:     m.XP,
			Status: m.Status,
			Zone:   zoneOf(m.Status),
		})
	}
	return nil
}

func (s *RankingService) GetUserSnapshots(ctx context.Context, userID int64, limit int) ([]SnapshotView, error) {
	return withTelemetry(s, ctx, "GetUserSnapshots", userIdentifier(userID), func(ctx context.Context) ([]SnapshotView, error) {
		rows, err := s.repo.ListUserSnapshots(ctx, s.conn(), userID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		views := make([]SnapshotView, len(rows))
		for i, row := range rows {
			views[i] = toSnapshotView(row)
		}
		return views, nil
	})
}

func (s *RankingService) GetTierHistory(ctx context.Context, userID int64, limit int) ([]TierChangeView, error) {
	return withTelemetry(s, ctx, "GetTierHistory", userIdentifier(userID), func(ctx context.Context) ([]TierChangeView, error) {
		rows, err := s.repo.ListUserTierChanges(ctx, s.conn(), userID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list tier history: %w", err)
		}
		views := make([]TierChangeView, len(rows))
		for i, row := range rows {
			views[i] = TierChangeView{
				WeekID:     row.WeekID,
				FromTierID: row.FromTierID,
				ToTierID:   row.ToTierID,
				Reason:     rankingdomain.ChangeReason(row.Reason),
				CreatedAt:  row.CreatedAt,
			}
		}
		return views, nil
	})
}

func (s *RankingService) GetRewardHistory(ctx context.Context, userID int64, limit int) ([]RewardView, error) {
	return withTelemetry(s, ctx, "GetRewardHistory", userIdentifier(userID), func(ctx context.Context) ([]RewardView, error) {
		rows, err := s.repo.ListUserRewards(ctx, s.conn(), userID, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list rewards: %w", err)
		}
		views := make([]RewardView, len(rows))
		for i, row := range rows {
			views[i] = RewardView{
				WeekID:     row.WeekID,
				TierID:     row.TierID,
				RewardType: rankingdomain.RewardType(row.RewardType),
				Amount:     row.Amount,
				CreatedAt:  row.CreatedAt,
			}
		}
		return views, nil
	})
}

// GetWeekReport collects every snapshot and reward of an EVALUATED or
// ARCHIVED week, grouped by tier in ladder order.
func (s *RankingService) GetWeekReport(ctx context.Context, weekID int64) (*WeekReport, error) {
	return withTelemetry(s, ctx, "GetWeekReport", weekIdentifier(weekID), func(ctx context.Context) (*WeekReport, error) {
		db := s.conn()
		week, err := s.getWeek(ctx, db, weekID)
		if err != nil {
			return nil, err
		}
		if !rankingdomain.WeekStatus(week.Status).IsFinal() {
			return nil, fmt.Errorf("week %s is %s: %w", week.WeekKey, week.Status, rankingdomain.ErrWeekNotFinal)
		}
		ladder, err := s.loadLadder(ctx, db)
		if err != nil {
			return nil, err
		}
		snapshots, err := s.repo.ListWeekSnapshots(ctx, db, weekID)
		if err != nil {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		rewards, err := s.repo.ListWeekRewards(ctx, db, weekID)
		if err != nil {
			return nil, fmt.Errorf("failed to list rewards: %w", err)
		}

		rewardByUser := make(map[int64]decimal.Decimal, len(rewards))
		for _, r := range rewards {
			rewardByUser[r.UserID] = rewardByUser[r.UserID].Add(r.Amount)
		}

		tiers := make(map[int64]*TierReport, ladder.Len())
		order := make([]int64, 0, ladder.Len())
		for _, t := range ladder.Tiers() {
			tiers[t.ID] = &TierReport{Tier: toTierView(t)}
			order = append(order, t.ID)
		}
		for _, snap := range snapshots {
			tr, ok := tiers[snap.TierID]
			if !ok {
				tr = &TierReport{Tier: TierView{ID: snap.TierID, Name: tierNameOf(ladder, snap.TierID)}}
				tiers[snap.TierID] = tr
				order = append(order, snap.TierID)
			}
			status := rankingdomain.Status(snap.Status)
			switch status {
			case rankingdomain.StatusPromoted:
				tr.Promoted++
			case rankingdomain.StatusDemoted:
				tr.Demoted++
			default:
				tr.Maintained++
			}
			reward := rewardByUser[snap.UserID]
			tr.RewardTotal = tr.RewardTotal.Add(reward)
			tr.Rows = append(tr.Rows, ReportRow{
				UserID:       snap.UserID,
				GroupID:      snap.GroupID,
				Rank:         snap.Rank,
				XP:           snap.XP,
				Status:       status,
				PromoteCutXP: snap.PromoteCutXP,
				DemoteCutXP:  snap.DemoteCutXP,
				Reward:       reward,
			})
		}

		report := &WeekReport{Week: toWeekView(week)}
		for _, id := range order {
			tr := tiers[id]
			sort.Slice(tr.Rows, func(i, j int) bool {
				if tr.Rows[i].GroupID != tr.Rows[j].GroupID {
					return tr.Rows[i].GroupID < tr.Rows[j].GroupID
				}
				return tr.Rows[i].Rank < tr.Rows[j].Rank
			})
			report.Tiers = append(report.Tiers, *tr)
		}
		return report, nil
	})
}

func tierNameOf(ladder *rankingdomain.Ladder, tierID int64) rankingdomain.TierName {
	if t, ok := ladder.ByID(tierID); ok {
		return t.Name
	}
	return rankingdomain.TierName("TIER_" + strconv.FormatInt(tierID, 10))
}

func userIdentifier(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
