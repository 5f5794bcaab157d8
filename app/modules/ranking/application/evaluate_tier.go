package rankingservice

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/uptrace/bun"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
)

// tierGroup is a persisted group with the standings of its members.
type tierGroup struct {
	ID           int64
	Index        int
	Participants []rankingdomain.Participant
}

// evaluateTierTx runs one tier of a week: group, rank, classify, apply
// transitions, write snapshots and grant rewards. Everything it writes
// commits or rolls back together.
func (s *RankingService) evaluateTierTx(
	ctx context.Context,
	db bun.IDB,
	weekID int64,
	tier rankingdomain.Tier,
	ladder *rankingdomain.Ladder,
	policy rankingdomain.RewardPolicy,
) (TierOutcome, error) {
	outcome := TierOutcome{TierID: tier.ID, TierName: tier.Name}

	// 1. Exclude concurrent runs of this tier, then check completeness
	if err := s.repo.AcquireTierLock(ctx, db, weekID, tier.ID); err != nil {
		return outcome, err
	}
	progress, err := s.tierProgress(ctx, db, weekID, tier.ID)
	if err != nil {
		return outcome, err
	}
	outcome.Participants = progress.Participants
	done, err := rankingdomain.CheckTierProgress(weekID, tier.ID, progress)
	if err != nil {
		return outcome, err
	}
	if done {
		outcome.Skipped = true
		return outcome, nil
	}

	// 2. Read standings and place everyone in a group
	standings, err := s.repo.ListStandings(ctx, db, weekID, tier.ID)
	if err != nil {
		return outcome, fmt.Errorf("failed to list standings: %w", err)
	}
	groups, err := s.ensureGroups(ctx, db, weekID, tier, standings)
	if err != nil {
		return outcome, err
	}
	outcome.Groups = len(groups)

	users, err := s.usersByID(ctx, db, weekID, tier.ID, standings)
	if err != nil {
		return outcome, err
	}

	// 3. Classify each group and derive every write
	var (
		snapshots []rankingdb.WeeklySnapshot
		changes   []rankingdb.TierChangeHistory
		moved     []rankingdb.User
		rewards   []rankingdb.RewardHistory
	)
	position := ladder.Position(tier.ID)
	for _, group := range groups {
		result := rankingdomain.ClassifyGroup(group.Participants, tier.Rule, position)
		promoted, maintained, demoted := result.Counts()
		outcome.Promoted += promoted
		outcome.Maintained += maintained
		outcome.Demoted += demoted

		for _, m := range result.Members {
			snapshots = append(snapshots, rankingdb.WeeklySnapshot{
				WeekID:       weekID,
				UserID:       m.UserID,
				TierID:       tier.ID,
				GroupID:      group.ID,
				Rank:         m.Rank,
				XP:           m.XP,
				Status:       string(m.Status),
				PromoteCutXP: result.PromoteCutXP,
				DemoteCutXP:  result.DemoteCutXP,
			})

			transition := rankingdomain.ResolveTransition(ladder, m.UserID, tier.ID, m.Status)
			if transition.Anomaly != rankingdomain.AnomalyNone {
				s.logger.WarnContext(ctx, "Tier transition not applicable at ladder edge",
					slog.Int64("week_id", weekID),
					slog.Int64("tier_id", tier.ID),
					slog.Int64("user_id", m.UserID),
					slog.String("status", string(m.Status)),
					slog.String("anomaly", string(transition.Anomaly)),
				)
			}
			if u := users[m.UserID]; u.CurrentTierID == nil || *u.CurrentTierID != tier.ID {
				s.logger.WarnContext(ctx, "User tier drifted from weekly tier",
					slog.Int64("week_id", weekID),
					slog.Int64("tier_id", tier.ID),
					slog.Int64("user_id", m.UserID),
					slog.Any("current_tier_id", u.CurrentTierID),
				)
			}
			outcome.Transitions = append(outcome.Transitions, transition)

			fromTierID := tier.ID
			changes = append(changes, rankingdb.TierChangeHistory{
				WeekID:     weekID,
				UserID:     m.UserID,
				FromTierID: &fromTierID,
				ToTierID:   transition.ToTierID,
				Reason:     string(transition.Reason),
			})
			if transition.Moved() {
				moved = append(moved, rankingdb.User{ID: m.UserID, CurrentTierID: transition.ToTierID})
			}

			for _, grant := range policy.GrantsFor(m.UserID, tier.ID, m.Status) {
				outcome.Grants = append(outcome.Grants, grant)
				rewards = append(rewards, rankingdb.RewardHistory{
					WeekID:     weekID,
					UserID:     grant.UserID,
					TierID:     grant.TierID,
					RewardType: string(grant.RewardType),
					Amount:     grant.Amount,
				})
			}
		}
	}

	// 4. Persist
	if err := s.repo.InsertSnapshots(ctx, db, snapshots); err != nil {
		return outcome, fmt.Errorf("failed to write snapshots: %w", err)
	}
	if err := s.repo.SetCurrentTiers(ctx, db, moved); err != nil {
		return outcome, fmt.Errorf("failed to apply tier transitions: %w", err)
	}
	if err := s.repo.InsertTierChanges(ctx, db, changes); err != nil {
		return outcome, fmt.Errorf("failed to write tier history: %w", err)
	}
	if err := s.repo.InsertRewards(ctx, db, rewards); err != nil {
		return outcome, fmt.Errorf("failed to write rewards: %w", err)
	}

	s.logger.InfoContext(ctx, "Tier evaluated",
		slog.Int64("week_id", weekID),
		slog.String("tier", string(tier.Name)),
		slog.Int("participants", outcome.Participants),
		slog.Int("groups", outcome.Groups),
		slog.Int("promoted", outcome.Promoted),
		slog.Int("maintained", outcome.Maintained),
		slog.Int("demoted", outcome.Demoted),
		slog.Int("rewards", len(outcome.Grants)),
	)
	return outcome, nil
}

// ensureGroups reuses the tier's groups for the week and places anyone not
// yet grouped. Persisted membership that breaks the group invariants is a
// *DataIntegrityError.
func (s *RankingService) ensureGroups(
	ctx context.Context,
	db bun.IDB,
	weekID int64,
	tier rankingdomain.Tier,
	standings []rankingdb.WeeklyXP,
) ([]tierGroup, error) {
	integrity := func(format string, args ...any) error {
		return &rankingdomain.DataIntegrityError{WeekID: weekID, TierID: tier.ID, Reason: fmt.Sprintf(format, args...)}
	}

	existing, err := s.repo.ListGroups(ctx, db, weekID, tier.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	members, err := s.repo.ListMembers(ctx, db, weekID, tier.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}

	byUser := make(map[int64]rankingdb.WeeklyXP, len(standings))
	for _, row := range standings {
		byUser[row.UserID] = row
	}

	groups := make(map[int64]*tierGroup, len(existing))
	indexToID := make(map[int]int64, len(existing))
	for _, g := range existing {
		if g.Capacity != tier.MaxGroupSize {
			return nil, integrity("group %d has capacity %d, tier max is %d", g.GroupIndex, g.Capacity, tier.MaxGroupSize)
		}
		groups[g.ID] = &tierGroup{ID: g.ID, Index: g.GroupIndex}
		indexToID[g.GroupIndex] = g.ID
	}

	grouped := make(map[int64]struct{}, len(members))
	for _, m := range members {
		group, ok := groups[m.GroupID]
		if !ok {
			return nil, integrity("user %d is in group %d of another week or tier", m.UserID, m.GroupID)
		}
		if _, dup := grouped[m.UserID]; dup {
			return nil, integrity("user %d has more than one membership", m.UserID)
		}
		row, ok := byUser[m.UserID]
		if !ok {
			return nil, integrity("group member %d has no standing in the tier", m.UserID)
		}
		grouped[m.UserID] = struct{}{}
		group.Participants = append(group.Participants, toParticipant(row))
	}

	occupancy := make([]rankingdomain.GroupOccupancy, 0, len(groups))
	for _, g := range groups {
		if len(g.Participants) > tier.MaxGroupSize {
			return nil, integrity("group %d holds %d members, capacity %d", g.Index, len(g.Participants), tier.MaxGroupSize)
		}
		occupancy = append(occupancy, rankingdomain.GroupOccupancy{GroupIndex: g.Index, Size: len(g.Participants)})
	}

	var unassigned []int64
	for _, row := range standings {
		if _, ok := grouped[row.UserID]; !ok {
			unassigned = append(unassigned, row.UserID)
		}
	}

	if len(unassigned) > 0 {
		// A user grouped under another tier this week would end up with two
		// snapshots.
		elsewhere, err := s.repo.ListMembershipsForUsers(ctx, db, weekID, unassigned)
		if err != nil {
			return nil, fmt.Errorf("failed to check memberships: %w", err)
		}
		if len(elsewhere) > 0 {
			m := elsewhere[0]
			return nil, integrity("user %d is already grouped in tier %d", m.UserID, m.TierID)
		}

		plan := rankingdomain.PlaceParticipants(weekID, tier.ID, occupancy, unassigned, tier.MaxGroupSize)
		if len(plan.NewGroups) > 0 {
			rows := make([]rankingdb.Group, 0, len(plan.NewGroups))
			for _, idx := range plan.NewGroups {
				rows = append(rows, rankingdb.Group{WeekID: weekID, TierID: tier.ID, GroupIndex: idx, Capacity: tier.MaxGroupSize})
			}
			if err := s.repo.InsertGroups(ctx, db, rows); err != nil {
				return nil, fmt.Errorf("failed to create groups: %w", err)
			}
			for _, g := range rows {
				groups[g.ID] = &tierGroup{ID: g.ID, Index: g.GroupIndex}
				indexToID[g.GroupIndex] = g.ID
			}
		}

		newMembers := make([]rankingdb.GroupMember, 0, len(plan.Placements))
		for _, p := range plan.Placements {
			groupID := indexToID[p.GroupIndex]
			newMembers = append(newMembers, rankingdb.GroupMember{
				WeekID:  weekID,
				UserID:  p.UserID,
				GroupID: groupID,
				TierID:  tier.ID,
			})
			groups[groupID].Participants = append(groups[groupID].Participants, toParticipant(byUser[p.UserID]))
		}
		if err := s.repo.InsertMembers(ctx, db, newMembers); err != nil {
			return nil, fmt.Errorf("failed to add group members: %w", err)
		}
		s.logger.InfoContext(ctx, "Placed participants into groups",
			slog.Int64("week_id", weekID),
			slog.String("tier", string(tier.Name)),
			slog.Int("placed", len(newMembers)),
			slog.Int("new_groups", len(plan.NewGroups)),
		)
	}

	out := make([]tierGroup, 0, len(groups))
	for _, g := range groups {
		if len(g.Participants) > 0 {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// usersByID loads the user rows of a tier's participants. A participant with
// no user row cannot receive a tier and halts the run.
func (s *RankingService) usersByID(ctx context.Context, db bun.IDB, weekID, tierID int64, standings []rankingdb.WeeklyXP) (map[int64]rankingdb.User, error) {
	ids := make([]int64, 0, len(standings))
	for _, row := range standings {
		ids = append(ids, row.UserID)
	}
	rows, err := s.repo.GetUsersByIDs(ctx, db, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	users := make(map[int64]rankingdb.User, len(rows))
	for _, u := range rows {
		users[u.ID] = u
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return nil, &rankingdomain.IncompleteGroupDataError{WeekID: weekID, TierID: tierID, UserID: id, Reason: "user row is missing"}
		}
	}
	return users, nil
}
