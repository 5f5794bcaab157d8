package rankingservice

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel/trace/noop"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
)

// ------------------------
// Fake Ranking Repo
// ------------------------

// FakeRankingRepo is an in-memory Repository. The XFunc fields override the
// matching method, which is how tests inject failures.
type FakeRankingRepo struct {
	mu    sync.Mutex
	trace []string

	tiers       []rankingdb.Tier
	rewardRules []rankingdb.RewardRule
	weeks       map[int64]*rankingdb.Week
	standings   []rankingdb.WeeklyXP
	groups      []rankingdb.Group
	members     []rankingdb.GroupMember
	snapshots   []rankingdb.WeeklySnapshot
	changes     []rankingdb.TierChangeHistory
	rewards     []rankingdb.RewardHistory
	users       map[int64]*rankingdb.User
	nextID      int64

	AcquireTierLockFunc func(ctx context.Context, db bun.IDB, weekID, tierID int64) error
	TransitionWeekFunc  func(ctx context.Context, db bun.IDB, weekID int64, from, to string, at time.Time) error
	InsertSnapshotsFunc func(ctx context.Context, db bun.IDB, snapshots []rankingdb.WeeklySnapshot) error
	SetCurrentTiersFunc func(ctx context.Context, db bun.IDB, users []rankingdb.User) error
	ListStandingsFunc   func(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]rankingdb.WeeklyXP, error)
}

var _ rankingdb.Repository = (*FakeRankingRepo)(nil)

func NewFakeRankingRepo() *FakeRankingRepo {
	return &FakeRankingRepo{
		trace:  []string{},
		weeks:  map[int64]*rankingdb.Week{},
		users:  map[int64]*rankingdb.User{},
		nextID: 1000,
	}
}

func (f *FakeRankingRepo) record(step string) {
	f.trace = append(f.trace, step)
}

// weekFinal mirrors the status join of the user history queries.
func (f *FakeRankingRepo) weekFinal(weekID int64) bool {
	w, ok := f.weeks[weekID]
	return ok && rankingdomain.WeekStatus(w.Status).IsFinal()
}

func (f *FakeRankingRepo) id() int64 {
	f.nextID++
	return f.nextID
}

// --- TierRepository ---

func (f *FakeRankingRepo) ListTiers(ctx context.Context, db bun.IDB) ([]rankingdb.Tier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListTiers")
	out := make([]rankingdb.Tier, len(f.tiers))
	for i, t := range f.tiers {
		out[i] = t
		if t.Rule != nil {
			rule := *t.Rule
			out[i].Rule = &rule
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (f *FakeRankingRepo) GetTierByName(ctx context.Context, db bun.IDB, name string) (*rankingdb.Tier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetTierByName")
	for _, t := range f.tiers {
		if t.Name == name {
			out := t
			return &out, nil
		}
	}
	return nil, rankingdb.ErrNotFound
}

func (f *FakeRankingRepo) UpsertTier(ctx context.Context, db bun.IDB, tier *rankingdb.Tier) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpsertTier")
	for i := range f.tiers {
		if f.tiers[i].Name == tier.Name {
			tier.ID = f.tiers[i].ID
			f.tiers[i] = *tier
			return nil
		}
	}
	if tier.ID == 0 {
		tier.ID = f.id()
	}
	if tier.Rule != nil {
		tier.Rule.TierID = tier.ID
	}
	f.tiers = append(f.tiers, *tier)
	return nil
}

func (f *FakeRankingRepo) UpdateTierRule(ctx context.Context, db bun.IDB, rule *rankingdb.TierRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateTierRule")
	for i := range f.tiers {
		if f.tiers[i].ID == rule.TierID && f.tiers[i].Rule != nil {
			r := *rule
			f.tiers[i].Rule = &r
			return nil
		}
	}
	return rankingdb.ErrNoRowsAffected
}

func (f *FakeRankingRepo) UpdateTierCapacity(ctx context.Context, db bun.IDB, tierID int64, maxGroupSize int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateTierCapacity")
	for i := range f.tiers {
		if f.tiers[i].ID == tierID {
			f.tiers[i].MaxGroupSize = maxGroupSize
			return nil
		}
	}
	return rankingdb.ErrNoRowsAffected
}

func (f *FakeRankingRepo) ListRewardRules(ctx context.Context, db bun.IDB) ([]rankingdb.RewardRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListRewardRules")
	return append([]rankingdb.RewardRule(nil), f.rewardRules...), nil
}

func (f *FakeRankingRepo) UpsertRewardRule(ctx context.Context, db bun.IDB, rule *rankingdb.RewardRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpsertRewardRule")
	for i, r := range f.rewardRules {
		if r.TierID == rule.TierID && r.Status == rule.Status && r.RewardType == rule.RewardType {
			f.rewardRules[i].Amount = rule.Amount
			return nil
		}
	}
	f.rewardRules = append(f.rewardRules, *rule)
	return nil
}

// --- WeekRepository ---

func (f *FakeRankingRepo) GetWeek(ctx context.Context, db bun.IDB, weekID int64) (*rankingdb.Week, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetWeek")
	w, ok := f.weeks[weekID]
	if !ok {
		return nil, rankingdb.ErrNotFound
	}
	out := *w
	return &out, nil
}

func (f *FakeRankingRepo) GetWeekByKey(ctx context.Context, db bun.IDB, weekKey string) (*rankingdb.Week, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetWeekByKey")
	for _, w := range f.weeks {
		if w.WeekKey == weekKey {
			out := *w
			return &out, nil
		}
	}
	return nil, rankingdb.ErrNotFound
}

func (f *FakeRankingRepo) sortedWeeks() []rankingdb.Week {
	weeks := make([]rankingdb.Week, 0, len(f.weeks))
	for _, w := range f.weeks {
		weeks = append(weeks, *w)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].StartsAt.Before(weeks[j].StartsAt) })
	return weeks
}

func (f *FakeRankingRepo) GetWeekByStatus(ctx context.Context, db bun.IDB, status string) (*rankingdb.Week, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetWeekByStatus")
	for _, w := range f.sortedWeeks() {
		if w.Status == status {
			return &w, nil
		}
	}
	return nil, rankingdb.ErrNotFound
}

func (f *FakeRankingRepo) GetLatestWeek(ctx context.Context, db bun.IDB) (*rankingdb.Week, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetLatestWeek")
	weeks := f.sortedWeeks()
	if len(weeks) == 0 {
		return nil, rankingdb.ErrNotFound
	}
	latest := weeks[len(weeks)-1]
	return &latest, nil
}

func (f *FakeRankingRepo) ListWeeksByStatus(ctx context.Context, db bun.IDB, status string, limit int) ([]rankingdb.Week, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListWeeksByStatus")
	var out []rankingdb.Week
	for _, w := range f.sortedWeeks() {
		if w.Status == status {
			out = append(out, w)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRankingRepo) CreateWeek(ctx context.Context, db bun.IDB, week *rankingdb.Week) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateWeek")
	for _, w := range f.weeks {
		if w.WeekKey == week.WeekKey {
			return fmt.Errorf("rankingdb.CreateWeek: duplicate week key %s", week.WeekKey)
		}
	}
	week.ID = f.id()
	stored := *week
	f.weeks[week.ID] = &stored
	return nil
}

func (f *FakeRankingRepo) TransitionWeek(ctx context.Context, db bun.IDB, weekID int64, from, to string, at time.Time) error {
	if f.TransitionWeekFunc != nil {
		if err := f.TransitionWeekFunc(ctx, db, weekID, from, to, at); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("TransitionWeek:" + to)
	w, ok := f.weeks[weekID]
	if !ok || w.Status != from {
		return rankingdb.ErrNoRowsAffected
	}
	w.Status = to
	switch to {
	case "LOCKED":
		w.LockedAt = &at
	case "EVALUATED":
		w.EvaluatedAt = &at
	case "ARCHIVED":
		w.ArchivedAt = &at
	}
	return nil
}

func (f *FakeRankingRepo) AcquireTierLock(ctx context.Context, db bun.IDB, weekID, tierID int64) error {
	f.mu.Lock()
	f.record(fmt.Sprintf("AcquireTierLock:%d", tierID))
	f.mu.Unlock()
	if f.AcquireTierLockFunc != nil {
		return f.AcquireTierLockFunc(ctx, db, weekID, tierID)
	}
	return nil
}

func (f *FakeRankingRepo) AcquireWeekLock(ctx context.Context, db bun.IDB) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AcquireWeekLock")
	return nil
}

// --- StandingRepository ---

func (f *FakeRankingRepo) ListStandings(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]rankingdb.WeeklyXP, error) {
	if f.ListStandingsFunc != nil {
		return f.ListStandingsFunc(ctx, db, weekID, tierID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListStandings")
	var out []rankingdb.WeeklyXP
	for _, s := range f.standings {
		if s.WeekID == weekID && s.TierID == tierID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *FakeRankingRepo) ListStandingTierIDs(ctx context.Context, db bun.IDB, weekID int64) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListStandingTierIDs")
	seen := map[int64]struct{}{}
	var out []int64
	for _, s := range f.standings {
		if s.WeekID != weekID {
			continue
		}
		if _, ok := seen[s.TierID]; !ok {
			seen[s.TierID] = struct{}{}
			out = append(out, s.TierID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *FakeRankingRepo) CountStandings(ctx context.Context, db bun.IDB, weekID, tierID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CountStandings")
	n := 0
	for _, s := range f.standings {
		if s.WeekID == weekID && s.TierID == tierID {
			n++
		}
	}
	return n, nil
}

func (f *FakeRankingRepo) GetStanding(ctx context.Context, db bun.IDB, weekID, userID int64) (*rankingdb.WeeklyXP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetStanding")
	for _, s := range f.standings {
		if s.WeekID == weekID && s.UserID == userID {
			out := s
			return &out, nil
		}
	}
	return nil, rankingdb.ErrNotFound
}

func (f *FakeRankingRepo) SeedStandings(ctx context.Context, db bun.IDB, rows []rankingdb.WeeklyXP) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SeedStandings")
	var inserted int64
	for _, row := range rows {
		exists := false
		for _, s := range f.standings {
			if s.WeekID == row.WeekID && s.UserID == row.UserID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		row.ID = f.id()
		f.standings = append(f.standings, row)
		inserted++
	}
	return inserted, nil
}

// --- GroupRepository ---

func (f *FakeRankingRepo) ListGroups(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]rankingdb.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListGroups")
	var out []rankingdb.Group
	for _, g := range f.groups {
		if g.WeekID == weekID && g.TierID == tierID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupIndex < out[j].GroupIndex })
	return out, nil
}

func (f *FakeRankingRepo) ListMembers(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]rankingdb.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListMembers")
	var out []rankingdb.GroupMember
	for _, m := range f.members {
		if m.WeekID == weekID && m.TierID == tierID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *FakeRankingRepo) ListMembershipsForUsers(ctx context.Context, db bun.IDB, weekID int64, userIDs []int64) ([]rankingdb.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListMembershipsForUsers")
	wanted := map[int64]struct{}{}
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}
	var out []rankingdb.GroupMember
	for _, m := range f.members {
		if _, ok := wanted[m.UserID]; ok && m.WeekID == weekID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *FakeRankingRepo) GetMembership(ctx context.Context, db bun.IDB, weekID, userID int64) (*rankingdb.GroupMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetMembership")
	for _, m := range f.members {
		if m.WeekID == weekID && m.UserID == userID {
			out := m
			return &out, nil
		}
	}
	return nil, rankingdb.ErrNotFound
}

func (f *FakeRankingRepo) InsertGroups(ctx context.Context, db bun.IDB, groups []rankingdb.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InsertGroups")
	for i := range groups {
		groups[i].ID = f.id()
		f.groups = append(f.groups, groups[i])
	}
	return nil
}

func (f *FakeRankingRepo) InsertMembers(ctx context.Context, db bun.IDB, members []rankingdb.GroupMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InsertMembers")
	for _, m := range members {
		m.ID = f.id()
		f.members = append(f.members, m)
	}
	return nil
}

// --- SnapshotRepository ---

func (f *FakeRankingRepo) CountSnapshots(ctx context.Context, db bun.IDB, weekID, tierID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CountSnapshots")
	n := 0
	for _, s := range f.snapshots {
		if s.WeekID == weekID && s.TierID == tierID {
			n++
		}
	}
	return n, nil
}

func (f *FakeRankingRepo) InsertSnapshots(ctx context.Context, db bun.IDB, snapshots []rankingdb.WeeklySnapshot) error {
	if f.InsertSnapshotsFunc != nil {
		if err := f.InsertSnapshotsFunc(ctx, db, snapshots); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InsertSnapshots")
	for _, s := range snapshots {
		for _, existing := range f.snapshots {
			if existing.WeekID == s.WeekID && existing.UserID == s.UserID {
				return fmt.Errorf("rankingdb.InsertSnapshots: duplicate snapshot for user %d", s.UserID)
			}
		}
		s.ID = f.id()
		f.snapshots = append(f.snapshots, s)
	}
	return nil
}

func (f *FakeRankingRepo) InsertTierChanges(ctx context.Context, db bun.IDB, changes []rankingdb.TierChangeHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InsertTierChanges")
	f.changes = append(f.changes, changes...)
	return nil
}

func (f *FakeRankingRepo) InsertRewards(ctx context.Context, db bun.IDB, rewards []rankingdb.RewardHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("InsertRewards")
	f.rewards = append(f.rewards, rewards...)
	return nil
}

func (f *FakeRankingRepo) ListGroupSnapshots(ctx context.Context, db bun.IDB, weekID, groupID int64) ([]rankingdb.WeeklySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListGroupSnapshots")
	var out []rankingdb.WeeklySnapshot
	for _, s := range f.snapshots {
		if s.WeekID == weekID && s.GroupID == groupID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *FakeRankingRepo) ListWeekSnapshots(ctx context.Context, db bun.IDB, weekID int64) ([]rankingdb.WeeklySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListWeekSnapshots")
	var out []rankingdb.WeeklySnapshot
	for _, s := range f.snapshots {
		if s.WeekID == weekID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *FakeRankingRepo) ListUserSnapshots(ctx context.Context, db bun.IDB, userID int64, limit int) ([]rankingdb.WeeklySnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListUserSnapshots")
	var out []rankingdb.WeeklySnapshot
	for i := len(f.snapshots) - 1; i >= 0; i-- {
		if f.snapshots[i].UserID == userID && f.weekFinal(f.snapshots[i].WeekID) {
			out = append(out, f.snapshots[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRankingRepo) ListUserTierChanges(ctx context.Context, db bun.IDB, userID int64, limit int) ([]rankingdb.TierChangeHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListUserTierChanges")
	var out []rankingdb.TierChangeHistory
	for i := len(f.changes) - 1; i >= 0; i-- {
		if f.changes[i].UserID == userID && f.weekFinal(f.changes[i].WeekID) {
			out = append(out, f.changes[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRankingRepo) ListUserRewards(ctx context.Context, db bun.IDB, userID int64, limit int) ([]rankingdb.RewardHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListUserRewards")
	var out []rankingdb.RewardHistory
	for i := len(f.rewards) - 1; i >= 0; i-- {
		if f.rewards[i].UserID == userID && f.weekFinal(f.rewards[i].WeekID) {
			out = append(out, f.rewards[i])
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *FakeRankingRepo) ListWeekRewards(ctx context.Context, db bun.IDB, weekID int64) ([]rankingdb.RewardHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListWeekRewards")
	var out []rankingdb.RewardHistory
	for _, r := range f.rewards {
		if r.WeekID == weekID {
			out = append(out, r)
		}
	}
	return out, nil
}

// --- UserRepository ---

func (f *FakeRankingRepo) GetUsersByIDs(ctx context.Context, db bun.IDB, userIDs []int64) ([]rankingdb.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetUsersByIDs")
	var out []rankingdb.User
	for _, id := range userIDs {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *FakeRankingRepo) ListTieredUsers(ctx context.Context, db bun.IDB) ([]rankingdb.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ListTieredUsers")
	var out []rankingdb.User
	for _, u := range f.users {
		if u.CurrentTierID != nil {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeRankingRepo) SetCurrentTiers(ctx context.Context, db bun.IDB, users []rankingdb.User) error {
	if f.SetCurrentTiersFunc != nil {
		if err := f.SetCurrentTiersFunc(ctx, db, users); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetCurrentTiers")
	for _, u := range users {
		if existing, ok := f.users[u.ID]; ok {
			tier := *u.CurrentTierID
			existing.CurrentTierID = &tier
		}
	}
	return nil
}

func (f *FakeRankingRepo) EnrollUntiered(ctx context.Context, db bun.IDB, tierID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("EnrollUntiered")
	var n int64
	for _, u := range f.users {
		if u.CurrentTierID == nil {
			tier := tierID
			u.CurrentTierID = &tier
			n++
		}
	}
	return n, nil
}

// --- Seeding and accessors for assertions ---

// Trace returns the recorded calls in order.
func (f *FakeRankingRepo) Trace() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.trace))
	copy(out, f.trace)
	return out
}

func (f *FakeRankingRepo) Called(step string) int {
	n := 0
	for _, s := range f.Trace() {
		if s == step {
			n++
		}
	}
	return n
}

// seedLadder installs the six default tiers with ids 1..6, 20% bands, no
// floors and a PROMOTED diamond grant of 10 per rung.
func (f *FakeRankingRepo) seedLadder(maxGroupSize int) {
	for i, name := range rankingdomain.DefaultTierNames {
		id := int64(i + 1)
		isMaster := name == rankingdomain.TierMaster
		promote := decimal.RequireFromString("0.2")
		if isMaster {
			promote = decimal.Zero
		}
		f.tiers = append(f.tiers, rankingdb.Tier{
			ID:           id,
			Name:         string(name),
			OrderIndex:   i,
			MaxGroupSize: maxGroupSize,
			Rule: &rankingdb.TierRule{
				TierID:       id,
				PromoteRatio: promote,
				DemoteRatio:  decimal.RequireFromString("0.2"),
				IsMaster:     isMaster,
			},
		})
		if !isMaster {
			f.rewardRules = append(f.rewardRules, rankingdb.RewardRule{
				ID:         id,
				TierID:     id,
				Status:     string(rankingdomain.StatusPromoted),
				RewardType: string(rankingdomain.RewardDiamond),
				Amount:     decimal.NewFromInt(10 * id),
			})
		}
	}
}

func (f *FakeRankingRepo) addWeek(id int64, key string, startsAt time.Time, status rankingdomain.WeekStatus) *rankingdb.Week {
	w := &rankingdb.Week{
		ID:       id,
		WeekKey:  key,
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(7 * 24 * time.Hour),
		Status:   string(status),
	}
	if status.IsFinal() {
		at := w.EndsAt
		w.EvaluatedAt = &at
	}
	f.weeks[id] = w
	return w
}

// addParticipant creates a user at tierID with a standing in weekID.
func (f *FakeRankingRepo) addParticipant(weekID, userID, tierID, xp int64) {
	tier := tierID
	f.users[userID] = &rankingdb.User{ID: userID, CurrentTierID: &tier}
	f.standings = append(f.standings, rankingdb.WeeklyXP{
		ID:     f.id(),
		WeekID: weekID,
		UserID: userID,
		TierID: tierID,
		XP:     xp,
	})
}

func (f *FakeRankingRepo) userTier(userID int64) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[userID]
	if u == nil || u.CurrentTierID == nil {
		return 0
	}
	return *u.CurrentTierID
}

func (f *FakeRankingRepo) weekStatus(weekID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weeks[weekID].Status
}

// ------------------------
// Test doubles
// ------------------------

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type publishedEvent struct {
	Topic         string
	CorrelationID string
	Payload       any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error

	// OnPublish runs before the event is recorded.
	OnPublish func(topic string)
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, correlationID string, payload any) error {
	if p.OnPublish != nil {
		p.OnPublish(topic)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, CorrelationID: correlationID, Payload: payload})
	return p.err
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Topic
	}
	return out
}

// tempErr is a transient storage error.
type tempErr struct{}

func (tempErr) Error() string   { return "connection reset" }
func (tempErr) Temporary() bool { return true }

var weekStart = time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo *FakeRankingRepo, now time.Time) (*RankingService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	settings := DefaultSettings()
	settings.Retry = RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond, MaxTries: 3}
	svc := NewRankingService(
		nil,
		repo,
		pub,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NoOpMetrics{},
		noop.NewTracerProvider().Tracer("test"),
		fixedClock{now: now},
		settings,
	)
	return svc, pub
}
