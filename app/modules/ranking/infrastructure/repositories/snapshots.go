package rankingdb

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// SnapshotRepository defines operations on the write-once weekly snapshots
// and the append-only tier and reward history.
type SnapshotRepository interface {
	// CountSnapshots counts a tier's snapshots for a week. It is the
	// completeness check of a tier.
	CountSnapshots(ctx context.Context, db bun.IDB, weekID, tierID int64) (int, error)

	InsertSnapshots(ctx context.Context, db bun.IDB, snapshots []WeeklySnapshot) error
	InsertTierChanges(ctx context.Context, db bun.IDB, changes []TierChangeHistory) error
	InsertRewards(ctx context.Context, db bun.IDB, rewards []RewardHistory) error

	ListGroupSnapshots(ctx context.Context, db bun.IDB, weekID, groupID int64) ([]WeeklySnapshot, error)
	ListWeekSnapshots(ctx context.Context, db bun.IDB, weekID int64) ([]WeeklySnapshot, error)
	// ListUserSnapshots, ListUserTierChanges and ListUserRewards only return
	// rows of EVALUATED or ARCHIVED weeks, newest week first.
	ListUserSnapshots(ctx context.Context, db bun.IDB, userID int64, limit int) ([]WeeklySnapshot, error)
	ListUserTierChanges(ctx context.Context, db bun.IDB, userID int64, limit int) ([]TierChangeHistory, error)
	ListUserRewards(ctx context.Context, db bun.IDB, userID int64, limit int) ([]RewardHistory, error)
	ListWeekRewards(ctx context.Context, db bun.IDB, weekID int64) ([]RewardHistory, error)
}

// finalWeekStatuses are the week states whose snapshots and history are
// complete. Rows of a LOCKED week may belong to a partly evaluated week.
var finalWeekStatuses = []string{"EVALUATED", "ARCHIVED"}

// SnapshotRepo implements SnapshotRepository.
type SnapshotRepo struct{}

func NewSnapshotRepo() SnapshotRepository {
	return &SnapshotRepo{}
}

func (r *SnapshotRepo) CountSnapshots(ctx context.Context, db bun.IDB, weekID, tierID int64) (int, error) {
	n, err := db.NewSelect().
		Model((*WeeklySnapshot)(nil)).
		Where("week_id = ?", weekID).
		Where("tier_id = ?", tierID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("rankingdb.CountSnapshots: %w", err)
	}
	return n, nil
}

func (r *SnapshotRepo) InsertSnapshots(ctx context.Context, db bun.IDB, snapshots []WeeklySnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range snapshots {
		snapshots[i].CreatedAt = now
	}
	if _, err := db.NewInsert().Model(&snapshots).Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.InsertSnapshots: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) InsertTierChanges(ctx context.Context, db bun.IDB, changes []TierChangeHistory) error {
	if len(changes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range changes {
		changes[i].CreatedAt = now
	}
	if _, err := db.NewInsert().Model(&changes).Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.InsertTierChanges: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) InsertRewards(ctx context.Context, db bun.IDB, rewards []RewardHistory) error {
	if len(rewards) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range rewards {
		rewards[i].CreatedAt = now
	}
	if _, err := db.NewInsert().Model(&rewards).Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.InsertRewards: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) ListGroupSnapshots(ctx context.Context, db bun.IDB, weekID, groupID int64) ([]WeeklySnapshot, error) {
	var snapshots []WeeklySnapshot
	err := db.NewSelect().
		Model(&snapshots).
		Where("ws.week_id = ?", weekID).
		Where("ws.group_id = ?", groupID).
		Order("ws.rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListGroupSnapshots: %w", err)
	}
	return snapshots, nil
}

func (r *SnapshotRepo) ListWeekSnapshots(ctx context.Context, db bun.IDB, weekID int64) ([]WeeklySnapshot, error) {
	var snapshots []WeeklySnapshot
	err := db.NewSelect().
		Model(&snapshots).
		Where("ws.week_id = ?", weekID).
		Order("ws.tier_id ASC", "ws.group_id ASC", "ws.rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListWeekSnapshots: %w", err)
	}
	return snapshots, nil
}

func (r *SnapshotRepo) ListUserSnapshots(ctx context.Context, db bun.IDB, userID int64, limit int) ([]WeeklySnapshot, error) {
	var snapshots []WeeklySnapshot
	q := db.NewSelect().
		Model(&snapshots).
		Join("JOIN ranking_weeks AS w ON w.id = ws.week_id").
		Where("ws.user_id = ?", userID).
		Where("w.status IN (?)", bun.In(finalWeekStatuses)).
		Order("ws.week_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("rankingdb.ListUserSnapshots: %w", err)
	}
	return snapshots, nil
}

func (r *SnapshotRepo) ListUserTierChanges(ctx context.Context, db bun.IDB, userID int64, limit int) ([]TierChangeHistory, error) {
	var changes []TierChangeHistory
	q := db.NewSelect().
		Model(&changes).
		Join("JOIN ranking_weeks AS w ON w.id = tch.week_id").
		Where("tch.user_id = ?", userID).
		Where("w.status IN (?)", bun.In(finalWeekStatuses)).
		Order("tch.week_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("rankingdb.ListUserTierChanges: %w", err)
	}
	return changes, nil
}

func (r *SnapshotRepo) ListUserRewards(ctx context.Context, db bun.IDB, userID int64, limit int) ([]RewardHistory, error) {
	var rewards []RewardHistory
	q := db.NewSelect().
		Model(&rewards).
		Join("JOIN ranking_weeks AS w ON w.id = rh.week_id").
		Where("rh.user_id = ?", userID).
		Where("w.status IN (?)", bun.In(finalWeekStatuses)).
		Order("rh.week_id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("rankingdb.ListUserRewards: %w", err)
	}
	return rewards, nil
}

func (r *SnapshotRepo) ListWeekRewards(ctx context.Context, db bun.IDB, weekID int64) ([]RewardHistory, error) {
	var rewards []RewardHistory
	err := db.NewSelect().
		Model(&rewards).
		Where("rh.week_id = ?", weekID).
		Order("rh.tier_id ASC", "rh.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListWeekRewards: %w", err)
	}
	return rewards, nil
}
