package rankingdb

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// StandingRepository reads the weekly XP rows written by the accumulator.
// The engine only inserts zero rows when a week opens.
type StandingRepository interface {
	// ListStandings returns every WeeklyXP row of a tier for a week.
	ListStandings(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]WeeklyXP, error)

	// ListStandingTierIDs returns the distinct tiers that have participants.
	ListStandingTierIDs(ctx context.Context, db bun.IDB, weekID int64) ([]int64, error)

	// CountStandings counts a tier's participants.
	CountStandings(ctx context.Context, db bun.IDB, weekID, tierID int64) (int, error)

	// GetStanding returns ErrNotFound when the user has no row for the week.
	GetStanding(ctx context.Context, db bun.IDB, weekID, userID int64) (*WeeklyXP, error)

	// SeedStandings inserts zero rows, skipping users that already have one.
	SeedStandings(ctx context.Context, db bun.IDB, rows []WeeklyXP) (int64, error)
}

// StandingRepo implements StandingRepository.
type StandingRepo struct{}

func NewStandingRepo() StandingRepository {
	return &StandingRepo{}
}

func (r *StandingRepo) ListStandings(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]WeeklyXP, error) {
	var rows []WeeklyXP
	err := db.NewSelect().
		Model(&rows).
		Where("wx.week_id = ?", weekID).
		Where("wx.tier_id = ?", tierID).
		Order("wx.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListStandings: %w", err)
	}
	return rows, nil
}

func (r *StandingRepo) ListStandingTierIDs(ctx context.Context, db bun.IDB, weekID int64) ([]int64, error) {
	var ids []int64
	err := db.NewSelect().
		Model((*WeeklyXP)(nil)).
		ColumnExpr("DISTINCT wx.tier_id").
		Where("wx.week_id = ?", weekID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListStandingTierIDs: %w", err)
	}
	return ids, nil
}

func (r *StandingRepo) CountStandings(ctx context.Context, db bun.IDB, weekID, tierID int64) (int, error) {
	n, err := db.NewSelect().
		Model((*WeeklyXP)(nil)).
		Where("week_id = ?", weekID).
		Where("tier_id = ?", tierID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("rankingdb.CountStandings: %w", err)
	}
	return n, nil
}

func (r *StandingRepo) GetStanding(ctx context.Context, db bun.IDB, weekID, userID int64) (*WeeklyXP, error) {
	row := new(WeeklyXP)
	err := db.NewSelect().
		Model(row).
		Where("wx.week_id = ?", weekID).
		Where("wx.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "rankingdb.GetStanding")
	}
	return row, nil
}

func (r *StandingRepo) SeedStandings(ctx context.Context, db bun.IDB, rows []WeeklyXP) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	for i := range rows {
		rows[i].CreatedAt = now
		rows[i].UpdatedAt = now
	}
	res, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (week_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("rankingdb.SeedStandings: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
