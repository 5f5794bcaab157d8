package rankingdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// WeekRepository defines operations on ranking_weeks.
type WeekRepository interface {
	GetWeek(ctx context.Context, db bun.IDB, weekID int64) (*Week, error)
	GetWeekByKey(ctx context.Context, db bun.IDB, weekKey string) (*Week, error)

	// GetWeekByStatus returns the oldest week in status, or ErrNotFound.
	GetWeekByStatus(ctx context.Context, db bun.IDB, status string) (*Week, error)

	// GetLatestWeek returns the week with the latest start, or ErrNotFound.
	GetLatestWeek(ctx context.Context, db bun.IDB) (*Week, error)

	// ListWeeksByStatus returns weeks in status, oldest first.
	ListWeeksByStatus(ctx context.Context, db bun.IDB, status string, limit int) ([]Week, error)

	CreateWeek(ctx context.Context, db bun.IDB, week *Week) error

	// TransitionWeek moves a week from one status to the next with a
	// conditional update. Returns ErrNoRowsAffected when the week is not in
	// status from.
	TransitionWeek(ctx context.Context, db bun.IDB, weekID int64, from, to string, at time.Time) error

	// AcquireTierLock acquires a pg_advisory_xact_lock for (week, tier).
	// Must be called within a transaction.
	AcquireTierLock(ctx context.Context, db bun.IDB, weekID, tierID int64) error

	// AcquireWeekLock serializes week creation. Must be called within a
	// transaction.
	AcquireWeekLock(ctx context.Context, db bun.IDB) error
}

// WeekRepo implements WeekRepository.
type WeekRepo struct{}

func NewWeekRepo() WeekRepository {
	return &WeekRepo{}
}

func (r *WeekRepo) GetWeek(ctx context.Context, db bun.IDB, weekID int64) (*Week, error) {
	week := new(Week)
	err := db.NewSelect().Model(week).Where("w.id = ?", weekID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rankingdb.GetWeek: %w", err)
	}
	return week, nil
}

func (r *WeekRepo) GetWeekByKey(ctx context.Context, db bun.IDB, weekKey string) (*Week, error) {
	week := new(Week)
	err := db.NewSelect().Model(week).Where("w.week_key = ?", weekKey).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rankingdb.GetWeekByKey: %w", err)
	}
	return week, nil
}

func (r *WeekRepo) GetWeekByStatus(ctx context.Context, db bun.IDB, status string) (*Week, error) {
	week := new(Week)
	err := db.NewSelect().
		Model(week).
		Where("w.status = ?", status).
		Order("w.starts_at ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rankingdb.GetWeekByStatus: %w", err)
	}
	return week, nil
}

func (r *WeekRepo) GetLatestWeek(ctx context.Context, db bun.IDB) (*Week, error) {
	week := new(Week)
	err := db.NewSelect().
		Model(week).
		Order("w.starts_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rankingdb.GetLatestWeek: %w", err)
	}
	return week, nil
}

func (r *WeekRepo) ListWeeksByStatus(ctx context.Context, db bun.IDB, status string, limit int) ([]Week, error) {
	var weeks []Week
	q := db.NewSelect().
		Model(&weeks).
		Where("w.status = ?", status).
		Order("w.starts_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("rankingdb.ListWeeksByStatus: %w", err)
	}
	return weeks, nil
}

func (r *WeekRepo) CreateWeek(ctx context.Context, db bun.IDB, week *Week) error {
	now := time.Now().UTC()
	week.CreatedAt = now
	week.UpdatedAt = now
	if _, err := db.NewInsert().Model(week).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.CreateWeek: %w", err)
	}
	return nil
}

func (r *WeekRepo) TransitionWeek(ctx context.Context, db bun.IDB, weekID int64, from, to string, at time.Time) error {
	q := db.NewUpdate().
		Model((*Week)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", weekID).
		Where("status = ?", from)

	switch to {
	case "LOCKED":
		q = q.Set("locked_at = ?", at)
	case "EVALUATED":
		q = q.Set("evaluated_at = ?", at)
	case "ARCHIVED":
		q = q.Set("archived_at = ?", at)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("rankingdb.TransitionWeek: %w", err)
	}
	return requireAffected(res, "rankingdb.TransitionWeek")
}

func (r *WeekRepo) AcquireTierLock(ctx context.Context, db bun.IDB, weekID, tierID int64) error {
	key := fmt.Sprintf("ranking:week:%d:tier:%d", weekID, tierID)
	if _, err := db.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.AcquireTierLock: %w", err)
	}
	return nil
}

func (r *WeekRepo) AcquireWeekLock(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "ranking:weeks").Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.AcquireWeekLock: %w", err)
	}
	return nil
}
