package rankingdb

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
)

// UserRepository touches the platform's users table. current_tier_id is the
// only column written.
type UserRepository interface {
	GetUsersByIDs(ctx context.Context, db bun.IDB, userIDs []int64) ([]User, error)

	// ListTieredUsers returns every user with a non-null current_tier_id.
	ListTieredUsers(ctx context.Context, db bun.IDB) ([]User, error)

	// SetCurrentTiers writes current_tier_id for each user in one statement.
	SetCurrentTiers(ctx context.Context, db bun.IDB, users []User) error

	// EnrollUntiered sets current_tier_id = tierID where it is null.
	EnrollUntiered(ctx context.Context, db bun.IDB, tierID int64) (int64, error)
}

// UserRepo implements UserRepository.
type UserRepo struct{}

func NewUserRepo() UserRepository {
	return &UserRepo{}
}

func (r *UserRepo) GetUsersByIDs(ctx context.Context, db bun.IDB, userIDs []int64) ([]User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var users []User
	err := db.NewSelect().
		Model(&users).
		Where("u.id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.GetUsersByIDs: %w", err)
	}
	return users, nil
}

func (r *UserRepo) ListTieredUsers(ctx context.Context, db bun.IDB) ([]User, error) {
	var users []User
	err := db.NewSelect().
		Model(&users).
		Where("u.current_tier_id IS NOT NULL").
		Order("u.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListTieredUsers: %w", err)
	}
	return users, nil
}

func (r *UserRepo) SetCurrentTiers(ctx context.Context, db bun.IDB, users []User) error {
	if len(users) == 0 {
		return nil
	}
	values := db.NewValues(&users)
	_, err := db.NewUpdate().
		With("_data", values).
		Model((*User)(nil)).
		TableExpr("_data").
		Set("current_tier_id = _data.current_tier_id").
		Where("u.id = _data.id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rankingdb.SetCurrentTiers: %w", err)
	}
	return nil
}

func (r *UserRepo) EnrollUntiered(ctx context.Context, db bun.IDB, tierID int64) (int64, error) {
	res, err := db.NewUpdate().
		Model((*User)(nil)).
		Set("current_tier_id = ?", tierID).
		Where("current_tier_id IS NULL").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("rankingdb.EnrollUntiered: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
