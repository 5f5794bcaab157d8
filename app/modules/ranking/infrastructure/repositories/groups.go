package rankingdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// GroupRepository defines operations on ranking_groups and
// ranking_group_members.
type GroupRepository interface {
	ListGroups(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]Group, error)
	ListMembers(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]GroupMember, error)

	// ListMembershipsForUsers returns the week's memberships of the users in
	// any tier.
	ListMembershipsForUsers(ctx context.Context, db bun.IDB, weekID int64, userIDs []int64) ([]GroupMember, error)

	// GetMembership returns ErrNotFound when the user is not grouped.
	GetMembership(ctx context.Context, db bun.IDB, weekID, userID int64) (*GroupMember, error)

	// InsertGroups inserts groups and fills in their ids.
	InsertGroups(ctx context.Context, db bun.IDB, groups []Group) error
	InsertMembers(ctx context.Context, db bun.IDB, members []GroupMember) error
}

// GroupRepo implements GroupRepository.
type GroupRepo struct{}

func NewGroupRepo() GroupRepository {
	return &GroupRepo{}
}

func (r *GroupRepo) ListGroups(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]Group, error) {
	var groups []Group
	err := db.NewSelect().
		Model(&groups).
		Where("g.week_id = ?", weekID).
		Where("g.tier_id = ?", tierID).
		Order("g.group_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListGroups: %w", err)
	}
	return groups, nil
}

func (r *GroupRepo) ListMembers(ctx context.Context, db bun.IDB, weekID, tierID int64) ([]GroupMember, error) {
	var members []GroupMember
	err := db.NewSelect().
		Model(&members).
		Where("gm.week_id = ?", weekID).
		Where("gm.tier_id = ?", tierID).
		Order("gm.group_id ASC", "gm.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListMembers: %w", err)
	}
	return members, nil
}

func (r *GroupRepo) ListMembershipsForUsers(ctx context.Context, db bun.IDB, weekID int64, userIDs []int64) ([]GroupMember, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var members []GroupMember
	err := db.NewSelect().
		Model(&members).
		Where("gm.week_id = ?", weekID).
		Where("gm.user_id IN (?)", bun.In(userIDs)).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListMembershipsForUsers: %w", err)
	}
	return members, nil
}

func (r *GroupRepo) GetMembership(ctx context.Context, db bun.IDB, weekID, userID int64) (*GroupMember, error) {
	member := new(GroupMember)
	err := db.NewSelect().
		Model(member).
		Where("gm.week_id = ?", weekID).
		Where("gm.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "rankingdb.GetMembership")
	}
	return member, nil
}

func (r *GroupRepo) InsertGroups(ctx context.Context, db bun.IDB, groups []Group) error {
	if len(groups) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range groups {
		groups[i].CreatedAt = now
	}
	if _, err := db.NewInsert().Model(&groups).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.InsertGroups: %w", err)
	}
	return nil
}

func (r *GroupRepo) InsertMembers(ctx context.Context, db bun.IDB, members []GroupMember) error {
	if len(members) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range members {
		if members[i].JoinedAt.IsZero() {
			members[i].JoinedAt = now
		}
	}
	if _, err := db.NewInsert().Model(&members).Exec(ctx); err != nil {
		return fmt.Errorf("rankingdb.InsertMembers: %w", err)
	}
	return nil
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
