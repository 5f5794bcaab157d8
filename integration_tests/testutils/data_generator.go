//go:build integration

package testutils

import (
	"context"
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/uptrace/bun"

	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
)

// TestDataGenerator creates users and weekly XP.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator seeds the faker so a failing run can be replayed.
func NewTestDataGenerator(seed uint64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// TierID looks up a seeded tier by name.
func TierID(t *testing.T, ctx context.Context, db bun.IDB, name string) int64 {
	t.Helper()
	var tier rankingdb.Tier
	if err := db.NewSelect().Model(&tier).Where("name = ?", name).Scan(ctx); err != nil {
		t.Fatalf("tier %s: %v", name, err)
	}
	return tier.ID
}

// InsertUsers creates count users on tierID. A zero tierID leaves them
// untiered.
func (g *TestDataGenerator) InsertUsers(t *testing.T, ctx context.Context, db bun.IDB, count int, tierID int64) []int64 {
	t.Helper()
	users := make([]rankingdb.User, count)
	for i := range users {
		if tierID != 0 {
			id := tierID
			users[i].CurrentTierID = &id
		}
	}
	if _, err := db.NewInsert().Model(&users).Returning("id").Exec(ctx); err != nil {
		t.Fatalf("failed to insert users: %v", err)
	}
	ids := make([]int64, count)
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

// RandomizeXP gives every standing of the week a random XP between 0 and
// maxXP and returns it by user.
func (g *TestDataGenerator) RandomizeXP(t *testing.T, ctx context.Context, db bun.IDB, weekID int64, maxXP int) map[int64]int64 {
	t.Helper()
	var standings []rankingdb.WeeklyXP
	if err := db.NewSelect().Model(&standings).Where("week_id = ?", weekID).Scan(ctx); err != nil {
		t.Fatalf("failed to load standings: %v", err)
	}

	xp := make(map[int64]int64, len(standings))
	for _, s := range standings {
		v := int64(g.faker.Number(0, maxXP))
		solved := g.faker.Number(0, 20)
		_, err := db.NewUpdate().
			Model((*rankingdb.WeeklyXP)(nil)).
			Set("xp = ?", v).
			Set("solved_count = ?", solved).
			Set("last_solved_at = now()").
			Where("id = ?", s.ID).
			Exec(ctx)
		if err != nil {
			t.Fatalf("failed to set xp for user %d: %v", s.UserID, err)
		}
		xp[s.UserID] = v
	}
	return xp
}

// CountRows counts the rows of model's table matching where.
func CountRows(t *testing.T, ctx context.Context, db bun.IDB, model any, where string, args ...any) int {
	t.Helper()
	q := db.NewSelect().Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	n, err := q.Count(ctx)
	if err != nil {
		t.Fatalf("count %T: %v", model, err)
	}
	return n
}

// UserTier returns the current tier of a user, or 0 when untiered.
func UserTier(t *testing.T, ctx context.Context, db bun.IDB, userID int64) int64 {
	t.Helper()
	var u rankingdb.User
	if err := db.NewSelect().Model(&u).Where("id = ?", userID).Scan(ctx); err != nil {
		t.Fatal(fmt.Errorf("user %d: %w", userID, err))
	}
	if u.CurrentTierID == nil {
		return 0
	}
	return *u.CurrentTierID
}
