package rankingdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// TierRepository defines operations on the ladder configuration tables.
// Every evaluation run reads these fresh.
type TierRepository interface {
	// ListTiers returns all tiers with their rules, lowest rung first.
	ListTiers(ctx context.Context, db bun.IDB) ([]Tier, error)

	// GetTierByName returns ErrNotFound when no tier has the name.
	GetTierByName(ctx context.Context, db bun.IDB, name string) (*Tier, error)

	// UpsertTier creates or updates a tier and its rule.
	UpsertTier(ctx context.Context, db bun.IDB, tier *Tier) error

	// UpdateTierRule replaces a tier's rule. Returns ErrNoRowsAffected if the
	// tier has no rule row.
	UpdateTierRule(ctx context.Context, db bun.IDB, rule *TierRule) error

	// UpdateTierCapacity sets max_group_size for groups created from now on.
	UpdateTierCapacity(ctx context.Context, db bun.IDB, tierID int64, maxGroupSize int) error

	// ListRewardRules returns every configured reward rule.
	ListRewardRules(ctx context.Context, db bun.IDB) ([]RewardRule, error)

	// UpsertRewardRule creates or updates the rule for (tier, status, reward type).
	UpsertRewardRule(ctx context.Context, db bun.IDB, rule *RewardRule) error
}

// TierRepo implements TierRepository.
type TierRepo struct{}

func NewTierRepo() TierRepository {
	return &TierRepo{}
}

func (r *TierRepo) ListTiers(ctx context.Context, db bun.IDB) ([]Tier, error) {
	var tiers []Tier
	err := db.NewSelect().
		Model(&tiers).
		Relation("Rule").
		Order("t.order_index ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListTiers: %w", err)
	}
	return tiers, nil
}

func (r *TierRepo) GetTierByName(ctx context.Context, db bun.IDB, name string) (*Tier, error) {
	tier := new(Tier)
	err := db.NewSelect().
		Model(tier).
		Relation("Rule").
		Where("t.name = ?", name).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rankingdb.GetTierByName: %w", err)
	}
	return tier, nil
}

func (r *TierRepo) UpsertTier(ctx context.Context, db bun.IDB, tier *Tier) error {
	tier.UpdatedAt = time.Now().UTC()
	_, err := db.NewInsert().
		Model(tier).
		On("CONFLICT (name) DO UPDATE").
		Set("order_index = EXCLUDED.order_index").
		Set("max_group_size = EXCLUDED.max_group_size").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rankingdb.UpsertTier: %w", err)
	}

	if tier.Rule == nil {
		return nil
	}
	tier.Rule.TierID = tier.ID
	tier.Rule.UpdatedAt = tier.UpdatedAt
	_, err = db.NewInsert().
		Model(tier.Rule).
		On("CONFLICT (tier_id) DO UPDATE").
		Set("promote_min_xp = EXCLUDED.promote_min_xp").
		Set("demote_min_xp = EXCLUDED.demote_min_xp").
		Set("promote_ratio = EXCLUDED.promote_ratio").
		Set("demote_ratio = EXCLUDED.demote_ratio").
		Set("is_master = EXCLUDED.is_master").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rankingdb.UpsertTier rule: %w", err)
	}
	return nil
}

func (r *TierRepo) UpdateTierRule(ctx context.Context, db bun.IDB, rule *TierRule) error {
	rule.UpdatedAt = time.Now().UTC()
	res, err := db.NewUpdate().
		Model(rule).
		Column("promote_min_xp", "demote_min_xp", "promote_ratio", "demote_ratio", "is_master", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rankingdb.UpdateTierRule: %w", err)
	}
	return requireAffected(res, "rankingdb.UpdateTierRule")
}

func (r *TierRepo) UpdateTierCapacity(ctx context.Context, db bun.IDB, tierID int64, maxGroupSize int) error {
	res, err := db.NewUpdate().
		Model((*Tier)(nil)).
		Set("max_group_size = ?", maxGroupSize).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", tierID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rankingdb.UpdateTierCapacity: %w", err)
	}
	return requireAffected(res, "rankingdb.UpdateTierCapacity")
}

func (r *TierRepo) ListRewardRules(ctx context.Context, db bun.IDB) ([]RewardRule, error) {
	var rules []RewardRule
	err := db.NewSelect().
		Model(&rules).
		Order("rr.tier_id ASC", "rr.status ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("rankingdb.ListRewardRules: %w", err)
	}
	return rules, nil
}

func (r *TierRepo) UpsertRewardRule(ctx context.Context, db bun.IDB, rule *RewardRule) error {
	rule.UpdatedAt = time.Now().UTC()
	_, err := db.NewInsert().
		Model(rule).
		On("CONFLICT (tier_id, status, reward_type) DO UPDATE").
		Set("amount = EXCLUDED.amount").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rankingdb.UpsertRewardRule: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrNoRowsAffected
	}
	return nil
}
