package rankingmigrations

import (
	"context"
	"fmt"

	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type seedTier struct {
	name         string
	promoteMinXP int64
	demoteMinXP  int64
	promoteRatio string
	demoteRatio  string
	isMaster     bool
	reward       int64
}

var defaultLadder = []seedTier{
	{name: "BRONZE", promoteMinXP: 10, demoteMinXP: 0, promoteRatio: "0.2", demoteRatio: "0", reward: 10},
	{name: "SILVER", promoteMinXP: 20, demoteMinXP: 5, promoteRatio: "0.2", demoteRatio: "0.2", reward: 20},
	{name: "GOLD", promoteMinXP: 30, demoteMinXP: 10, promoteRatio: "0.2", demoteRatio: "0.2", reward: 30},
	{name: "SAPPHIRE", promoteMinXP: 40, demoteMinXP: 15, promoteRatio: "0.2", demoteRatio: "0.2", reward: 40},
	{name: "RUBY", promoteMinXP: 50, demoteMinXP: 20, promoteRatio: "0.2", demoteRatio: "0.2", reward: 50},
	{name: "MASTER", promoteMinXP: 0, demoteMinXP: 25, promoteRatio: "0", demoteRatio: "0.2", isMaster: true},
}

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Seeding default ranking ladder...")

		tiers := rankingdb.NewTierRepo()
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			for i, s := range defaultLadder {
				tier := &rankingdb.Tier{
					Name:         s.name,
					OrderIndex:   i,
					MaxGroupSize: 10,
					Rule: &rankingdb.TierRule{
						PromoteMinXP: s.promoteMinXP,
						DemoteMinXP:  s.demoteMinXP,
						PromoteRatio: decimal.RequireFromString(s.promoteRatio),
						DemoteRatio:  decimal.RequireFromString(s.demoteRatio),
						IsMaster:     s.isMaster,
					},
				}
				if err := tiers.UpsertTier(ctx, tx, tier); err != nil {
					return err
				}
				if s.reward == 0 {
					continue
				}
				if err := tiers.UpsertRewardRule(ctx, tx, &rankingdb.RewardRule{
					TierID:     tier.ID,
					Status:     "PROMOTED",
					RewardType: "DIAMOND",
					Amount:     decimal.NewFromInt(s.reward),
				}); err != nil {
					return err
				}
			}
			fmt.Println("Default ranking ladder seeded!")
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Removing default ranking ladder...")
		names := make([]string, 0, len(defaultLadder))
		for _, s := range defaultLadder {
			names = append(names, s.name)
		}
		_, err := db.NewDelete().
			Model((*rankingdb.Tier)(nil)).
			Where("name IN (?)", bun.In(names)).
			Exec(ctx)
		return err
	})
}
