package rankingmigrations

import (
	"context"
	"fmt"

	rankingdb "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Creating ranking tables...")

		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewCreateTable().Model((*rankingdb.Tier)(nil)).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("create ranking_tiers: %w", err)
			}
			if _, err := tx.NewCreateTable().
				Model((*rankingdb.TierRule)(nil)).
				IfNotExists().
				ForeignKey(`("tier_id") REFERENCES "ranking_tiers" ("id") ON DELETE CASCADE`).
				Exec(ctx); err != nil {
				return fmt.Errorf("create ranking_tier_rules: %w", err)
			}
			if _, err := tx.NewCreateTable().
				Model((*rankingdb.RewardRule)(nil)).
				IfNotExists().
				ForeignKey(`("tier_id") REFERENCES "ranking_tiers" ("id") ON DELETE CASCADE`).
				Exec(ctx); err != nil {
				return fmt.Errorf("create ranking_reward_rules: %w", err)
			}
			if _, err := tx.NewCreateTable().Model((*rankingdb.Week)(nil)).IfNotExists().Exec(ctx); err != nil {
				return fmt.Errorf("create ranking_weeks: %w", err)
			}

			weekScoped := []struct {
				model any
				name  string
			}{
				{(*rankingdb.WeeklyXP)(nil), "ranking_weekly_xp"},
				{(*rankingdb.Group)(nil), "ranking_groups"},
				{(*rankingdb.GroupMember)(nil), "ranking_group_members"},
				{(*rankingdb.WeeklySnapshot)(nil), "ranking_weekly_snapshots"},
				{(*rankingdb.TierChangeHistory)(nil), "ranking_tier_change_history"},
				{(*rankingdb.RewardHistory)(nil), "ranking_reward_history"},
			}
			for _, t := range weekScoped {
				if _, err := tx.NewCreateTable().
					Model(t.model).
					IfNotExists().
					ForeignKey(`("week_id") REFERENCES "ranking_weeks" ("id") ON DELETE RESTRICT`).
					Exec(ctx); err != nil {
					return fmt.Errorf("create %s: %w", t.name, err)
				}
			}

			stmts := []string{
				// Exactly one OPEN week at any time.
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_ranking_weeks_single_open ON ranking_weeks (status) WHERE status = 'OPEN'`,
				`ALTER TABLE ranking_weeks ADD CONSTRAINT ranking_weeks_status_check CHECK (status IN ('OPEN', 'LOCKED', 'EVALUATED', 'ARCHIVED'))`,
				`ALTER TABLE ranking_tier_rules ADD CONSTRAINT ranking_tier_rules_ratio_check CHECK (promote_ratio BETWEEN 0 AND 1 AND demote_ratio BETWEEN 0 AND 1)`,
				`ALTER TABLE ranking_group_members ADD CONSTRAINT ranking_group_members_group_fk FOREIGN KEY (group_id) REFERENCES ranking_groups (id) ON DELETE RESTRICT`,
				`ALTER TABLE ranking_weekly_snapshots ADD CONSTRAINT ranking_weekly_snapshots_status_check CHECK (status IN ('PROMOTED', 'MAINTAINED', 'DEMOTED'))`,
				`CREATE INDEX IF NOT EXISTS idx_ranking_weekly_xp_week_tier ON ranking_weekly_xp (week_id, tier_id)`,
				`CREATE INDEX IF NOT EXISTS idx_ranking_group_members_week_tier ON ranking_group_members (week_id, tier_id)`,
				`CREATE INDEX IF NOT EXISTS idx_ranking_weekly_snapshots_week_tier ON ranking_weekly_snapshots (week_id, tier_id)`,
				`CREATE INDEX IF NOT EXISTS idx_ranking_weekly_snapshots_user ON ranking_weekly_snapshots (user_id, week_id DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_ranking_tier_change_history_user ON ranking_tier_change_history (user_id, week_id DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_ranking_reward_history_user ON ranking_reward_history (user_id, week_id DESC)`,
				// users is owned by the platform. Standalone deployments get a
				// minimal table; existing ones only gain the tier pointer.
				`CREATE TABLE IF NOT EXISTS users (id bigserial PRIMARY KEY)`,
				`ALTER TABLE users ADD COLUMN IF NOT EXISTS current_tier_id bigint NULL REFERENCES ranking_tiers (id)`,
				`CREATE INDEX IF NOT EXISTS idx_users_current_tier_id ON users (current_tier_id)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("ranking schema: %w", err)
				}
			}

			fmt.Println("Ranking tables created successfully!")
			return nil
		})
	}, func(ctx context.Context, db *bun.DB) error {
		fmt.Println("Dropping ranking tables...")

		if _, err := db.ExecContext(ctx, `ALTER TABLE users DROP COLUMN IF EXISTS current_tier_id`); err != nil {
			return err
		}
		models := []any{
			(*rankingdb.RewardHistory)(nil),
			(*rankingdb.TierChangeHistory)(nil),
			(*rankingdb.WeeklySnapshot)(nil),
			(*rankingdb.GroupMember)(nil),
			(*rankingdb.Group)(nil),
			(*rankingdb.WeeklyXP)(nil),
			(*rankingdb.Week)(nil),
			(*rankingdb.RewardRule)(nil),
			(*rankingdb.TierRule)(nil),
			(*rankingdb.Tier)(nil),
		}
		for _, m := range models {
			if _, err := db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx); err != nil {
				return err
			}
		}

		fmt.Println("Ranking tables dropped successfully!")
		return nil
	})
}
