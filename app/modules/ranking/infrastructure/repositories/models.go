package rankingdb

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Tier is a rung of the ladder.
type Tier struct {
	bun.BaseModel `bun:"table:ranking_tiers,alias:t"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Name         string    `bun:"name,notnull,unique"`
	OrderIndex   int       `bun:"order_index,notnull,unique"`
	MaxGroupSize int       `bun:"max_group_size,notnull,default:10"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`

	Rule *TierRule `bun:"rel:has-one,join:id=tier_id"`
}

// TierRule is the 1:1 promotion/demotion policy of a tier.
type TierRule struct {
	bun.BaseModel `bun:"table:ranking_tier_rules,alias:tr"`

	TierID       int64           `bun:"tier_id,pk"`
	PromoteMinXP int64           `bun:"promote_min_xp,notnull,default:0"`
	DemoteMinXP  int64           `bun:"demote_min_xp,notnull,default:0"`
	PromoteRatio decimal.Decimal `bun:"promote_ratio,type:numeric(5,4),notnull"`
	DemoteRatio  decimal.Decimal `bun:"demote_ratio,type:numeric(5,4),notnull"`
	IsMaster     bool            `bun:"is_master,notnull,default:false"`
	UpdatedAt    time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// RewardRule is a configured grant for a (tier, status) pair.
type RewardRule struct {
	bun.BaseModel `bun:"table:ranking_reward_rules,alias:rr"`

	ID         int64           `bun:"id,pk,autoincrement"`
	TierID     int64           `bun:"tier_id,notnull,unique:reward_rules_tier_status_type"`
	Status     string          `bun:"status,notnull,unique:reward_rules_tier_status_type"`
	RewardType string          `bun:"reward_type,notnull,unique:reward_rules_tier_status_type"`
	Amount     decimal.Decimal `bun:"amount,type:numeric(12,2),notnull"`
	UpdatedAt  time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Week is a competitive period.
type Week struct {
	bun.BaseModel `bun:"table:ranking_weeks,alias:w"`

	ID          int64      `bun:"id,pk,autoincrement"`
	WeekKey     string     `bun:"week_key,notnull,unique"`
	StartsAt    time.Time  `bun:"starts_at,notnull"`
	EndsAt      time.Time  `bun:"ends_at,notnull"`
	Status      string     `bun:"status,notnull"`
	LockedAt    *time.Time `bun:"locked_at"`
	EvaluatedAt *time.Time `bun:"evaluated_at"`
	ArchivedAt  *time.Time `bun:"archived_at"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// WeeklyXP is a user's standing for one week, written by the XP accumulator.
// TierID is frozen when the week opens.
type WeeklyXP struct {
	bun.BaseModel `bun:"table:ranking_weekly_xp,alias:wx"`

	ID            int64      `bun:"id,pk,autoincrement"`
	WeekID        int64      `bun:"week_id,notnull,unique:weekly_xp_week_user"`
	UserID        int64      `bun:"user_id,notnull,unique:weekly_xp_week_user"`
	TierID        int64      `bun:"tier_id,notnull"`
	XP            int64      `bun:"xp,notnull,default:0"`
	SolvedCount   int        `bun:"solved_count,notnull,default:0"`
	FirstSolvedAt *time.Time `bun:"first_solved_at"`
	LastSolvedAt  *time.Time `bun:"last_solved_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Group is a capacity-bounded peer group of a tier for one week.
type Group struct {
	bun.BaseModel `bun:"table:ranking_groups,alias:g"`

	ID         int64     `bun:"id,pk,autoincrement"`
	WeekID     int64     `bun:"week_id,notnull,unique:groups_week_tier_index"`
	TierID     int64     `bun:"tier_id,notnull,unique:groups_week_tier_index"`
	GroupIndex int       `bun:"group_index,notnull,unique:groups_week_tier_index"`
	Capacity   int       `bun:"capacity,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// GroupMember places a user in exactly one group per week.
type GroupMember struct {
	bun.BaseModel `bun:"table:ranking_group_members,alias:gm"`

	ID       int64     `bun:"id,pk,autoincrement"`
	WeekID   int64     `bun:"week_id,notnull,unique:group_members_week_user"`
	UserID   int64     `bun:"user_id,notnull,unique:group_members_week_user"`
	GroupID  int64     `bun:"group_id,notnull"`
	TierID   int64     `bun:"tier_id,notnull"`
	JoinedAt time.Time `bun:"joined_at,nullzero,notnull,default:current_timestamp"`
}

// WeeklySnapshot is the immutable ranking result of a user for a week.
type WeeklySnapshot struct {
	bun.BaseModel `bun:"table:ranking_weekly_snapshots,alias:ws"`

	ID           int64     `bun:"id,pk,autoincrement"`
	WeekID       int64     `bun:"week_id,notnull,unique:weekly_snapshots_week_user"`
	UserID       int64     `bun:"user_id,notnull,unique:weekly_snapshots_week_user"`
	TierID       int64     `bun:"tier_id,notnull"`
	GroupID      int64     `bun:"group_id,notnull"`
	Rank         int       `bun:"rank,notnull"`
	XP           int64     `bun:"xp,notnull"`
	Status       string    `bun:"status,notnull"`
	PromoteCutXP *int64    `bun:"promote_cut_xp"`
	DemoteCutXP  *int64    `bun:"demote_cut_xp"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// TierChangeHistory is the audit trail for users.current_tier_id.
type TierChangeHistory struct {
	bun.BaseModel `bun:"table:ranking_tier_change_history,alias:tch"`

	ID         int64     `bun:"id,pk,autoincrement"`
	WeekID     int64     `bun:"week_id,notnull,unique:tier_change_week_user"`
	UserID     int64     `bun:"user_id,notnull,unique:tier_change_week_user"`
	FromTierID *int64    `bun:"from_tier_id"`
	ToTierID   *int64    `bun:"to_tier_id"`
	Reason     string    `bun:"reason,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// RewardHistory records one grant.
type RewardHistory struct {
	bun.BaseModel `bun:"table:ranking_reward_history,alias:rh"`

	ID         int64           `bun:"id,pk,autoincrement"`
	WeekID     int64           `bun:"week_id,notnull,unique:reward_history_week_user_type"`
	UserID     int64           `bun:"user_id,notnull,unique:reward_history_week_user_type"`
	TierID     int64           `bun:"tier_id,notnull"`
	RewardType string          `bun:"reward_type,notnull,unique:reward_history_week_user_type"`
	Amount     decimal.Decimal `bun:"amount,type:numeric(12,2),notnull"`
	CreatedAt  time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// User is the slice of the platform's users table the engine reads and
// writes. current_tier_id is the only column the engine mutates.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            int64  `bun:"id,pk,autoincrement"`
	CurrentTierID *int64 `bun:"current_tier_id"`
}

// RegisterModels registers every ranking model with db.
func RegisterModels(db *bun.DB) {
	db.RegisterModel(
		(*Tier)(nil),
		(*TierRule)(nil),
		(*RewardRule)(nil),
		(*Week)(nil),
		(*WeeklyXP)(nil),
		(*Group)(nil),
		(*GroupMember)(nil),
		(*WeeklySnapshot)(nil),
		(*TierChangeHistory)(nil),
		(*RewardHistory)(nil),
		(*User)(nil),
	)
}
