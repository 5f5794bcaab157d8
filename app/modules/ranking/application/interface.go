package rankingservice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

// Service defines the contract for the weekly ranking engine.
type Service interface {
	// --- Week lifecycle ---

	// LockWeek moves an OPEN week to LOCKED.
	LockWeek(ctx context.Context, weekID int64) (*WeekView, error)

	// MarkWeekEvaluated moves a LOCKED week to EVALUATED once every tier's
	// snapshot set is complete.
	MarkWeekEvaluated(ctx context.Context, weekID int64) (*WeekView, error)

	// ArchiveWeek moves an EVALUATED week to ARCHIVED after the retention window.
	ArchiveWeek(ctx context.Context, weekID int64) (*WeekView, error)

	// ArchiveExpiredWeeks archives every EVALUATED week whose retention elapsed.
	ArchiveExpiredWeeks(ctx context.Context) ([]WeekView, error)

	// OpenNextWeek creates the OPEN week that follows previousWeekID and seeds
	// a zero WeeklyXp row for every tiered user.
	OpenNextWeek(ctx context.Context, previousWeekID int64) (*WeekView, error)

	// BootstrapWeek creates the first week when none exists.
	BootstrapWeek(ctx context.Context, startsAt time.Time) (*WeekView, error)

	// EnrollUntieredUsers puts users without a tier on the lowest rung and
	// seeds them into the OPEN week.
	EnrollUntieredUsers(ctx context.Context) (int64, error)

	// --- Evaluation ---

	// EvaluateWeek locks (or resumes) a week, evaluates every tier, marks the
	// week EVALUATED and opens the next one.
	EvaluateWeek(ctx context.Context, weekID int64) (*EvaluationReport, error)

	// EvaluateDueWeek evaluates whichever week is due: a LOCKED week left by an
	// interrupted run, or the OPEN week once it has ended.
	EvaluateDueWeek(ctx context.Context) (*EvaluationReport, error)

	// EvaluateTier evaluates one tier of a LOCKED week.
	EvaluateTier(ctx context.Context, weekID int64, tierName rankingdomain.TierName) (*TierOutcome, error)

	// --- Reads ---

	GetLadder(ctx context.Context) ([]TierView, error)
	GetWeek(ctx context.Context, weekKey string) (*WeekView, error)
	GetCurrentWeek(ctx context.Context) (*WeekView, error)
	GetGroupLeaderboard(ctx context.Context, weekID, userID int64) (*GroupLeaderboard, error)
	GetUserSnapshots(ctx context.Context, userID int64, limit int) ([]SnapshotView, error)
	GetTierHistory(ctx context.Context, userID int64, limit int) ([]TierChangeView, error)
	GetRewardHistory(ctx context.Context, userID int64, limit int) ([]RewardView, error)
	GetWeekReport(ctx context.Context, weekID int64) (*WeekReport, error)

	// --- Admin ---

	UpdateTierRule(ctx context.Context, update TierRuleUpdate) (*TierView, error)
	UpdateTierCapacity(ctx context.Context, tierName rankingdomain.TierName, maxGroupSize int) (*TierView, error)
	SetRewardRule(ctx context.Context, rule rankingdomain.RewardRule) error
}

var _ Service = (*RankingService)(nil)

// WeekView is the read model of a week.
type WeekView struct {
	ID          int64
	Key         string
	StartsAt    time.Time
	EndsAt      time.Time
	Status      rankingdomain.WeekStatus
	EvaluatedAt *time.Time
}

// TierView is the read model of a tier with its rule.
type TierView struct {
	ID           int64
	Name         rankingdomain.TierName
	OrderIndex   int
	MaxGroupSize int
	Rule         rankingdomain.TierRule
}

// TierOutcome summarizes what one tier transaction wrote.
type TierOutcome struct {
	TierID       int64
	TierName     rankingdomain.TierName
	Skipped      bool
	Participants int
	Groups       int
	Promoted     int
	Maintained   int
	Demoted      int
	Transitions  []rankingdomain.Transition
	Grants       []rankingdomain.RewardGrant
}

// EvaluationReport is the result of one run over a week.
type EvaluationReport struct {
	RunID    uuid.UUID
	Week     WeekView
	Resumed  bool
	Tiers    []TierOutcome
	NextWeek *WeekView
}

// Zone is where a leaderboard entry sits relative to the cutoffs.
type Zone string

const (
	ZonePromotion Zone = "PROMOTION"
	ZoneMaintain  Zone = "MAINTAIN"
	ZoneDemotion  Zone = "DEMOTION"
)

func zoneOf(status rankingdomain.Status) Zone {
	switch status {
	case rankingdomain.StatusPromoted:
		return ZonePromotion
	case rankingdomain.StatusDemoted:
		return ZoneDemotion
	default:
		return ZoneMaintain
	}
}

type LeaderboardEntry struct {
	UserID int64
	Rank   int
	XP     int64
	Status rankingdomain.Status
	Zone   Zone
}

// GroupLeaderboard is a user's group for a week. Final is false while the
// week is still OPEN and the statuses are a projection.
type GroupLeaderboard struct {
	Week         WeekView
	TierID       int64
	TierName     rankingdomain.TierName
	GroupID      int64
	Final        bool
	PromoteCutXP *int64
	DemoteCutXP  *int64
	Entries      []LeaderboardEntry
}

type SnapshotView struct {
	WeekID       int64
	TierID       int64
	GroupID      int64
	Rank         int
	XP           int64
	Status       rankingdomain.Status
	PromoteCutXP *int64
	DemoteCutXP  *int64
	CreatedAt    time.Time
}

type TierChangeView struct {
	WeekID     int64
	FromTierID *int64
	ToTierID   *int64
	Reason     rankingdomain.ChangeReason
	CreatedAt  time.Time
}

type RewardView struct {
	WeekID     int64
	TierID     int64
	RewardType rankingdomain.RewardType
	Amount     decimal.Decimal
	CreatedAt  time.Time
}

// WeekReport is the full evaluated week, used by the spreadsheet export.
type WeekReport struct {
	Week  WeekView
	Tiers []TierReport
}

type TierReport struct {
	Tier        TierView
	Rows        []ReportRow
	Promoted    int
	Maintained  int
	Demoted     int
	RewardTotal decimal.Decimal
}

type ReportRow struct {
	UserID       int64
	GroupID      int64
	Rank         int
	XP           int64
	Status       rankingdomain.Status
	PromoteCutXP *int64
	DemoteCutXP  *int64
	Reward       decimal.Decimal
}

// TierRuleUpdate replaces the rule of the named tier.
type TierRuleUpdate struct {
	TierName     rankingdomain.TierName
	PromoteMinXP int64
	DemoteMinXP  int64
	PromoteRatio decimal.Decimal
	DemoteRatio  decimal.Decimal
	IsMaster     bool
}
