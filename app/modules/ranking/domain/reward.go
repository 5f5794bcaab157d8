package rankingdomain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RewardType identifies the currency of a grant.
type RewardType string

const RewardDiamond RewardType = "DIAMOND"

// RewardRule is one row of reward configuration.
type RewardRule struct {
	TierID     int64
	Status     Status
	RewardType RewardType
	Amount     decimal.Decimal
}

func (r RewardRule) Validate() error {
	switch r.Status {
	case StatusPromoted, StatusMaintained, StatusDemoted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidReward, r.Status)
	}
	if r.RewardType == "" {
		return fmt.Errorf("%w: reward type is required", ErrInvalidReward)
	}
	if r.Amount.IsNegative() {
		return fmt.Errorf("%w: amount %s is negative", ErrInvalidReward, r.Amount)
	}
	return nil
}

// RewardGrant is a reward owed to one user for one week.
type RewardGrant struct {
	UserID     int64
	TierID     int64
	RewardType RewardType
	Amount     decimal.Decimal
}

type rewardKey struct {
	tierID int64
	status Status
}

// RewardPolicy resolves grants from rule rows loaded for a run.
type RewardPolicy struct {
	rules map[rewardKey][]RewardRule
}

func NewRewardPolicy(rules []RewardRule) RewardPolicy {
	p := RewardPolicy{rules: make(map[rewardKey][]RewardRule, len(rules))}
	for _, r := range rules {
		k := rewardKey{tierID: r.TierID, status: r.Status}
		p.rules[k] = append(p.rules[k], r)
	}
	return p
}

// GrantsFor returns the grants for a member who finished with status in the
// tier they competed in. Zero amounts grant nothing.
func (p RewardPolicy) GrantsFor(userID, tierID int64, status Status) []RewardGrant {
	rules := p.rules[rewardKey{tierID: tierID, status: status}]
	if len(rules) == 0 {
		return nil
	}
	grants := make([]RewardGrant, 0, len(rules))
	for _, r := range rules {
		if !r.Amount.IsPositive() {
			continue
		}
		grants = append(grants, RewardGrant{
			UserID:     userID,
			TierID:     tierID,
			RewardType: r.RewardType,
			Amount:     r.Amount,
		})
	}
	return grants
}
