package rankingdomain

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// TierName is the display name of a rung on the ladder.
type TierName string

const (
	TierBronze   TierName = "BRONZE"
	TierSilver   TierName = "SILVER"
	TierGold     TierName = "GOLD"
	TierSapphire TierName = "SAPPHIRE"
	TierRuby     TierName = "RUBY"
	TierMaster   TierName = "MASTER"

	DefaultMaxGroupSize = 10
)

// DefaultTierNames lists the standard ladder from the bottom rung up.
var DefaultTierNames = []TierName{TierBronze, TierSilver, TierGold, TierSapphire, TierRuby, TierMaster}

// TierRule holds the promotion and demotion policy of a tier.
type TierRule struct {
	PromoteMinXP int64
	DemoteMinXP  int64
	PromoteRatio decimal.Decimal
	DemoteRatio  decimal.Decimal
	IsMaster     bool
}

// Validate checks that ratios are within [0,1] and floors are not negative.
func (r TierRule) Validate() error {
	one := decimal.NewFromInt(1)
	if r.PromoteRatio.IsNegative() || r.PromoteRatio.GreaterThan(one) {
		return fmt.Errorf("%w: promote ratio %s outside [0,1]", ErrInvalidRule, r.PromoteRatio)
	}
	if r.DemoteRatio.IsNegative() || r.DemoteRatio.GreaterThan(one) {
		return fmt.Errorf("%w: demote ratio %s outside [0,1]", ErrInvalidRule, r.DemoteRatio)
	}
	if r.PromoteMinXP < 0 || r.DemoteMinXP < 0 {
		return fmt.Errorf("%w: xp floors must not be negative", ErrInvalidRule)
	}
	return nil
}

// Tier is a rung of the ladder together with its rule.
type Tier struct {
	ID           int64
	Name         TierName
	OrderIndex   int
	MaxGroupSize int
	Rule         TierRule
}

// Ladder is the ordered set of tiers loaded for one evaluation run.
type Ladder struct {
	tiers []Tier
	index map[int64]int
}

// NewLadder orders the tiers by OrderIndex and validates the ladder shape.
// Only the top rung may be flagged as master.
func NewLadder(tiers []Tier) (*Ladder, error) {
	if len(tiers) == 0 {
		return nil, ErrEmptyLadder
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OrderIndex < sorted[j].OrderIndex })

	index := make(map[int64]int, len(sorted))
	names := make(map[TierName]struct{}, len(sorted))
	for i, t := range sorted {
		if i > 0 && sorted[i-1].OrderIndex == t.OrderIndex {
			return nil, fmt.Errorf("%w: duplicate order index %d", ErrInvalidLadder, t.OrderIndex)
		}
		if _, dup := index[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tier id %d", ErrInvalidLadder, t.ID)
		}
		if _, dup := names[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tier name %s", ErrInvalidLadder, t.Name)
		}
		if t.MaxGroupSize <= 0 {
			return nil, fmt.Errorf("%w: tier %s has max group size %d", ErrInvalidLadder, t.Name, t.MaxGroupSize)
		}
		if t.Rule.IsMaster && i != len(sorted)-1 {
			return nil, fmt.Errorf("%w: master tier %s is not the top rung", ErrInvalidLadder, t.Name)
		}
		if err := t.Rule.Validate(); err != nil {
			return nil, fmt.Errorf("tier %s: %w", t.Name, err)
		}
		index[t.ID] = i
		names[t.Name] = struct{}{}
	}

	return &Ladder{tiers: sorted, index: index}, nil
}

// Tiers returns the tiers from the lowest rung to the highest.
func (l *Ladder) Tiers() []Tier {
	out := make([]Tier, len(l.tiers))
	copy(out, l.tiers)
	return out
}

func (l *Ladder) Len() int { return len(l.tiers) }

// ByID looks up a tier.
func (l *Ladder) ByID(id int64) (Tier, bool) {
	i, ok := l.index[id]
	if !ok {
		return Tier{}, false
	}
	return l.tiers[i], true
}

// ByName looks up a tier by name.
func (l *Ladder) ByName(name TierName) (Tier, bool) {
	for _, t := range l.tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// Above returns the next-higher rung.
func (l *Ladder) Above(id int64) (Tier, bool) {
	i, ok := l.index[id]
	if !ok || i == len(l.tiers)-1 {
		return Tier{}, false
	}
	return l.tiers[i+1], true
}

// Below returns the next-lower rung.
func (l *Ladder) Below(id int64) (Tier, bool) {
	i, ok := l.index[id]
	if !ok || i == 0 {
		return Tier{}, false
	}
	return l.tiers[i-1], true
}

func (l *Ladder) Lowest() Tier { return l.tiers[0] }

func (l *Ladder) IsLowest(id int64) bool {
	i, ok := l.index[id]
	return ok && i == 0
}

// Position describes where a tier sits for the cutoff calculator.
func (l *Ladder) Position(id int64) GroupPosition {
	t, _ := l.ByID(id)
	return GroupPosition{
		NoPromotion: t.Rule.IsMaster,
		NoDemotion:  l.IsLowest(id),
	}
}
