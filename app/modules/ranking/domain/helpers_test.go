package rankingdomain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func ratio(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptrTime(t time.Time) *time.Time { return &t }

// testLadder builds the standard six rung ladder with ids 1..6 from BRONZE up.
func testLadder(t *testing.T) *Ladder {
	t.Helper()
	tiers := make([]Tier, 0, len(DefaultTierNames))
	for i, name := range DefaultTierNames {
		tiers = append(tiers, Tier{
			ID:           int64(i + 1),
			Name:         name,
			OrderIndex:   i,
			MaxGroupSize: DefaultMaxGroupSize,
			Rule: TierRule{
				PromoteRatio: ratio("0.2"),
				DemoteRatio:  ratio("0.2"),
				IsMaster:     name == TierMaster,
			},
		})
	}
	l, err := NewLadder(tiers)
	if err != nil {
		t.Fatalf("NewLadder: %v", err)
	}
	return l
}

// descendingXP returns n participants with xp n*step, (n-1)*step, ... step
// and user ids 1..n.
func descendingXP(n int, step int64) []Participant {
	out := make([]Participant, n)
	base := time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		out[i] = Participant{
			UserID:        int64(i + 1),
			XP:            int64(n-i) * step,
			FirstSolvedAt: ptrTime(base.Add(time.Duration(i) * time.Minute)),
		}
	}
	return out
}
