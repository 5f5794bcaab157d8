package rankingdomain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the weekly outcome of one member.
type Status string

const (
	StatusPromoted   Status = "PROMOTED"
	StatusMaintained Status = "MAINTAINED"
	StatusDemoted    Status = "DEMOTED"
)

// Participant is a member's weekly standing as read from WeeklyXp.
type Participant struct {
	UserID        int64
	XP            int64
	SolvedCount   int
	FirstSolvedAt *time.Time
	LastSolvedAt  *time.Time
}

// RankedMember is a participant with its rank and classification.
type RankedMember struct {
	Participant
	Rank   int
	Status Status
}

// GroupPosition tells the calculator which edges of the ladder apply.
type GroupPosition struct {
	NoPromotion bool
	NoDemotion  bool
}

// GroupResult is the classified group. Cut values are nil when nobody moved.
type GroupResult struct {
	Members      []RankedMember
	PromoteCutXP *int64
	DemoteCutXP  *int64
}

// Counts returns the number of members per status.
func (g GroupResult) Counts() (promoted, maintained, demoted int) {
	for _, m := range g.Members {
		switch m.Status {
		case StatusPromoted:
			promoted++
		case StatusDemoted:
			demoted++
		default:
			maintained++
		}
	}
	return promoted, maintained, demoted
}

// less orders by xp desc, then earliest first solve, then user id. A member
// that never solved anything sorts after one that did.
func less(a, b Participant) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	switch {
	case a.FirstSolvedAt != nil && b.FirstSolvedAt == nil:
		return true
	case a.FirstSolvedAt == nil && b.FirstSolvedAt != nil:
		return false
	case a.FirstSolvedAt != nil && b.FirstSolvedAt != nil && !a.FirstSolvedAt.Equal(*b.FirstSolvedAt):
		return a.FirstSolvedAt.Before(*b.FirstSolvedAt)
	}
	return a.UserID < b.UserID
}

// RankMembers returns the participants in rank order with 1-based ranks and
// every status set to MAINTAINED.
func RankMembers(participants []Participant) []RankedMember {
	sorted := make([]Participant, len(participants))
	copy(sorted, participants)
	sort.SliceStable(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	out := make([]RankedMember, len(sorted))
	for i, p := range sorted {
		out[i] = RankedMember{Participant: p, Rank: i + 1, Status: StatusMaintained}
	}
	return out
}

// BandSize is floor(n * ratio).
func BandSize(n int, ratio decimal.Decimal) int {
	if n <= 0 || !ratio.IsPositive() {
		return 0
	}
	return int(decimal.NewFromInt(int64(n)).Mul(ratio).Floor().IntPart())
}

// ClassifyGroup ranks a group and decides who is promoted, maintained or
// demoted. The ratio picks the candidate band by rank and the xp floors then
// filter the band. The demotion band is taken only from members below the
// promotion band.
func ClassifyGroup(participants []Participant, rule TierRule, pos GroupPosition) GroupResult {
	members := RankMembers(participants)
	n := len(members)
	result := GroupResult{Members: members}
	if n <= 1 {
		return result
	}

	promoteSlots := 0
	if !pos.NoPromotion && !rule.IsMaster {
		promoteSlots = BandSize(n, rule.PromoteRatio)
	}
	demoteSlots := 0
	if !pos.NoDemotion {
		demoteSlots = BandSize(n, rule.DemoteRatio)
	}
	if demoteSlots > n-promoteSlots {
		demoteSlots = n - promoteSlots
	}

	for i := 0; i < promoteSlots; i++ {
		if members[i].XP < rule.PromoteMinXP {
			continue
		}
		members[i].Status = StatusPromoted
		xp := members[i].XP
		result.PromoteCutXP = &xp
	}

	for i := n - demoteSlots; i < n; i++ {
		if members[i].XP > rule.DemoteMinXP {
			continue
		}
		members[i].Status = StatusDemoted
		if result.DemoteCutXP == nil {
			xp := members[i].XP
			result.DemoteCutXP = &xp
		}
	}

	return result
}
