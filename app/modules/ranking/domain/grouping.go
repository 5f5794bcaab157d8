package rankingdomain

import (
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// GroupOccupancy describes an existing group of a tier.
type GroupOccupancy struct {
	GroupIndex int
	Size       int
}

// Placement assigns one user to a group index.
type Placement struct {
	UserID     int64
	GroupIndex int
}

// GroupPlan is the result of placing a tier's participants.
type GroupPlan struct {
	// NewGroups lists group indexes that do not exist yet.
	NewGroups  []int
	Placements []Placement
}

// GroupCount is ceil(n / capacity).
func GroupCount(n, capacity int) int {
	if n <= 0 || capacity <= 0 {
		return 0
	}
	return (n + capacity - 1) / capacity
}

// groupHash is salted with week and tier so a user does not land with the
// same peers every week.
func groupHash(weekID, tierID, userID int64) uint64 {
	buf := make([]byte, 0, 64)
	buf = strconv.AppendInt(buf, weekID, 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, tierID, 10)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, userID, 10)
	return xxhash.Sum64(buf)
}

// hashOrder returns the distinct user ids sorted by their salted hash.
func hashOrder(weekID, tierID int64, userIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(userIDs))
	ids := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	keys := make(map[int64]uint64, len(ids))
	for _, id := range ids {
		keys[id] = groupHash(weekID, tierID, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		hi, hj := keys[ids[i]], keys[ids[j]]
		if hi != hj {
			return hi < hj
		}
		return ids[i] < ids[j]
	})
	return ids
}

// AssignGroups partitions userIDs into ceil(n/capacity) groups by dealing the
// hash-ordered users round-robin. The result is indexed by group index and
// depends only on (weekID, tierID, set of userIDs).
func AssignGroups(weekID, tierID int64, userIDs []int64, capacity int) [][]int64 {
	plan := PlaceParticipants(weekID, tierID, nil, userIDs, capacity)
	groups := make([][]int64, len(plan.NewGroups))
	for _, p := range plan.Placements {
		groups[p.GroupIndex] = append(groups[p.GroupIndex], p.UserID)
	}
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i] < g[j] })
	}
	return groups
}

// PlaceParticipants places users that have no membership yet. Existing groups
// with free seats are filled first, least occupied first. Whoever is left is
// dealt round-robin into new groups numbered after the highest existing index.
func PlaceParticipants(weekID, tierID int64, existing []GroupOccupancy, unassigned []int64, capacity int) GroupPlan {
	ordered := hashOrder(weekID, tierID, unassigned)
	if len(ordered) == 0 || capacity <= 0 {
		return GroupPlan{}
	}

	occ := make([]GroupOccupancy, len(existing))
	copy(occ, existing)
	sort.Slice(occ, func(i, j int) bool { return occ[i].GroupIndex < occ[j].GroupIndex })

	plan := GroupPlan{Placements: make([]Placement, 0, len(ordered))}
	rest := ordered
	for len(rest) > 0 {
		best := -1
		for i := range occ {
			if occ[i].Size >= capacity {
				continue
			}
			if best == -1 || occ[i].Size < occ[best].Size {
				best = i
			}
		}
		if best == -1 {
			break
		}
		plan.Placements = append(plan.Placements, Placement{UserID: rest[0], GroupIndex: occ[best].GroupIndex})
		occ[best].Size++
		rest = rest[1:]
	}

	if len(rest) == 0 {
		return plan
	}

	next := 0
	if len(occ) > 0 {
		next = occ[len(occ)-1].GroupIndex + 1
	}
	count := GroupCount(len(rest), capacity)
	for i := 0; i < count; i++ {
		plan.NewGroups = append(plan.NewGroups, next+i)
	}
	for i, id := range rest {
		plan.Placements = append(plan.Placements, Placement{UserID: id, GroupIndex: next + i%count})
	}
	return plan
}
