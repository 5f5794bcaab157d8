package rankingdomain

import "fmt"

// TierProgress is what is persisted for one (week, tier) when a run starts.
type TierProgress struct {
	Participants int
	Snapshots    int
}

// CheckTierProgress is the idempotency pre-check for a tier. It returns
// done=true when the snapshot set is complete and the tier must be skipped.
// A partial snapshot set cannot come from a committed tier transaction, so it
// is reported as an integrity fault.
func CheckTierProgress(weekID, tierID int64, p TierProgress) (done bool, err error) {
	switch {
	case p.Snapshots == 0:
		return p.Participants == 0, nil
	case p.Snapshots == p.Participants:
		return true, nil
	default:
		return false, &DataIntegrityError{
			WeekID: weekID,
			TierID: tierID,
			Reason: fmt.Sprintf("partial snapshot set: %d of %d participants", p.Snapshots, p.Participants),
		}
	}
}
