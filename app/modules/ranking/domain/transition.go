package rankingdomain

// ChangeReason is the audit reason recorded in TierChangeHistory.
type ChangeReason string

const (
	ReasonPromotion ChangeReason = "PROMOTION"
	ReasonDemotion  ChangeReason = "DEMOTION"
	ReasonMaintain  ChangeReason = "MAINTAIN"
)

// Anomaly marks a status that could not be applied at a ladder edge.
type Anomaly string

const (
	AnomalyNone            Anomaly = ""
	AnomalyPromotedAtTop   Anomaly = "promoted_at_top"
	AnomalyDemotedAtBottom Anomaly = "demoted_at_bottom"
	AnomalyUnknownTier     Anomaly = "unknown_tier"
)

// Transition is the tier move decided for one user.
type Transition struct {
	UserID     int64
	FromTierID int64
	ToTierID   *int64
	Reason     ChangeReason
	Anomaly    Anomaly
}

// Moved reports whether the user's tier pointer changes.
func (t Transition) Moved() bool {
	return t.ToTierID != nil && *t.ToTierID != t.FromTierID
}

// ResolveTransition maps a status onto the ladder. Moves are at most one
// rung. A status that would leave the ladder is applied as a no-op and
// flagged.
func ResolveTransition(l *Ladder, userID, fromTierID int64, status Status) Transition {
	t := Transition{UserID: userID, FromTierID: fromTierID, Reason: ReasonMaintain}
	if _, ok := l.ByID(fromTierID); !ok {
		t.Anomaly = AnomalyUnknownTier
		return t
	}

	stay := fromTierID
	switch status {
	case StatusPromoted:
		if next, ok := l.Above(fromTierID); ok {
			id := next.ID
			t.ToTierID = &id
			t.Reason = ReasonPromotion
			return t
		}
		t.Anomaly = AnomalyPromotedAtTop
	case StatusDemoted:
		if prev, ok := l.Below(fromTierID); ok {
			id := prev.ID
			t.ToTierID = &id
			t.Reason = ReasonDemotion
			return t
		}
		t.Anomaly = AnomalyDemotedAtBottom
	}
	t.ToTierID = &stay
	return t
}
