package rankingdomain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTransition(t *testing.T) {
	l := testLadder(t)
	id := func(v int64) *int64 { return &v }

	tests := []struct {
		name    string
		from    int64
		status  Status
		want    *int64
		reason  ChangeReason
		anomaly Anomaly
		moved   bool
	}{
		{name: "promote one rung", from: 3, status: StatusPromoted, want: id(4), reason: ReasonPromotion, moved: true},
		{name: "demote one rung", from: 3, status: StatusDemoted, want: id(2), reason: ReasonDemotion, moved: true},
		{name: "maintain", from: 3, status: StatusMaintained, want: id(3), reason: ReasonMaintain},
		{name: "promotion at the top is a no-op", from: 6, status: StatusPromoted, want: id(6), reason: ReasonMaintain, anomaly: AnomalyPromotedAtTop},
		{name: "demotion at the bottom is a no-op", from: 1, status: StatusDemoted, want: id(1), reason: ReasonMaintain, anomaly: AnomalyDemotedAtBottom},
		{name: "unknown tier", from: 99, status: StatusPromoted, want: nil, reason: ReasonMaintain, anomaly: AnomalyUnknownTier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTransition(l, 500, tt.from, tt.status)
			assert.Equal(t, int64(500), got.UserID)
			assert.Equal(t, tt.from, got.FromTierID)
			assert.Equal(t, tt.want, got.ToTierID)
			assert.Equal(t, tt.reason, got.Reason)
			assert.Equal(t, tt.anomaly, got.Anomaly)
			assert.Equal(t, tt.moved, got.Moved())
		})
	}
}

func TestRewardPolicy(t *testing.T) {
	policy := NewRewardPolicy([]RewardRule{
		{TierID: 1, Status: StatusPromoted, RewardType: RewardDiamond, Amount: decimal.NewFromInt(10)},
		{TierID: 3, Status: StatusPromoted, RewardType: RewardDiamond, Amount: decimal.RequireFromString("30.50")},
		{TierID: 4, Status: StatusPromoted, RewardType: RewardDiamond, Amount: decimal.Zero},
	})

	grants := policy.GrantsFor(77, 3, StatusPromoted)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(77), grants[0].UserID)
	assert.Equal(t, RewardDiamond, grants[0].RewardType)
	assert.True(t, grants[0].Amount.Equal(decimal.RequireFromString("30.5")))

	assert.Empty(t, policy.GrantsFor(77, 3, StatusMaintained))
	assert.Empty(t, policy.GrantsFor(77, 2, StatusPromoted))
	assert.Empty(t, policy.GrantsFor(77, 4, StatusPromoted))
}

func TestRewardRuleValidate(t *testing.T) {
	ok := RewardRule{TierID: 1, Status: StatusPromoted, RewardType: RewardDiamond, Amount: decimal.NewFromInt(5)}
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Amount = decimal.NewFromInt(-1)
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidReward))

	bad = ok
	bad.Status = "WINNER"
	assert.True(t, errors.Is(bad.Validate(), ErrInvalidReward))
}

func TestCheckTierProgress(t *testing.T) {
	done, err := CheckTierProgress(1, 2, TierProgress{Participants: 12, Snapshots: 0})
	require.NoError(t, err)
	assert.False(t, done)

	done, err = CheckTierProgress(1, 2, TierProgress{Participants: 12, Snapshots: 12})
	require.NoError(t, err)
	assert.True(t, done)

	done, err = CheckTierProgress(1, 2, TierProgress{})
	require.NoError(t, err)
	assert.True(t, done, "a tier without participants has nothing to do")

	_, err = CheckTierProgress(1, 2, TierProgress{Participants: 12, Snapshots: 5})
	var integrity *DataIntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.True(t, IsFatal(err))
}

func TestPartialEvaluationError(t *testing.T) {
	cause := errors.New("serialization failure")
	err := &PartialEvaluationError{
		WeekID:    4,
		Completed: []TierName{TierBronze},
		Failed:    []TierFailure{{TierID: 3, TierName: TierGold, Err: cause}},
	}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []int64{3}, err.IncompleteTierIDs())
	assert.Contains(t, err.Error(), "GOLD")
	assert.False(t, IsFatal(err))
}
