//go:build integration

package rankingintegrationtests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	"github.com/pcwadarong/web21-funda-sub001/integration_tests/testutils"
)

// scenario is a bootstrapped week 2026-41 with users on two tiers and random
// XP, observed from a clock one day after the week ended.
type scenario struct {
	ctx     context.Context
	svc     *rankingservice.RankingService
	clock   *testutils.Clock
	week    *rankingservice.WeekView
	xp      map[int64]int64
	bronze  int64
	gold    int64
	players int
}

func newScenario(t *testing.T, events rankingservice.EventPublisher) *scenario {
	t.Helper()
	testEnv.ResetDatabase(t)
	ctx := testEnv.Ctx
	seoul := testutils.Seoul(t)

	clock := testutils.NewClock(time.Date(2026, 10, 13, 9, 0, 0, 0, seoul))
	svc := testEnv.NewService(t, clock, events)
	gen := testutils.NewTestDataGenerator(41)

	bronze := testutils.TierID(t, ctx, testEnv.DB, "BRONZE")
	gold := testutils.TierID(t, ctx, testEnv.DB, "GOLD")
	gen.InsertUsers(t, ctx, testEnv.DB, 25, bronze)
	gen.InsertUsers(t, ctx, testEnv.DB, 12, gold)

	week, err := svc.BootstrapWeek(ctx, time.Date(2026, 10, 7, 12, 0, 0, 0, seoul))
	require.NoError(t, err)
	require.Equal(t, "2026-41", week.Key)

	gen.InsertUsers(t, ctx, testEnv.DB, 3, 0)
	enrolled, err := svc.EnrollUntieredUsers(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), enrolled)

	return &scenario{
		ctx:     ctx,
		svc:     svc,
		clock:   clock,
		week:    week,
		xp:      gen.RandomizeXP(t, ctx, testEnv.DB, week.ID, 100),
		bronze:  bronze,
		gold:    gold,
		players: 40,
	}
}
