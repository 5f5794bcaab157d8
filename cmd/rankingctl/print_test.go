package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

func TestPrintBoard(t *testing.T) {
	promote, demote := int64(50), int64(10)
	board := &rankingservice.GroupLeaderboard{
		Week:         rankingservice.WeekView{Key: "2026-41"},
		TierName:     rankingdomain.TierGold,
		PromoteCutXP: &promote,
		DemoteCutXP:  &demote,
		Entries: []rankingservice.LeaderboardEntry{
			{UserID: 1, Rank: 1, XP: 80, Zone: rankingservice.ZonePromotion},
			{UserID: 2, Rank: 2, XP: 20, Zone: rankingservice.ZoneMaintain},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printBoard(&buf, board, 2))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "projected week 2026-41, GOLD, promote at 50 xp, demote below 10 xp", lines[0])
	assert.Contains(t, lines[2], "PROMOTION")
	assert.True(t, strings.HasSuffix(lines[3], "<"))
}

func TestPrintLadder(t *testing.T) {
	var buf bytes.Buffer
	err := printLadder(&buf, []rankingservice.TierView{{
		ID: 1, Name: rankingdomain.TierBronze, OrderIndex: 1, MaxGroupSize: 10,
		Rule: rankingdomain.TierRule{PromoteRatio: decimal.RequireFromString("0.2"), PromoteMinXP: 10},
	}})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "BRONZE")
	assert.Contains(t, buf.String(), "0.2")
}

func TestTierName(t *testing.T) {
	assert.Equal(t, rankingdomain.TierSapphire, tierName(" sapphire "))
}

func TestNewApp(t *testing.T) {
	app := newApp(&bytes.Buffer{})
	var names []string
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"migrate", "weeks", "tiers", "users", "jobs", "export"}, names)
}
