package rankingreport

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

func sampleReport() *rankingservice.WeekReport {
	cut := int64(50)
	zero := int64(0)
	start := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	return &rankingservice.WeekReport{
		Week: rankingservice.WeekView{ID: 1, Key: "2026-41", StartsAt: start, EndsAt: start.AddDate(0, 0, 7), Status: rankingdomain.WeekEvaluated},
		Tiers: []rankingservice.TierReport{
			{Tier: rankingservice.TierView{ID: 1, Name: rankingdomain.TierBronze}},
			{
				Tier:        rankingservice.TierView{ID: 3, Name: rankingdomain.TierGold},
				Promoted:    1,
				Maintained:  1,
				Demoted:     1,
				RewardTotal: decimal.NewFromInt(30),
				Rows: []rankingservice.ReportRow{
					{GroupID: 9, Rank: 1, UserID: 101, XP: 50, Status: rankingdomain.StatusPromoted, PromoteCutXP: &cut, DemoteCutXP: &zero, Reward: decimal.NewFromInt(30)},
					{GroupID: 9, Rank: 2, UserID: 102, XP: 40, Status: rankingdomain.StatusMaintained, PromoteCutXP: &cut, DemoteCutXP: &zero},
					{GroupID: 9, Rank: 3, UserID: 105, XP: 0, Status: rankingdomain.StatusDemoted, PromoteCutXP: &cut, DemoteCutXP: &zero},
				},
			},
		},
	}
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteWorkbook(&buf, sampleReport()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "GOLD"}, f.GetSheetList(), "tiers without rows get no sheet")

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Contains(t, summary[0][0], "2026-41")
	assert.Equal(t, []string{"Tier", "Participants", "Promoted", "Maintained", "Demoted", "Rewards"}, summary[2])
	assert.Equal(t, []string{"BRONZE", "0", "0", "0", "0", "0"}, summary[3])
	assert.Equal(t, []string{"GOLD", "3", "1", "1", "1", "30"}, summary[4])

	pics, err := f.GetPictures("Summary", "A8")
	require.NoError(t, err)
	assert.Len(t, pics, 1)

	gold, err := f.GetRows("GOLD")
	require.NoError(t, err)
	require.Len(t, gold, 4)
	assert.Equal(t, []string{"9", "1", "101", "50", "PROMOTED", "50", "0", "30"}, gold[1])
	assert.Equal(t, "DEMOTED", gold[3][4])
}

func TestStatusChart(t *testing.T) {
	png, err := StatusChart(sampleReport())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	empty, err := StatusChart(&rankingservice.WeekReport{Week: rankingservice.WeekView{Key: "2026-41"}})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(empty, []byte("\x89PNG")))
}
