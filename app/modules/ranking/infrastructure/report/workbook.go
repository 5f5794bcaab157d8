package rankingreport

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
)

const summarySheet = "Summary"

var (
	summaryHeader = []any{"Tier", "Participants", "Promoted", "Maintained", "Demoted", "Rewards"}
	tierHeader    = []any{"Group", "Rank", "User", "XP", "Status", "Promote cut", "Demote cut", "Reward"}
)

// WriteWorkbook writes the week as xlsx: a summary sheet with the status
// chart, then one sheet per tier that had participants.
func WriteWorkbook(w io.Writer, report *rankingservice.WeekReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeSummary(f, report, bold); err != nil {
		return err
	}
	for _, tr := range report.Tiers {
		if len(tr.Rows) == 0 {
			continue
		}
		if err := writeTier(f, tr, bold); err != nil {
			return fmt.Errorf("tier %s: %w", tr.Tier.Name, err)
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, report *rankingservice.WeekReport, headerStyle int) error {
	title := fmt.Sprintf("Week %s (%s to %s) %s",
		report.Week.Key,
		report.Week.StartsAt.Format("2006-01-02"),
		report.Week.EndsAt.Format("2006-01-02"),
		report.Week.Status,
	)
	if err := f.SetCellValue(summarySheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetSheetRow(summarySheet, "A3", &summaryHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(summarySheet, 3, 3, headerStyle); err != nil {
		return err
	}

	row := 4
	for _, tr := range report.Tiers {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := []any{string(tr.Tier.Name), len(tr.Rows), tr.Promoted, tr.Maintained, tr.Demoted, tr.RewardTotal.String()}
		if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
			return err
		}
		row++
	}

	png, err := StatusChart(report)
	if err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	anchor, err := excelize.CoordinatesToCellName(1, row+2)
	if err != nil {
		return err
	}
	return f.AddPictureFromBytes(summarySheet, anchor, &excelize.Picture{
		Extension: ".png",
		File:      png,
		Format:    &excelize.GraphicOptions{AltText: "Status counts per tier"},
	})
}

func writeTier(f *excelize.File, tr rankingservice.TierReport, headerStyle int) error {
	sheet := string(tr.Tier.Name)
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, "A1", &tierHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, r := range tr.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{r.GroupID, r.Rank, r.UserID, r.XP, string(r.Status), cutOrBlank(r.PromoteCutXP), cutOrBlank(r.DemoteCutXP), r.Reward.String()}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func cutOrBlank(cut *int64) any {
	if cut == nil {
		return ""
	}
	return *cut
}
