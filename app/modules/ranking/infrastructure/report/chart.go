package rankingreport

import (
	"bytes"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
)

var (
	promotedColor   = drawing.ColorFromHex("2e7d32")
	maintainedColor = drawing.ColorFromHex("9e9e9e")
	demotedColor    = drawing.ColorFromHex("c62828")
)

// StatusChart renders a PNG with one stacked bar per evaluated tier:
// promoted, maintained and demoted counts.
func StatusChart(report *rankingservice.WeekReport) ([]byte, error) {
	bars := make([]chart.StackedBar, 0, len(report.Tiers))
	for _, tr := range report.Tiers {
		var values []chart.Value
		for _, v := range []chart.Value{
			{Label: "Promoted", Value: float64(tr.Promoted), Style: chart.Style{FillColor: promotedColor, StrokeColor: promotedColor}},
			{Label: "Maintained", Value: float64(tr.Maintained), Style: chart.Style{FillColor: maintainedColor, StrokeColor: maintainedColor}},
			{Label: "Demoted", Value: float64(tr.Demoted), Style: chart.Style{FillColor: demotedColor, StrokeColor: demotedColor}},
		} {
			// zero-height segments break the stacked renderer
			if v.Value > 0 {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		bars = append(bars, chart.StackedBar{Name: string(tr.Tier.Name), Values: values})
	}
	if len(bars) == 0 {
		return renderNoData("No tiers were evaluated")
	}

	graph := chart.StackedBarChart{
		Title:      "Week " + report.Week.Key,
		Width:      160 * (len(bars) + 1),
		Height:     480,
		BarSpacing: 40,
		Background: chart.Style{Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20}},
		Bars:       bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderNoData(msg string) ([]byte, error) {
	graph := chart.Chart{
		Width:  400,
		Height: 200,
		Elements: []chart.Renderable{
			func(r chart.Renderer, cb chart.Box, _ chart.Style) {
				r.SetFontColor(drawing.ColorBlack)
				r.SetFontSize(12.0)
				tb := r.MeasureText(msg)
				r.Text(msg, (cb.Width()-tb.Width())/2, (cb.Height()+tb.Height())/2)
			},
		},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
