package absorb

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/gutlab/nutriome/internal/models"
)

// RenderScoreChart renders a PNG bar chart of the six nutrient
// bioavailability scores. Returns raw PNG bytes.
func RenderScoreChart(title string, scores models.NutrientScores) ([]byte, error) {
	bars := make([]chart.Value, 0, len(scores))
	for _, nutrient := range models.Nutrients() {
		bars = append(bars, chart.Value{
			Label: nutrientLabel(nutrient),
			Value: scores[nutrient],
			Style: chart.Style{
				FillColor:   scoreColor(scores[nutrient]),
				StrokeColor: scoreColor(scores[nutrient]),
			},
		})
	}

	graph := chart.BarChart{
		Title:    title,
		Width:    760,
		Height:   420,
		BarWidth: 80,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 1},
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.2f", f)
				}
				return ""
			},
		},
		Bars: bars,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

// scoreColor shades bars from red (low) through amber to green (high).
func scoreColor(score float64) drawing.Color {
	switch {
	case score >= 0.66:
		return drawing.ColorFromHex("16a34a") // green-600
	case score >= 0.33:
		return drawing.ColorFromHex("d97706") // amber-600
	default:
		return drawing.ColorFromHex("dc2626") // red-600
	}
}

func nutrientLabel(n models.Nutrient) string {
	if n == models.NutrientVitaminB12 {
		return "Vitamin B12"
	}
	s := string(n)
	return strings.ToUpper(s[:1]) + s[1:]
}
