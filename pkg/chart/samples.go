package chart

import "github.com/agentic-research/scribe/pkg/models"

// SamplePayload returns a deterministic, renderable payload for the
// kind. The executor falls back to it when a model-built payload fails
// validation, so a requested chart always renders something. Titles
// mark the data as illustrative.
func SamplePayload(kind models.ChartKind) Payload {
	quarters := []string{"Q1", "Q2", "Q3", "Q4"}
	switch kind {
	case models.ChartLine, models.ChartArea:
		return Payload{
			Title:      "Illustrative trend",
			Categories: quarters,
			Series: []Series{
				{Name: "Series A", Values: []float64{12, 18, 24, 31}},
				{Name: "Series B", Values: []float64{9, 14, 17, 22}},
			},
		}
	case models.ChartBar:
		return Payload{
			Title:      "Illustrative comparison",
			Categories: []string{"North", "South", "East", "West"},
			Series: []Series{
				{Name: "Current", Values: []float64{42, 28, 35, 19}},
			},
		}
	case models.ChartStackedBar:
		return Payload{
			Title:      "Illustrative composition over time",
			Categories: quarters,
			Series: []Series{
				{Name: "Segment A", Values: []float64{20, 22, 25, 28}},
				{Name: "Segment B", Values: []float64{15, 14, 18, 20}},
				{Name: "Segment C", Values: []float64{8, 11, 12, 15}},
			},
		}
	case models.ChartPie:
		return Payload{
			Title: "Illustrative share",
			Items: []Item{
				{Name: "Category A", Value: 44},
				{Name: "Category B", Value: 31},
				{Name: "Category C", Value: 17},
				{Name: "Other", Value: 8},
			},
		}
	case models.ChartFunnel:
		return Payload{
			Title: "Illustrative funnel",
			Items: []Item{
				{Name: "Aware", Value: 100},
				{Name: "Interested", Value: 62},
				{Name: "Evaluating", Value: 34},
				{Name: "Converted", Value: 12},
			},
		}
	case models.ChartScatter:
		return Payload{
			Title: "Illustrative distribution",
			Points: []Point{
				{X: 1.2, Y: 3.4}, {X: 2.1, Y: 4.8}, {X: 3.3, Y: 4.1},
				{X: 4.0, Y: 6.2}, {X: 5.4, Y: 5.9}, {X: 6.1, Y: 7.5},
			},
		}
	case models.ChartBubble:
		return Payload{
			Title: "Illustrative positioning",
			Points: []Point{
				{X: 2, Y: 7, Size: 18}, {X: 4, Y: 5, Size: 32},
				{X: 6, Y: 8, Size: 12}, {X: 7, Y: 3, Size: 24},
			},
		}
	case models.ChartHeatmap:
		return Payload{
			Title:   "Illustrative intensity",
			XLabels: []string{"Mon", "Tue", "Wed", "Thu", "Fri"},
			YLabels: []string{"Morning", "Afternoon", "Evening"},
			Values: [][]float64{
				{3, 7, 5, 8, 4},
				{6, 9, 7, 5, 6},
				{2, 4, 6, 3, 5},
			},
		}
	case models.ChartRadar:
		return Payload{
			Title: "Illustrative profile",
			Indicators: []Indicator{
				{Name: "Reach", Max: 10}, {Name: "Quality", Max: 10},
				{Name: "Cost", Max: 10}, {Name: "Speed", Max: 10},
				{Name: "Fit", Max: 10},
			},
			Series: []Series{
				{Name: "Option A", Values: []float64{8, 6, 5, 7, 9}},
				{Name: "Option B", Values: []float64{5, 8, 7, 6, 6}},
			},
		}
	case models.ChartSankey:
		return Payload{
			Title: "Illustrative flow",
			Nodes: []Node{{Name: "Input"}, {Name: "Stage A"}, {Name: "Stage B"}, {Name: "Output"}},
			Links: []Link{
				{Source: "Input", Target: "Stage A", Value: 60},
				{Source: "Input", Target: "Stage B", Value: 40},
				{Source: "Stage A", Target: "Output", Value: 55},
				{Source: "Stage B", Target: "Output", Value: 35},
			},
		}
	case models.ChartFlow:
		return Payload{
			Title: "Illustrative process",
			Nodes: []Node{{Name: "Start"}, {Name: "Review"}, {Name: "Approve"}, {Name: "Done"}},
			Links: []Link{
				{Source: "Start", Target: "Review", Value: 1},
				{Source: "Review", Target: "Approve", Value: 1},
				{Source: "Approve", Target: "Done", Value: 1},
			},
		}
	case models.ChartSunburst, models.ChartTreemap:
		return Payload{
			Title: "Illustrative breakdown",
			Tree: []TreeNode{
				{Name: "Total", Children: []TreeNode{
					{Name: "Group A", Children: []TreeNode{
						{Name: "A1", Value: 30}, {Name: "A2", Value: 18},
					}},
					{Name: "Group B", Children: []TreeNode{
						{Name: "B1", Value: 22}, {Name: "B2", Value: 12},
					}},
					{Name: "Group C", Value: 18},
				}},
			},
		}
	case models.ChartCandlestick:
		return Payload{
			Title:      "Illustrative range",
			Categories: []string{"2026-01-05", "2026-01-06", "2026-01-07", "2026-01-08"},
			Candles: []Candle{
				{Open: 20, High: 24, Low: 19, Close: 23},
				{Open: 23, High: 26, Low: 22, Close: 25},
				{Open: 25, High: 25, Low: 21, Close: 22},
				{Open: 22, High: 27, Low: 22, Close: 26},
			},
		}
	case models.ChartGantt:
		return Payload{
			Title: "Illustrative schedule",
			Tasks: []Task{
				{Name: "Discovery", Start: "2026-01-05", End: "2026-01-16"},
				{Name: "Build", Start: "2026-01-19", End: "2026-02-27"},
				{Name: "Validation", Start: "2026-02-16", End: "2026-03-13"},
				{Name: "Launch", Start: "2026-03-16", End: "2026-03-20"},
			},
		}
	case models.ChartThemeRiver:
		return Payload{
			Title: "Illustrative themes over time",
			River: []RiverPoint{
				{Date: "2026-01", Value: 12, Series: "Theme A"},
				{Date: "2026-02", Value: 18, Series: "Theme A"},
				{Date: "2026-03", Value: 14, Series: "Theme A"},
				{Date: "2026-01", Value: 8, Series: "Theme B"},
				{Date: "2026-02", Value: 11, Series: "Theme B"},
				{Date: "2026-03", Value: 16, Series: "Theme B"},
			},
		}
	case models.ChartWordCloud:
		return Payload{
			Title: "Illustrative terms",
			Words: []Word{
				{Text: "growth", Weight: 48}, {Text: "market", Weight: 36},
				{Text: "adoption", Weight: 29}, {Text: "efficiency", Weight: 22},
				{Text: "risk", Weight: 17}, {Text: "scale", Weight: 13},
			},
		}
	default:
		// Unknown kinds are rejected by Validate before rendering; a
		// bar fallback keeps this total for callers that skip it.
		return SamplePayload(models.ChartBar)
	}
}
