package models

import (
	"fmt"
	"strings"
)

// ChartKind is one of the closed set of renderable chart types.
type ChartKind string

const (
	ChartLine        ChartKind = "line"
	ChartBar         ChartKind = "bar"
	ChartArea        ChartKind = "area"
	ChartPie         ChartKind = "pie"
	ChartScatter     ChartKind = "scatter"
	ChartBubble      ChartKind = "bubble"
	ChartFunnel      ChartKind = "funnel"
	ChartHeatmap     ChartKind = "heatmap"
	ChartRadar       ChartKind = "radar"
	ChartSankey      ChartKind = "sankey"
	ChartSunburst    ChartKind = "sunburst"
	ChartTreemap     ChartKind = "treemap"
	ChartCandlestick ChartKind = "candlestick"
	ChartFlow        ChartKind = "flow"
	ChartGantt       ChartKind = "gantt"
	ChartStackedBar  ChartKind = "stackedbar"
	ChartThemeRiver  ChartKind = "themeriver"
	ChartWordCloud   ChartKind = "wordcloud"
)

// AllChartKinds lists every renderable kind in a stable order.
var AllChartKinds = []ChartKind{
	ChartLine, ChartBar, ChartArea, ChartPie, ChartScatter, ChartBubble,
	ChartFunnel, ChartHeatmap, ChartRadar, ChartSankey, ChartSunburst,
	ChartTreemap, ChartCandlestick, ChartFlow, ChartGantt, ChartStackedBar,
	ChartThemeRiver, ChartWordCloud,
}

var chartKindSet = func() map[ChartKind]bool {
	m := make(map[ChartKind]bool, len(AllChartKinds))
	for _, k := range AllChartKinds {
		m[k] = true
	}
	return m
}()

// chartAliases maps folded input spellings that do not collapse to a
// canonical kind on their own.
var chartAliases = map[string]ChartKind{
	"stackbar":    ChartStackedBar,
	"kline":       ChartCandlestick,
	"candle":      ChartCandlestick,
	"donut":       ChartPie,
	"doughnut":    ChartPie,
	"flowchart":   ChartFlow,
	"streamgraph": ChartThemeRiver,
}

// NormalizeChartKind folds an input spelling (case, spaces, underscores,
// hyphens) onto the closed kind set.
func NormalizeChartKind(input string) (ChartKind, error) {
	folded := strings.ToLower(strings.TrimSpace(input))
	folded = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(folded)
	if folded == "" {
		return "", fmt.Errorf("empty chart kind")
	}
	if kind, ok := chartAliases[folded]; ok {
		return kind, nil
	}
	if chartKindSet[ChartKind(folded)] {
		return ChartKind(folded), nil
	}
	return "", fmt.Errorf("unknown chart kind %q", input)
}

// NormalizeChartKinds normalizes a list, deduplicating while preserving
// first-seen order.
func NormalizeChartKinds(inputs []string) ([]ChartKind, error) {
	seen := make(map[ChartKind]bool, len(inputs))
	kinds := make([]ChartKind, 0, len(inputs))
	for _, in := range inputs {
		kind, err := NormalizeChartKind(in)
		if err != nil {
			return nil, err
		}
		if seen[kind] {
			continue
		}
		seen[kind] = true
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
