package chart

import (
	"fmt"
	"time"

	"github.com/agentic-research/scribe/pkg/models"
)

// Payload is the renderer's data contract. One struct covers the closed
// kind set; Validate checks the fields a kind requires and ignores the
// rest. Field names follow the chart service's JSON API.
type Payload struct {
	Title      string       `json:"title,omitempty"`
	Categories []string     `json:"categories,omitempty"`
	Series     []Series     `json:"series,omitempty"`
	Items      []Item       `json:"items,omitempty"`
	Points     []Point      `json:"points,omitempty"`
	XLabels    []string     `json:"xLabels,omitempty"`
	YLabels    []string     `json:"yLabels,omitempty"`
	Values     [][]float64  `json:"values,omitempty"`
	Indicators []Indicator  `json:"indicators,omitempty"`
	Nodes      []Node       `json:"nodes,omitempty"`
	Links      []Link       `json:"links,omitempty"`
	Tree       []TreeNode   `json:"tree,omitempty"`
	Candles    []Candle     `json:"candles,omitempty"`
	Tasks      []Task       `json:"tasks,omitempty"`
	River      []RiverPoint `json:"river,omitempty"`
	Words      []Word       `json:"words,omitempty"`
}

// Series is one named value sequence aligned with Categories.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Item is one named slice or stage (pie, funnel).
type Item struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Point is one scatter or bubble mark. Size applies to bubbles only.
type Point struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Size float64 `json:"size,omitempty"`
}

// Indicator is one radar axis.
type Indicator struct {
	Name string  `json:"name"`
	Max  float64 `json:"max"`
}

// Node is one graph vertex (sankey, flow).
type Node struct {
	Name string `json:"name"`
}

// Link is one weighted graph edge (sankey, flow).
type Link struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Value  float64 `json:"value"`
}

// TreeNode is one hierarchy node (sunburst, treemap). Leaves carry the
// values; branch values are derived by the renderer.
type TreeNode struct {
	Name     string     `json:"name"`
	Value    float64    `json:"value,omitempty"`
	Children []TreeNode `json:"children,omitempty"`
}

// Candle is one OHLC entry aligned with Categories (dates).
type Candle struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Task is one gantt bar. Dates are ISO days (2006-01-02).
type Task struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// RiverPoint is one themeriver sample.
type RiverPoint struct {
	Date   string  `json:"date"`
	Value  float64 `json:"value"`
	Series string  `json:"series"`
}

// Word is one wordcloud entry.
type Word struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

const taskDateLayout = "2006-01-02"

// Validate shape-checks a payload for the given kind. A nil error means
// the chart service will accept it. Model-built payloads that fail here
// are replaced by SamplePayload before rendering.
func Validate(kind models.ChartKind, p *Payload) error {
	if p == nil {
		return fmt.Errorf("payload is nil")
	}
	switch kind {
	case models.ChartLine, models.ChartBar, models.ChartArea:
		return validateSeries(p, 1)
	case models.ChartStackedBar:
		return validateSeries(p, 2)
	case models.ChartPie, models.ChartFunnel:
		return validateItems(p)
	case models.ChartScatter:
		return validatePoints(p, false)
	case models.ChartBubble:
		return validatePoints(p, true)
	case models.ChartHeatmap:
		return validateHeatmap(p)
	case models.ChartRadar:
		return validateRadar(p)
	case models.ChartSankey, models.ChartFlow:
		return validateGraph(p)
	case models.ChartSunburst, models.ChartTreemap:
		return validateTree(p)
	case models.ChartCandlestick:
		return validateCandles(p)
	case models.ChartGantt:
		return validateTasks(p)
	case models.ChartThemeRiver:
		return validateRiver(p)
	case models.ChartWordCloud:
		return validateWords(p)
	default:
		return fmt.Errorf("unknown chart kind %q", kind)
	}
}

func validateSeries(p *Payload, minSeries int) error {
	if len(p.Categories) == 0 {
		return fmt.Errorf("categories are required")
	}
	if len(p.Series) < minSeries {
		return fmt.Errorf("at least %d series required, got %d", minSeries, len(p.Series))
	}
	for i, s := range p.Series {
		if s.Name == "" {
			return fmt.Errorf("series[%d]: name is required", i)
		}
		if len(s.Values) != len(p.Categories) {
			return fmt.Errorf("series[%d] %q: %d values for %d categories", i, s.Name, len(s.Values), len(p.Categories))
		}
	}
	return nil
}

func validateItems(p *Payload) error {
	if len(p.Items) == 0 {
		return fmt.Errorf("items are required")
	}
	for i, it := range p.Items {
		if it.Name == "" {
			return fmt.Errorf("items[%d]: name is required", i)
		}
		if it.Value < 0 {
			return fmt.Errorf("items[%d] %q: value must not be negative", i, it.Name)
		}
	}
	return nil
}

func validatePoints(p *Payload, sized bool) error {
	if len(p.Points) == 0 {
		return fmt.Errorf("points are required")
	}
	if sized {
		for i, pt := range p.Points {
			if pt.Size <= 0 {
				return fmt.Errorf("points[%d]: bubble size must be positive", i)
			}
		}
	}
	return nil
}

func validateHeatmap(p *Payload) error {
	if len(p.XLabels) == 0 || len(p.YLabels) == 0 {
		return fmt.Errorf("xLabels and yLabels are required")
	}
	if len(p.Values) != len(p.YLabels) {
		return fmt.Errorf("%d value rows for %d yLabels", len(p.Values), len(p.YLabels))
	}
	for i, row := range p.Values {
		if len(row) != len(p.XLabels) {
			return fmt.Errorf("values[%d]: %d columns for %d xLabels", i, len(row), len(p.XLabels))
		}
	}
	return nil
}

func validateRadar(p *Payload) error {
	if len(p.Indicators) < 3 {
		return fmt.Errorf("at least 3 indicators required, got %d", len(p.Indicators))
	}
	for i, ind := range p.Indicators {
		if ind.Name == "" {
			return fmt.Errorf("indicators[%d]: name is required", i)
		}
		if ind.Max <= 0 {
			return fmt.Errorf("indicators[%d] %q: max must be positive", i, ind.Name)
		}
	}
	if len(p.Series) == 0 {
		return fmt.Errorf("at least one series required")
	}
	for i, s := range p.Series {
		if len(s.Values) != len(p.Indicators) {
			return fmt.Errorf("series[%d] %q: %d values for %d indicators", i, s.Name, len(s.Values), len(p.Indicators))
		}
	}
	return nil
}

func validateGraph(p *Payload) error {
	if len(p.Nodes) < 2 {
		return fmt.Errorf("at least 2 nodes required, got %d", len(p.Nodes))
	}
	if len(p.Links) == 0 {
		return fmt.Errorf("links are required")
	}
	names := make(map[string]bool, len(p.Nodes))
	for i, n := range p.Nodes {
		if n.Name == "" {
			return fmt.Errorf("nodes[%d]: name is required", i)
		}
		if names[n.Name] {
			return fmt.Errorf("nodes[%d]: duplicate node %q", i, n.Name)
		}
		names[n.Name] = true
	}
	for i, l := range p.Links {
		if !names[l.Source] {
			return fmt.Errorf("links[%d]: unknown source %q", i, l.Source)
		}
		if !names[l.Target] {
			return fmt.Errorf("links[%d]: unknown target %q", i, l.Target)
		}
		if l.Source == l.Target {
			return fmt.Errorf("links[%d]: self-link on %q", i, l.Source)
		}
		if l.Value <= 0 {
			return fmt.Errorf("links[%d]: value must be positive", i)
		}
	}
	return nil
}

func validateTree(p *Payload) error {
	if len(p.Tree) == 0 {
		return fmt.Errorf("tree is required")
	}
	return walkTree(p.Tree, "tree")
}

func walkTree(nodes []TreeNode, path string) error {
	for i, n := range nodes {
		at := fmt.Sprintf("%s[%d]", path, i)
		if n.Name == "" {
			return fmt.Errorf("%s: name is required", at)
		}
		if len(n.Children) == 0 && n.Value <= 0 {
			return fmt.Errorf("%s %q: leaf value must be positive", at, n.Name)
		}
		if err := walkTree(n.Children, at); err != nil {
			return err
		}
	}
	return nil
}

func validateCandles(p *Payload) error {
	if len(p.Candles) == 0 {
		return fmt.Errorf("candles are required")
	}
	if len(p.Categories) != len(p.Candles) {
		return fmt.Errorf("%d categories for %d candles", len(p.Categories), len(p.Candles))
	}
	for i, c := range p.Candles {
		if c.High < c.Low {
			return fmt.Errorf("candles[%d]: high below low", i)
		}
		if c.Open > c.High || c.Open < c.Low || c.Close > c.High || c.Close < c.Low {
			return fmt.Errorf("candles[%d]: open/close outside high-low range", i)
		}
	}
	return nil
}

func validateTasks(p *Payload) error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("tasks are required")
	}
	for i, task := range p.Tasks {
		if task.Name == "" {
			return fmt.Errorf("tasks[%d]: name is required", i)
		}
		start, err := time.Parse(taskDateLayout, task.Start)
		if err != nil {
			return fmt.Errorf("tasks[%d] %q: invalid start date %q", i, task.Name, task.Start)
		}
		end, err := time.Parse(taskDateLayout, task.End)
		if err != nil {
			return fmt.Errorf("tasks[%d] %q: invalid end date %q", i, task.Name, task.End)
		}
		if end.Before(start) {
			return fmt.Errorf("tasks[%d] %q: end before start", i, task.Name)
		}
	}
	return nil
}

func validateRiver(p *Payload) error {
	if len(p.River) == 0 {
		return fmt.Errorf("river points are required")
	}
	for i, pt := range p.River {
		if pt.Date == "" || pt.Series == "" {
			return fmt.Errorf("river[%d]: date and series are required", i)
		}
		if pt.Value < 0 {
			return fmt.Errorf("river[%d]: value must not be negative", i)
		}
	}
	return nil
}

func validateWords(p *Payload) error {
	if len(p.Words) == 0 {
		return fmt.Errorf("words are required")
	}
	for i, w := range p.Words {
		if w.Text == "" {
			return fmt.Errorf("words[%d]: text is required", i)
		}
		if w.Weight <= 0 {
			return fmt.Errorf("words[%d] %q: weight must be positive", i, w.Text)
		}
	}
	return nil
}
