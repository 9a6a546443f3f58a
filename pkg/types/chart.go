package types

// ChartType selects how a chart is drawn.
type ChartType string

const (
	ChartTypeBar           ChartType = "bar"
	ChartTypeHorizontalBar ChartType = "horizontal_bar"
	ChartTypePie           ChartType = "pie"
	ChartTypeLine          ChartType = "line"
)

// ChartSpec describes one chart to render. Labels and Values are index-aligned.
type ChartSpec struct {
	ChartType ChartType `json:"chart_type"`
	Title     string    `json:"title"`
	Labels    []string  `json:"labels"`
	Values    []float64 `json:"values"`
	Unit      string    `json:"unit,omitempty"`
	Filename  string    `json:"filename"`
}

// Valid reports whether the spec can be drawn as given.
func (c ChartSpec) Valid() bool {
	return len(c.Labels) > 0 && len(c.Labels) == len(c.Values)
}
