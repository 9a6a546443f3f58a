// Package artifacts renders charts and saves reports for a crew run, and
// exposes both as tools the pipeline's agents can call.
package artifacts

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

const (
	chartWidth  = 1200
	chartHeight = 720

	// ChartsSubdir is the charts directory relative to the output directory.
	ChartsSubdir = "charts"
)

var (
	palette = []drawing.Color{
		drawing.ColorFromHex("009BDE"),
		drawing.ColorFromHex("00D4AA"),
		drawing.ColorFromHex("6366F1"),
		drawing.ColorFromHex("EAB308"),
		drawing.ColorFromHex("EF4444"),
		drawing.ColorFromHex("94A3B8"),
	}
	backgroundColor = drawing.ColorFromHex("0D1B2A")
	textColor       = drawing.ColorFromHex("E2E8F0")
	mutedColor      = drawing.ColorFromHex("94A3B8")
	gridColor       = drawing.ColorFromHex("334155")
)

// ChartRenderer draws ChartSpecs as PNG files in a charts directory.
type ChartRenderer struct {
	dir    string
	logger *slog.Logger
}

// NewChartRenderer creates a renderer writing into dir.
func NewChartRenderer(dir string, logger *slog.Logger) *ChartRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChartRenderer{dir: dir, logger: logger}
}

// Dir returns the charts directory.
func (r *ChartRenderer) Dir() string { return r.dir }

// Render draws spec to <dir>/<stem>.png and returns "charts/<stem>.png".
// Invalid specs and drawing failures fall back to a plain bar chart; the
// returned bool reports whether that happened. An error is returned only if
// the fallback itself cannot be drawn or the file cannot be written.
func (r *ChartRenderer) Render(spec types.ChartSpec) (string, bool, error) {
	name := SanitizeChartName(spec.Filename)

	var (
		buf      bytes.Buffer
		fallback bool
	)
	err := errInvalidSpec
	if spec.Valid() {
		err = draw(spec, &buf)
	}
	if err != nil {
		r.logger.Warn("chart render failed, using fallback",
			"chart", name,
			"chart_type", spec.ChartType,
			"labels", len(spec.Labels),
			"values", len(spec.Values),
			"error", err,
		)
		fallback = true
		buf.Reset()
		if err := draw(fallbackSpec(spec), &buf); err != nil {
			return "", true, fmt.Errorf("render fallback chart: %w", err)
		}
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fallback, fmt.Errorf("create charts dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.dir, name+".png"), buf.Bytes(), 0o644); err != nil {
		return "", fallback, fmt.Errorf("write chart: %w", err)
	}
	return ChartsSubdir + "/" + name + ".png", fallback, nil
}

var errInvalidSpec = errors.New("labels and values must be non-empty and the same length")

// SanitizeChartName strips any extension and replaces characters other than
// letters, digits, '-' and '_' with '_'.
func SanitizeChartName(filename string) string {
	base := filepath.Base(strings.TrimSpace(filename))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "chart"
	}
	return sanitize(stem, "-_")
}

func sanitize(s, keep string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if isAlnum(c) || strings.ContainsRune(keep, c) {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isAlnum(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// fallbackSpec truncates labels and values to the shorter length, or
// yields a single "no data" bar.
func fallbackSpec(spec types.ChartSpec) types.ChartSpec {
	n := min(len(spec.Labels), len(spec.Values))
	out := types.ChartSpec{
		ChartType: types.ChartTypeBar,
		Title:     spec.Title,
		Unit:      spec.Unit,
		Labels:    append([]string{}, spec.Labels[:n]...),
		Values:    make([]float64, 0, n),
	}
	for _, v := range spec.Values[:n] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		out.Values = append(out.Values, v)
	}
	if n == 0 {
		out.Labels = []string{"no data"}
		out.Values = []float64{0}
	}
	if out.Title == "" {
		out.Title = "Chart"
	}
	return out
}

// draw renders spec into w. Panics inside the charting library are turned
// into errors.
func draw(spec types.ChartSpec, w io.Writer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("chart renderer panic: %v", rec)
		}
	}()

	switch spec.ChartType {
	case types.ChartTypePie:
		return pieChart(spec).Render(chart.PNG, w)
	case types.ChartTypeLine:
		return lineChart(spec).Render(chart.PNG, w)
	default:
		// horizontal_bar is drawn as vertical bars; go-chart has no
		// horizontal bar layout.
		return barChart(spec).Render(chart.PNG, w)
	}
}

func colorAt(i int) drawing.Color {
	return palette[i%len(palette)]
}

func titleStyle() chart.Style {
	return chart.Style{FontColor: textColor, FontSize: 16}
}

func axisStyle() chart.Style {
	return chart.Style{FontColor: mutedColor, StrokeColor: gridColor, StrokeWidth: 1}
}

func backgroundStyle() chart.Style {
	return chart.Style{
		FillColor: backgroundColor,
		Padding:   chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
	}
}

// valueRange returns an axis range that always contains zero and never
// collapses to a single point.
func valueRange(values []float64) *chart.ContinuousRange {
	lo, hi := 0.0, 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	hi *= 1.15
	lo *= 1.15
	if hi-lo < 1 {
		hi = lo + 1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func barChart(spec types.ChartSpec) chart.BarChart {
	bars := make([]chart.Value, len(spec.Labels))
	for i, label := range spec.Labels {
		c := colorAt(i)
		bars[i] = chart.Value{
			Label: label,
			Value: spec.Values[i],
			Style: chart.Style{FillColor: c, StrokeColor: c},
		}
	}

	barWidth := (chartWidth - 200) / (2 * max(len(bars), 1))
	return chart.BarChart{
		Title:      spec.Title,
		TitleStyle: titleStyle(),
		Width:      chartWidth,
		Height:     chartHeight,
		Background: backgroundStyle(),
		Canvas:     chart.Style{FillColor: backgroundColor},
		XAxis:      axisStyle(),
		YAxis: chart.YAxis{
			Name:      spec.Unit,
			NameStyle: chart.Style{FontColor: mutedColor},
			Style:     axisStyle(),
			Range:     valueRange(spec.Values),
		},
		BarWidth:   min(barWidth, 120),
		BarSpacing: min(barWidth, 120) / 2,
		Bars:       bars,
	}
}

func pieChart(spec types.ChartSpec) chart.PieChart {
	values := make([]chart.Value, len(spec.Labels))
	for i, label := range spec.Labels {
		values[i] = chart.Value{
			Label: label,
			Value: spec.Values[i],
			Style: chart.Style{FillColor: colorAt(i), FontColor: textColor},
		}
	}
	return chart.PieChart{
		Title:      spec.Title,
		TitleStyle: titleStyle(),
		Width:      chartWidth,
		Height:     chartHeight,
		Background: backgroundStyle(),
		Canvas:     chart.Style{FillColor: backgroundColor},
		Values:     values,
	}
}

func lineChart(spec types.ChartSpec) chart.Chart {
	xs := make([]float64, len(spec.Values))
	ticks := make([]chart.Tick, len(spec.Labels))
	for i := range spec.Values {
		xs[i] = float64(i)
		ticks[i] = chart.Tick{Value: float64(i), Label: spec.Labels[i]}
	}

	return chart.Chart{
		Title:      spec.Title,
		TitleStyle: titleStyle(),
		Width:      chartWidth,
		Height:     chartHeight,
		Background: backgroundStyle(),
		Canvas:     chart.Style{FillColor: backgroundColor},
		XAxis: chart.XAxis{
			Style: axisStyle(),
			Ticks: ticks,
			Range: &chart.ContinuousRange{Min: 0, Max: float64(len(xs) - 1)},
		},
		YAxis: chart.YAxis{
			Name:      spec.Unit,
			NameStyle: chart.Style{FontColor: mutedColor},
			Style:     axisStyle(),
			Range:     valueRange(spec.Values),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name: spec.Title,
				Style: chart.Style{
					StrokeColor: palette[0],
					StrokeWidth: 2.5,
					DotColor:    palette[0],
					DotWidth:    5,
				},
				XValues: xs,
				YValues: append([]float64{}, spec.Values...),
			},
		},
	}
}
