package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/validator"
)

// ChartTool lets an agent render a chart from a loosely formatted payload.
// Failures are reported in the returned text, never as a Go error.
type ChartTool struct {
	renderer  *ChartRenderer
	validator *validator.Validator
	logger    *slog.Logger
}

// NewChartTool creates the chart tool. v may be nil to skip schema checks.
func NewChartTool(renderer *ChartRenderer, v *validator.Validator, logger *slog.Logger) *ChartTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChartTool{renderer: renderer, validator: v, logger: logger}
}

func (t *ChartTool) Name() string { return registry.ToolChart }

func (t *ChartTool) Description() string {
	return `Generate a professional chart image.
Pass a JSON object with these fields:
{"chart_type": "bar", "title": "Chart Title", "labels": ["A", "B", "C"], "values": [10, 20, 30], "unit": "%", "filename": "my_chart"}
chart_type options: bar, horizontal_bar, pie, line
Returns the file path of the generated chart image.`
}

// Call implements tools.Tool.
func (t *ChartTool) Call(ctx context.Context, input string) (string, error) {
	return t.Generate(ctx, input), nil
}

// Generate parses raw, which may be a decoded map or a string, renders the
// chart and returns the agent-facing result text.
func (t *ChartTool) Generate(ctx context.Context, raw any) string {
	_, span := tracing.Tracer().Start(ctx, "tool."+registry.ToolChart)
	defer span.End()

	path, fallback, err := t.generate(raw)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ToolCallsTotal.WithLabelValues(registry.ToolChart, "error").Inc()
		t.logger.Error("chart tool failed", "error", err)
		return fmt.Sprintf("Error generating chart: %v", err)
	}

	result := "success"
	if fallback {
		result = "fallback"
	}
	span.SetAttributes(attribute.String("chart.path", path), attribute.Bool("chart.fallback", fallback))
	metrics.ToolCallsTotal.WithLabelValues(registry.ToolChart, result).Inc()
	return "Chart saved to: " + path
}

func (t *ChartTool) generate(raw any) (string, bool, error) {
	data, err := ParseChartInput(raw)
	if err != nil {
		return "", false, err
	}
	spec, err := ChartSpecFromMap(data)
	if err != nil {
		return "", false, err
	}

	if t.validator != nil {
		encoded, _ := json.Marshal(spec)
		if res := t.validator.ValidateChartJSON(encoded); !res.Valid {
			t.logger.Warn("chart payload does not match schema",
				"chart", spec.Filename,
				"details", res.Summary(),
			)
		}
	}

	return t.renderer.Render(spec)
}

// FileTool lets an agent save a text report into the output directory.
type FileTool struct {
	writer *ReportWriter
	logger *slog.Logger
}

// NewFileTool creates the file tool.
func NewFileTool(writer *ReportWriter, logger *slog.Logger) *FileTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileTool{writer: writer, logger: logger}
}

func (t *FileTool) Name() string { return registry.ToolFile }

func (t *FileTool) Description() string {
	return `Save content to a file in the output directory.
Pass a JSON object: {"filename": "report.md", "content": "<the full markdown text>"}
Returns the path where the file was saved.`
}

type fileInput struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Call implements tools.Tool. Input that is not a JSON object is saved
// verbatim as the canonical report.
func (t *FileTool) Call(ctx context.Context, input string) (string, error) {
	var in fileInput
	if err := json.Unmarshal([]byte(strings.TrimSpace(input)), &in); err != nil || in.Content == "" {
		in = fileInput{Filename: ReportFilename, Content: input}
	}
	return t.Save(ctx, in.Filename, in.Content), nil
}

// Save writes content and returns the agent-facing result text.
func (t *FileTool) Save(ctx context.Context, filename, content string) string {
	_, span := tracing.Tracer().Start(ctx, "tool."+registry.ToolFile)
	defer span.End()

	name, err := t.writer.Save(filename, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ToolCallsTotal.WithLabelValues(registry.ToolFile, "error").Inc()
		t.logger.Error("file tool failed", "filename", filename, "error", err)
		return fmt.Sprintf("Error saving report: %v", err)
	}
	metrics.ToolCallsTotal.WithLabelValues(registry.ToolFile, "success").Inc()
	span.SetAttributes(attribute.String("report.name", name), attribute.Int("report.bytes", len(content)))
	return "Report saved to: " + name
}

// Verify interface compliance
var (
	_ tools.Tool = (*ChartTool)(nil)
	_ tools.Tool = (*FileTool)(nil)
)
