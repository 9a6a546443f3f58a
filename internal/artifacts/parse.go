package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// ErrUnparseableChart is returned when no parse strategy accepts the input.
var ErrUnparseableChart = errors.New("could not parse chart input")

const echoLimit = 200

var (
	flatChartObjectRe = regexp.MustCompile(`\{[^{}]*"chart_type"[^{}]*\}`)
	labelsObjectRe    = regexp.MustCompile(`(?s)\{.*?"labels"\s*:\s*\[.*?\].*?\}`)
)

// chartParser is one parse strategy. ok=false means "not mine, try the next".
type chartParser func(raw any) (map[string]any, bool)

var chartParsers = []chartParser{
	parseMapWithChartType,
	parseSchemaMap,
	parseAnyMap,
	parseJSONString,
	parseEmbeddedChartObject,
	parseEmbeddedLabelsObject,
}

// ParseChartInput decodes loosely structured chart tool input. It accepts
// decoded maps and strings holding JSON, possibly wrapped in prose.
func ParseChartInput(raw any) (map[string]any, error) {
	for _, parse := range chartParsers {
		if m, ok := parse(raw); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnparseableChart, truncate(fmt.Sprint(raw), echoLimit))
}

func parseMapWithChartType(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	_, has := m["chart_type"]
	return m, has
}

// parseSchemaMap handles a model passing the tool's schema instead of
// values: each property's default, else its description, is used.
func parseSchemaMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, false
	}
	props, ok := m["properties"].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(props))
	for key, spec := range props {
		s, ok := spec.(map[string]any)
		if !ok {
			continue
		}
		if v, ok := s["default"]; ok {
			out[key] = v
		} else if v, ok := s["description"]; ok {
			out[key] = v
		} else {
			out[key] = ""
		}
	}
	return out, true
}

func parseAnyMap(raw any) (map[string]any, bool) {
	m, ok := raw.(map[string]any)
	return m, ok
}

func parseJSONString(raw any) (map[string]any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	return decodeObject(s)
}

func parseEmbeddedChartObject(raw any) (map[string]any, bool) {
	return decodeMatch(raw, flatChartObjectRe)
}

func parseEmbeddedLabelsObject(raw any) (map[string]any, bool) {
	return decodeMatch(raw, labelsObjectRe)
}

func decodeMatch(raw any, re *regexp.Regexp) (map[string]any, bool) {
	s, ok := raw.(string)
	if !ok {
		return nil, false
	}
	match := re.FindString(s)
	if match == "" {
		return nil, false
	}
	return decodeObject(match)
}

func decodeObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// ChartSpecFromMap applies defaults and converts a parsed payload into a
// ChartSpec. Labels are stringified; values must be numeric.
func ChartSpecFromMap(m map[string]any) (types.ChartSpec, error) {
	spec := types.ChartSpec{
		ChartType: types.ChartType(stringField(m, "chart_type", string(types.ChartTypeBar))),
		Title:     stringField(m, "title", "Chart"),
		Unit:      stringField(m, "unit", ""),
		Filename:  stringField(m, "filename", "chart"),
	}

	if labels, ok := m["labels"].([]any); ok {
		spec.Labels = make([]string, len(labels))
		for i, l := range labels {
			spec.Labels[i] = stringify(l)
		}
	}

	if values, ok := m["values"].([]any); ok {
		spec.Values = make([]float64, len(values))
		for i, v := range values {
			f, err := toFloat(v)
			if err != nil {
				return types.ChartSpec{}, fmt.Errorf("values[%d]: %w", i, err)
			}
			spec.Values[i] = f
		}
	}
	return spec, nil
}

func stringField(m map[string]any, key, def string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return def
	}
	return stringify(v)
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("could not convert %q to float", x)
		}
		return f, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("could not convert %v to float", v)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
