package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateChart(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	tests := []struct {
		name  string
		chart map[string]interface{}
		valid bool
	}{
		{
			name: "complete bar chart",
			chart: map[string]interface{}{
				"chart_type": "bar",
				"title":      "Revenue",
				"labels":     []interface{}{"A", "B"},
				"values":     []interface{}{1.0, 2.5},
				"unit":       "$B",
				"filename":   "revenue",
			},
			valid: true,
		},
		{
			name: "unknown chart type",
			chart: map[string]interface{}{
				"chart_type": "radar",
				"title":      "X",
				"labels":     []interface{}{"A"},
				"values":     []interface{}{1.0},
			},
			valid: false,
		},
		{
			name: "missing values",
			chart: map[string]interface{}{
				"chart_type": "pie",
				"title":      "X",
				"labels":     []interface{}{"A"},
			},
			valid: false,
		},
		{
			name: "string values",
			chart: map[string]interface{}{
				"chart_type": "line",
				"title":      "X",
				"labels":     []interface{}{"A"},
				"values":     []interface{}{"ten"},
			},
			valid: false,
		},
		{
			name: "empty labels",
			chart: map[string]interface{}{
				"chart_type": "bar",
				"title":      "X",
				"labels":     []interface{}{},
				"values":     []interface{}{1.0},
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateChart(tt.chart)
			assert.Equal(t, tt.valid, result.Valid, result.Summary())
			if !tt.valid {
				assert.NotEmpty(t, result.Errors)
				assert.NotEmpty(t, result.Summary())
			}
		})
	}
}

func TestValidateChartJSON(t *testing.T) {
	v := MustNew()

	result := v.ValidateChartJSON([]byte(`{"chart_type":"pie","title":"Share","labels":["a","b"],"values":[60,40]}`))
	assert.True(t, result.Valid, result.Summary())

	result = v.ValidateChartJSON([]byte(`{not json`))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "$", result.Errors[0].Path)
}
