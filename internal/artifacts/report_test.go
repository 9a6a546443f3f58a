package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeReportName(t *testing.T) {
	tests := map[string]string{
		"report.md":     "report.md",
		"report":        "report.md",
		"my report.txt": "my_report.txt.md",
		"../secret":     ".._secret.md",
		"":              "report.md",
	}
	for in, want := range tests {
		assert.Equal(t, want, SanitizeReportName(in), "input %q", in)
	}
}

func TestReportWriter_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	w := NewReportWriter(dir)

	name, err := w.Save("summary", "hello")
	require.NoError(t, err)
	assert.Equal(t, "summary.md", name)
	assert.Equal(t, "/output/summary.md", ReportURL(name))

	data, err := os.ReadFile(filepath.Join(dir, "summary.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestResolveOutputURL(t *testing.T) {
	got, err := ResolveOutputURL("/srv/out", "/output/report.md")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/out", "report.md"), got)

	got, err = ResolveOutputURL("/srv/out", "/output/../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/out", "etc/passwd"), got)

	_, err = ResolveOutputURL("/srv/out", "/output/")
	assert.Error(t, err)
}

func TestCharts(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.png"), nil, 0o644))

	before, err := ListCharts(dir)
	require.NoError(t, err)
	assert.Len(t, before, 1)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_new.png"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_new.png"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	added, err := NewCharts(dir, before)
	require.NoError(t, err)
	assert.Equal(t, []string{"/output/charts/a_new.png", "/output/charts/b_new.png"}, added)

	missing, err := ListCharts(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestChartTitle(t *testing.T) {
	assert.Equal(t, "Q3 Market Growth", ChartTitle("/output/charts/q3_market_growth.png"))
	assert.Equal(t, "Cost Comparison", ChartTitle("cost_comparison.png"))
	assert.Equal(t, "Ev Sales", ChartTitle("EV_SALES.png"))
}
