package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

func newSimulated(t *testing.T, out string) *SimulatedExecutor {
	t.Helper()
	exec, err := NewSimulatedExecutor(SimulatedConfig{
		Registry: testRegistry(),
		Renderer: artifacts.NewChartRenderer(filepath.Join(out, "charts"), nil),
		Reports:  artifacts.NewReportWriter(out),
		Speed:    1000,
	})
	require.NoError(t, err)
	return exec
}

func TestSimulatedExecutor_Replay(t *testing.T) {
	out := t.TempDir()
	exec := newSimulated(t, out)

	run := newRun(t, "Edge AI inference")
	require.NoError(t, exec.Execute(context.Background(), run))

	assert.Equal(t, types.RunStatusCompleted, run.Status())
	assert.True(t, run.Bridge().IsComplete())
	assert.Equal(t, "/output/report.md", run.ReportPath())

	wantCharts := []string{
		"/output/charts/market_share.png",
		"/output/charts/market_growth.png",
		"/output/charts/cost_comparison.png",
	}
	assert.Equal(t, wantCharts, run.Charts())
	for _, c := range wantCharts {
		assert.FileExists(t, filepath.Join(out, "charts", filepath.Base(c)))
	}

	report, err := os.ReadFile(filepath.Join(out, "report.md"))
	require.NoError(t, err)
	assert.Equal(t, demoReport, string(report))

	events := run.Bridge().Events()
	require.Len(t, events, 23)

	assert.Equal(t, types.EventTypeAgentStart, events[0].Type)
	assert.Equal(t, "manager", events[0].Agent)
	assert.Equal(t, "gemma3:27b", events[0].Model)
	assert.Equal(t, "Planning research approach for: Edge AI inference", events[0].TaskSummary)

	var (
		delegations []string
		chartPaths  []string
	)
	for _, ev := range events {
		switch ev.Type {
		case types.EventTypeDelegation:
			assert.Equal(t, "manager", ev.From)
			delegations = append(delegations, ev.To)
		case types.EventTypeChartCreated:
			assert.Equal(t, "visualizer", ev.Agent)
			chartPaths = append(chartPaths, ev.Path)
		case types.EventTypeAgentStart:
			if ev.Agent != "manager" {
				assert.Equal(t, "gemma3:12b", ev.Model)
				assert.Equal(t, "specialist", ev.VM)
			}
		}
	}
	assert.Equal(t, []string{"researcher", "analyst", "visualizer", "writer"}, delegations)
	assert.Equal(t, wantCharts, chartPaths)

	done := events[22]
	assert.Equal(t, types.EventTypeCrewComplete, done.Type)
	assert.Equal(t, "/output/report.md", done.ReportPath)
	assert.Equal(t, wantCharts, done.Charts)
	require.NotNil(t, done.TotalSeconds)
	assert.Less(t, *done.TotalSeconds, 1.0)
}

func TestSimulatedExecutor_Cancelled(t *testing.T) {
	exec := newSimulated(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := newRun(t, "topic")
	err := exec.Execute(ctx, run)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, types.RunStatusError, run.Status())
	assert.Equal(t, context.Canceled.Error(), run.Error())
	assert.True(t, run.Bridge().IsComplete())
	assert.NotNil(t, run.Snapshot().CompletedAt)

	events := run.Bridge().Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.EventTypeError, events[0].Type)
	assert.Equal(t, context.Canceled.Error(), events[0].Message)
	require.NotNil(t, events[0].Recoverable)
	assert.False(t, *events[0].Recoverable)
}

func TestBuildScript(t *testing.T) {
	steps := buildScript("topic", testRegistry(), nil)
	require.Len(t, steps, 22)

	var total float64
	for _, s := range steps {
		total += s.delay.Seconds()
	}
	assert.InDelta(t, 33.0, total, 0.001)

	// Without rendered charts the served paths are derived from filenames.
	var paths []string
	for _, s := range steps {
		if s.event.Type == types.EventTypeChartCreated {
			paths = append(paths, s.event.Path)
		}
	}
	assert.Equal(t, []string{
		"/output/charts/market_share.png",
		"/output/charts/market_growth.png",
		"/output/charts/cost_comparison.png",
	}, paths)
}

func TestNewSimulatedExecutor_Validation(t *testing.T) {
	_, err := NewSimulatedExecutor(SimulatedConfig{})
	assert.Error(t, err)

	_, err = NewSimulatedExecutor(SimulatedConfig{Registry: testRegistry()})
	assert.Error(t, err)

	exec, err := NewSimulatedExecutor(SimulatedConfig{
		Registry: testRegistry(),
		Renderer: artifacts.NewChartRenderer(t.TempDir(), nil),
		Reports:  artifacts.NewReportWriter(t.TempDir()),
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, exec.speed)
}
