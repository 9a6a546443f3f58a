package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/config"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

func mockEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OUTPUT_DIR", dir)
	t.Setenv("CHARTS_DIR", filepath.Join(dir, "charts"))
	t.Setenv("MOCK_SPEED", "1000")
	t.Setenv("STREAM_POLL_INTERVAL", "20ms")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("ARTIFACT_STORE", "memory")
	t.Setenv("EVENT_PUBLISH", "false")
	return dir
}

func TestRunCommand_Mock(t *testing.T) {
	dir := mockEnv(t)

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"run", "--topic", "AI inference chips", "--mock"})
	require.NoError(t, root.Execute())

	var events []types.Event
	sc := bufio.NewScanner(&stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var ev types.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, sc.Err())

	require.Len(t, events, 23)
	assert.Equal(t, types.EventTypeAgentStart, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, types.EventTypeCrewComplete, last.Type)
	assert.Len(t, last.Charts, 3)
	assert.Equal(t, "/output/report.md", last.ReportPath)

	assert.FileExists(t, filepath.Join(dir, "report.md"))
	assert.FileExists(t, filepath.Join(dir, "charts", "market_share.png"))
	assert.Contains(t, stderr.String(), "report: /output/report.md")
}

func TestRunCommand_RequiresTopic(t *testing.T) {
	mockEnv(t)

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--mock"})
	assert.Error(t, root.Execute())
}

func TestNewApp_InvalidConfig(t *testing.T) {
	mockEnv(t)
	cfg := config.Load()
	cfg.Pipeline = "k8s"

	_, err := newApp(t.Context(), cfg, newLogger(cfg, &bytes.Buffer{}))
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestNewApp_SubprocessPipeline(t *testing.T) {
	mockEnv(t)
	cfg := config.Load()
	cfg.Pipeline = config.PipelineSubprocess
	cfg.PipelineCommand = []string{os.Args[0], "-test.run=^$"}

	a, err := newApp(t.Context(), cfg, newLogger(cfg, &bytes.Buffer{}))
	require.NoError(t, err)
	assert.NotNil(t, a.mirror, "memory artifact store is wired")
	assert.NoError(t, a.close(t.Context()))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "run_id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"run_id":"abc"`)
}
