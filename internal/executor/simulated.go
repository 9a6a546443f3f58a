package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/runstore"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// SimulatedConfig configures a SimulatedExecutor.
type SimulatedConfig struct {
	// Registry supplies agent identities for the script (required)
	Registry registry.Registry

	// Renderer draws the demo charts (required)
	Renderer *artifacts.ChartRenderer

	// Reports saves the demo report (required)
	Reports *artifacts.ReportWriter

	// Speed divides every scripted delay (default: 1)
	Speed float64

	// Mirror uploads artifacts (optional)
	Mirror *dataflow.Service

	Logger *slog.Logger
}

// SimulatedExecutor replays a fixed, timed crew run without any model
// backend. It renders real charts and saves a real report so downstream
// consumers see genuine files.
type SimulatedExecutor struct {
	registry registry.Registry
	renderer *artifacts.ChartRenderer
	reports  *artifacts.ReportWriter
	speed    float64
	mirror   *dataflow.Service
	logger   *slog.Logger
	now      func() time.Time
}

// NewSimulatedExecutor creates a SimulatedExecutor.
func NewSimulatedExecutor(cfg SimulatedConfig) (*SimulatedExecutor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.Renderer == nil || cfg.Reports == nil {
		return nil, fmt.Errorf("renderer and report writer are required")
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SimulatedExecutor{
		registry: cfg.Registry,
		renderer: cfg.Renderer,
		reports:  cfg.Reports,
		speed:    cfg.Speed,
		mirror:   cfg.Mirror,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// Execute replays the script into run's bridge. Cancelling ctx aborts the
// replay and fails the run.
func (e *SimulatedExecutor) Execute(ctx context.Context, run *runstore.Run) (err error) {
	b := run.Bridge()
	defer b.MarkComplete()

	ctx, end, err := begin(ctx, KindSimulated, run, e.now())
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	if err = e.replay(ctx, run); err != nil {
		e.logger.Error("simulated run failed", "run_id", run.ID(), "error", err)
		fail(run, e.logger, err, err.Error(), e.now())
		return err
	}
	return run.Complete(e.now())
}

func (e *SimulatedExecutor) replay(ctx context.Context, run *runstore.Run) error {
	charts := make([]string, 0, len(demoCharts))
	for _, spec := range demoCharts {
		rel, _, err := e.renderer.Render(spec)
		if err != nil {
			return fmt.Errorf("render %s: %w", spec.Filename, err)
		}
		charts = append(charts, artifacts.OutputURLPrefix+rel)
	}
	run.AppendCharts(charts...)

	name, err := e.reports.Save(artifacts.ReportFilename, demoReport)
	if err != nil {
		return err
	}
	run.SetReportPath(artifacts.ReportURL(name))
	mirrorArtifacts(ctx, e.mirror, e.logger, run, e.reports.Dir())

	b := run.Bridge()
	steps := buildScript(run.Topic(), e.registry, charts)

	var total time.Duration
	for i, step := range steps {
		delay := time.Duration(float64(step.delay) / e.speed)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		total += delay

		e.logger.Debug("pushing scripted event",
			"run_id", run.ID(),
			"step", i+1,
			"steps", len(steps),
			"event_type", string(step.event.Type),
		)
		b.Push(step.event)
	}

	run.StampCompleted(e.now())
	b.Push(types.Event{
		Type:         types.EventTypeCrewComplete,
		TotalSeconds: types.Float(roundTenth(total.Seconds())),
		ReportPath:   run.ReportPath(),
		Charts:       run.Charts(),
	})
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Verify interface compliance
var (
	_ Executor = (*CrewExecutor)(nil)
	_ Executor = (*SimulatedExecutor)(nil)
)
