package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/attribution"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/bridge"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/crew"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/reconcile"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/runstore"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// CrewConfig configures a CrewExecutor.
type CrewConfig struct {
	// Pipeline runs the stages (required)
	Pipeline crew.Pipeline

	// Registry supplies the manager and stage order (required)
	Registry registry.Registry

	// OutputDir holds report.md (required)
	OutputDir string

	// ChartsDir is scanned for new charts (default: OutputDir/charts)
	ChartsDir string

	// Mirror uploads artifacts after a successful run (optional)
	Mirror *dataflow.Service

	Logger *slog.Logger
}

// CrewExecutor runs the real pipeline and reconciles its report.
type CrewExecutor struct {
	pipeline  crew.Pipeline
	registry  registry.Registry
	reports   *artifacts.ReportWriter
	chartsDir string
	mirror    *dataflow.Service
	logger    *slog.Logger
	now       func() time.Time
}

// NewCrewExecutor creates a CrewExecutor.
func NewCrewExecutor(cfg CrewConfig) (*CrewExecutor, error) {
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	if cfg.ChartsDir == "" {
		cfg.ChartsDir = filepath.Join(cfg.OutputDir, artifacts.ChartsSubdir)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CrewExecutor{
		pipeline:  cfg.Pipeline,
		registry:  cfg.Registry,
		reports:   artifacts.NewReportWriter(cfg.OutputDir),
		chartsDir: cfg.ChartsDir,
		mirror:    cfg.Mirror,
		logger:    cfg.Logger,
		now:       time.Now,
	}, nil
}

// Execute runs the pipeline for run.Topic(). Pipeline failures, including
// panics, move the run to error and push an error event.
func (e *CrewExecutor) Execute(ctx context.Context, run *runstore.Run) (err error) {
	b := run.Bridge()
	defer b.MarkComplete()

	ctx, end, err := begin(ctx, KindCrew, run, e.now())
	if err != nil {
		return err
	}
	defer func() { end(err) }()

	manager := e.registry.Manager()
	b.Push(types.Event{
		Type:        types.EventTypeAgentStart,
		Agent:       manager.Key,
		Role:        manager.Role,
		Model:       manager.Model,
		VM:          manager.VM,
		TaskSummary: "Orchestrating research on: " + run.Topic(),
	})

	before, err := artifacts.ListCharts(e.chartsDir)
	if err != nil {
		e.logger.Warn("could not snapshot charts", "run_id", run.ID(), "error", err)
		before = map[string]struct{}{}
	}
	reportFile := filepath.Join(e.reports.Dir(), artifacts.ReportFilename)
	reportMod := modTime(reportFile)

	attr := attribution.New(b, manager, e.registry.Stages())
	attr.Begin()

	result, err := invoke(ctx, e.pipeline, run.Topic(), attr.Hooks())
	if err != nil {
		e.logger.Error("crew execution failed", "run_id", run.ID(), "error", err)
		fail(run, e.logger, err, "Crew execution failed: "+err.Error(), e.now())
		return err
	}

	run.StampCompleted(e.now())

	charts, err := artifacts.NewCharts(e.chartsDir, before)
	if err != nil {
		e.logger.Warn("could not list new charts", "run_id", run.ID(), "error", err)
	}
	run.AppendCharts(charts...)

	if err = e.saveReport(run, result, reportFile, reportMod, charts); err != nil {
		msg := "Crew execution failed: " + err.Error()
		if errors.Is(err, reconcile.ErrNoArtifact) {
			msg = "Crew execution failed: no report content found"
		}
		e.logger.Error("crew produced no usable report", "run_id", run.ID(), "error", err)
		fail(run, e.logger, err, msg, e.now())
		return err
	}
	mirrorArtifacts(ctx, e.mirror, e.logger, run, e.reports.Dir())

	for _, c := range charts {
		b.Push(types.Event{
			Type:       types.EventTypeChartCreated,
			Agent:      "visualizer",
			ChartTitle: artifacts.ChartTitle(c),
			Path:       c,
		})
	}

	var total float64
	if elapsed := run.ElapsedSeconds(); elapsed != nil {
		total = *elapsed
	}
	b.Push(types.Event{
		Type:         types.EventTypeCrewComplete,
		TotalSeconds: types.Float(roundTenth(total)),
		ReportPath:   run.ReportPath(),
		Charts:       run.Charts(),
	})

	e.logger.Info("crew run completed",
		"run_id", run.ID(),
		"charts", len(charts),
		"report_path", run.ReportPath(),
	)
	return run.Complete(e.now())
}

// saveReport reconciles the report candidates and writes the winner, cleaned,
// to report.md and to the run's own copy, which becomes report_path. The
// on-disk file only counts if it changed during the run.
func (e *CrewExecutor) saveReport(run *runstore.Run, result, reportFile string, before time.Time, charts []string) error {
	var candidates []reconcile.Candidate

	if info, err := os.Stat(reportFile); err == nil && !info.ModTime().Equal(before) {
		data, err := os.ReadFile(reportFile)
		if err != nil {
			e.logger.Warn("could not read report file", "run_id", run.ID(), "error", err)
		} else {
			candidates = append(candidates, reconcile.Candidate{Source: reconcile.SourceFile, Text: string(data)})
		}
	}

	candidates = append(candidates,
		reconcile.Candidate{Source: reconcile.SourceResult, Text: result},
		reconcile.Candidate{Source: reconcile.SourceStream, Text: reconcile.Longest(stageOutputs(run.Bridge(), e.lastStage()))},
	)

	best, err := reconcile.Reconcile(candidates)
	if err != nil {
		return err
	}

	text := reconcile.Clean(best.Text, charts)
	if _, err := e.reports.Save(artifacts.ReportFilename, text); err != nil {
		return err
	}
	name, err := e.reports.Save(artifacts.RunReportName(run.ID()), text)
	if err != nil {
		return err
	}
	run.SetReportPath(artifacts.ReportURL(name))

	e.logger.Info("report reconciled",
		"run_id", run.ID(),
		"source", string(best.Source),
		"length", len(best.Text),
	)
	return nil
}

func (e *CrewExecutor) lastStage() string {
	stages := e.registry.Stages()
	if len(stages) == 0 {
		return ""
	}
	return stages[len(stages)-1].Key
}

// stageOutputs returns the content of every agent_output event from agent.
func stageOutputs(b *bridge.Bridge, agent string) []string {
	var out []string
	for _, ev := range b.Events() {
		if ev.Type == types.EventTypeAgentOutput && ev.Agent == agent {
			out = append(out, ev.Content)
		}
	}
	return out
}

// invoke runs the pipeline, converting a panic into an error.
func invoke(ctx context.Context, p crew.Pipeline, topic string, hooks crew.Hooks) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return p.Run(ctx, topic, hooks)
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
