// Package executor drives crew runs from pending to a terminal status.
//
// Every executor guarantees the run's bridge is marked complete exactly once
// when Execute returns, whatever the outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/artifacts"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/dataflow"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/runstore"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// ErrAlreadyStarted is returned when a run already has an executor attached.
var ErrAlreadyStarted = errors.New("run already started")

// Executor drives one run to completion. Execute blocks until the run is
// terminal and its bridge is complete.
type Executor interface {
	Execute(ctx context.Context, run *runstore.Run) error
}

// Executor kinds used as the "executor" metric label.
const (
	KindCrew      = "crew"
	KindSimulated = "simulated"
)

// Launcher attaches executors to runs and runs them in the background.
// Runs are detached from the caller's context; Shutdown cancels them.
type Launcher struct {
	exec   Executor
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started map[string]struct{}
}

// NewLauncher creates a launcher for exec.
func NewLauncher(exec Executor, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Launcher{
		exec:    exec,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		started: make(map[string]struct{}),
	}
}

// Start executes run in a new goroutine and returns immediately.
func (l *Launcher) Start(run *runstore.Run) error {
	l.mu.Lock()
	if _, ok := l.started[run.ID()]; ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, run.ID())
	}
	l.started[run.ID()] = struct{}{}
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.exec.Execute(l.ctx, run); err != nil {
			l.logger.Warn("run finished with error",
				"run_id", run.ID(),
				"error", err,
			)
		}
	}()
	return nil
}

// Wait blocks until every started run has finished.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

// Shutdown cancels in-flight runs and waits for them to finish or for ctx to
// expire.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.cancel()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// begin moves run to running and opens its span. The returned func records
// the outcome once the run is terminal.
func begin(ctx context.Context, kind string, run *runstore.Run, now time.Time) (context.Context, func(error), error) {
	if err := run.MarkRunning(now); err != nil {
		return ctx, nil, err
	}
	metrics.RunsActive.Inc()

	ctx, span := tracing.Tracer().Start(ctx, "run.execute")
	span.SetAttributes(
		attribute.String("run.id", run.ID()),
		attribute.String("run.executor", kind),
	)

	end := func(err error) {
		status := run.Status()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		metrics.RunsActive.Dec()
		metrics.RunsTotal.WithLabelValues(string(status), kind).Inc()
		metrics.RunDuration.WithLabelValues(string(status)).Observe(time.Since(now).Seconds())
	}
	return ctx, end, nil
}

// fail moves run to error and pushes the terminal error event.
func fail(run *runstore.Run, logger *slog.Logger, cause error, message string, now time.Time) {
	if err := run.Fail(cause.Error(), now); err != nil {
		logger.Warn("could not mark run failed", "run_id", run.ID(), "error", err)
	}
	run.Bridge().Push(types.Event{
		Type:        types.EventTypeError,
		Agent:       "system",
		Message:     message,
		Recoverable: types.Bool(false),
	})
}

// roundTenth rounds seconds to one decimal place.
func roundTenth(seconds float64) float64 {
	return math.Round(seconds*10) / 10
}

// mirrorArtifacts uploads the run's report and charts when svc is set.
// Failures are logged; they never fail the run.
func mirrorArtifacts(ctx context.Context, svc *dataflow.Service, logger *slog.Logger, run *runstore.Run, outputDir string) {
	if svc == nil {
		return
	}

	var files []string
	if p := run.ReportPath(); p != "" {
		files = append(files, strings.TrimPrefix(p, artifacts.OutputURLPrefix))
	}
	for _, c := range run.Charts() {
		files = append(files, strings.TrimPrefix(c, artifacts.OutputURLPrefix))
	}
	if len(files) == 0 {
		return
	}

	if _, err := svc.MirrorRun(ctx, run.ID(), outputDir, files); err != nil {
		logger.Warn("artifact mirror failed", "run_id", run.ID(), "error", err)
	}
}
