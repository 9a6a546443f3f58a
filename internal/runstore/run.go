package runstore

import (
	"fmt"
	"sync"
	"time"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/bridge"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// Run is one invocation of the pipeline for one topic. Identity and bridge
// are fixed at creation; lifecycle fields are mutated only by the run's
// executor through the methods below.
type Run struct {
	id        string
	topic     string
	bridge    *bridge.Bridge
	createdAt time.Time

	mu          sync.RWMutex
	status      types.RunStatus
	startedAt   *time.Time
	completedAt *time.Time
	reportPath  string
	charts      []string
	err         string
}

func newRun(id, topic string, b *bridge.Bridge) *Run {
	return &Run{
		id:        id,
		topic:     topic,
		bridge:    b,
		createdAt: time.Now().UTC(),
		status:    types.RunStatusPending,
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Topic returns the research topic.
func (r *Run) Topic() string { return r.topic }

// Bridge returns the run's event bridge.
func (r *Run) Bridge() *bridge.Bridge { return r.bridge }

// Status returns the current lifecycle status.
func (r *Run) Status() types.RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// MarkRunning moves a pending run to running and stamps started_at.
func (r *Run) MarkRunning(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionLocked(types.RunStatusRunning); err != nil {
		return err
	}
	t := now.UTC()
	r.startedAt = &t
	return nil
}

// Complete moves the run to completed and stamps completed_at if unset.
func (r *Run) Complete(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionLocked(types.RunStatusCompleted); err != nil {
		return err
	}
	r.stampCompletedLocked(now)
	return nil
}

// Fail moves the run to error with msg and stamps completed_at if unset.
func (r *Run) Fail(msg string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.transitionLocked(types.RunStatusError); err != nil {
		return err
	}
	r.err = msg
	r.stampCompletedLocked(now)
	return nil
}

// StampCompleted records completed_at ahead of the final status change, so
// elapsed time reported in closing events matches the stored value.
func (r *Run) StampCompleted(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stampCompletedLocked(now)
}

// SetReportPath records the canonical report reference.
func (r *Run) SetReportPath(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reportPath = path
}

// ReportPath returns the report reference, or "" when none exists.
func (r *Run) ReportPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reportPath
}

// AppendCharts adds chart references. The list only grows.
func (r *Run) AppendCharts(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charts = append(r.charts, paths...)
}

// Charts returns a copy of the chart references.
func (r *Run) Charts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.charts...)
}

// Error returns the failure message, or "" unless status is error.
func (r *Run) Error() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// ElapsedSeconds returns elapsed run time rounded to 0.1s, or nil before start.
func (r *Run) ElapsedSeconds() *float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return types.Elapsed(r.startedAt, r.completedAt, time.Now())
}

// Summary returns the listing view of the run.
func (r *Run) Summary() types.RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return types.RunSummary{
		RunID:          r.id,
		Topic:          r.topic,
		Status:         r.status,
		ElapsedSeconds: types.Elapsed(r.startedAt, r.completedAt, time.Now()),
	}
}

// Snapshot returns the full status view of the run.
func (r *Run) Snapshot() types.RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := types.RunSnapshot{
		RunID:          r.id,
		Topic:          r.topic,
		Status:         r.status,
		ElapsedSeconds: types.Elapsed(r.startedAt, r.completedAt, time.Now()),
		EventsCount:    r.bridge.Len(),
		Charts:         append([]string{}, r.charts...),
		StartedAt:      copyTime(r.startedAt),
		CompletedAt:    copyTime(r.completedAt),
	}
	if r.reportPath != "" {
		p := r.reportPath
		snap.ReportPath = &p
	}
	if r.err != "" {
		e := r.err
		snap.Error = &e
	}
	return snap
}

func (r *Run) transitionLocked(next types.RunStatus) error {
	if !r.status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.status, next)
	}
	r.status = next
	return nil
}

func (r *Run) stampCompletedLocked(now time.Time) {
	if r.completedAt != nil {
		return
	}
	t := now.UTC()
	r.completedAt = &t
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
