// Package types provides shared types for the analyst service.
package types

import (
	"math"
	"time"
)

// RunStatus represents the current state of a crew run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusError     RunStatus = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// rank orders statuses so transitions can be checked for monotonicity.
func (s RunStatus) rank() int {
	switch s {
	case RunStatusPending:
		return 0
	case RunStatusRunning:
		return 1
	case RunStatusCompleted, RunStatusError:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle
// pending -> running -> {completed | error}.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// RunSummary is the lightweight listing form of a run.
type RunSummary struct {
	RunID          string    `json:"run_id"`
	Topic          string    `json:"topic"`
	Status         RunStatus `json:"status"`
	ElapsedSeconds *float64  `json:"elapsed_seconds"`
}

// RunSnapshot is the full status view of a run.
type RunSnapshot struct {
	RunID          string     `json:"run_id"`
	Topic          string     `json:"topic"`
	Status         RunStatus  `json:"status"`
	ElapsedSeconds *float64   `json:"elapsed_seconds"`
	EventsCount    int        `json:"events_count"`
	ReportPath     *string    `json:"report_path"`
	Charts         []string   `json:"charts"`
	Error          *string    `json:"error"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Elapsed returns the seconds between start and end (or now), rounded to a
// tenth of a second. It returns nil when the run has not started.
func Elapsed(startedAt, completedAt *time.Time, now time.Time) *float64 {
	if startedAt == nil {
		return nil
	}
	end := now
	if completedAt != nil {
		end = *completedAt
	}
	secs := math.Round(end.Sub(*startedAt).Seconds()*10) / 10
	return &secs
}
