// Package runstore provides the in-memory directory of crew runs.
package runstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/bridge"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// Common errors returned by RunStore implementations.
var (
	ErrRunNotFound       = errors.New("run not found")
	ErrRunExists         = errors.New("run already exists")
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// RunStore defines the run directory. Runs live for the lifetime of the
// process; there is no deletion or expiry.
// Implementations must be safe for concurrent use.
type RunStore interface {
	// CreateRun registers a pending run with a fresh event bridge.
	// Returns ErrRunExists if runID is taken.
	CreateRun(ctx context.Context, runID, topic string) (*Run, error)

	// GetRun returns the run or ErrRunNotFound.
	GetRun(ctx context.Context, runID string) (*Run, error)

	// ListRuns returns a summary for every known run, in no particular order.
	ListRuns(ctx context.Context) ([]types.RunSummary, error)

	// Diagnostics
	AdapterInfo(ctx context.Context) (map[string]interface{}, error)

	// Cleanup
	Close() error
}

// Config holds configuration for RunStore implementations.
type Config struct {
	// PollInterval is passed to every run's bridge
	PollInterval time.Duration

	// Sinks receive every event of every run
	Sinks []bridge.Sink

	// Logger is passed to every run's bridge
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for RunStore configuration.
func DefaultConfig() *Config {
	return &Config{
		PollInterval: bridge.DefaultPollInterval,
	}
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return uuid.NewString()[:8]
}
