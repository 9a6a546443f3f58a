package runstore

import (
	"context"
	"sync"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/bridge"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// MemoryStore is an in-memory implementation of RunStore.
// Data is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	config *Config
}

// NewMemoryStore creates a new in-memory RunStore.
func NewMemoryStore(cfg *Config) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryStore{
		runs:   make(map[string]*Run),
		config: cfg,
	}
}

func (s *MemoryStore) CreateRun(ctx context.Context, runID, topic string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[runID]; exists {
		return nil, ErrRunExists
	}

	b := bridge.New(runID, &bridge.Config{
		PollInterval: s.config.PollInterval,
		Sinks:        s.config.Sinks,
		Logger:       s.config.Logger,
	})
	run := newRun(runID, topic, b)
	s.runs[runID] = run
	return run, nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *MemoryStore) ListRuns(ctx context.Context) ([]types.RunSummary, error) {
	s.mu.RLock()
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	out := make([]types.RunSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (s *MemoryStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := 0
	for _, r := range s.runs {
		if !r.Status().IsTerminal() {
			active++
		}
	}
	return map[string]interface{}{
		"adapter":     "memory",
		"run_count":   len(s.runs),
		"active_runs": active,
	}, nil
}

// Close marks every open bridge complete so stream consumers terminate.
func (s *MemoryStore) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.runs {
		r.bridge.MarkComplete()
	}
	return nil
}

// Verify interface compliance
var _ RunStore = (*MemoryStore)(nil)
