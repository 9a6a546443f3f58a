// Package health probes the Ollama endpoints behind the manager and
// specialist models.
package health

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
)

// Overall status values.
const (
	StatusOK          = "ok"
	StatusDegraded    = "degraded"
	StatusUnavailable = "unavailable"
)

// Config holds checker configuration.
type Config struct {
	MockMode bool

	ManagerModel      string
	ManagerBaseURL    string
	SpecialistModel   string
	SpecialistBaseURL string

	// ProbeTimeout bounds each /api/tags call (default: 5s)
	ProbeTimeout time.Duration

	// WarmupTimeout bounds each /api/generate call (default: 60s)
	WarmupTimeout time.Duration

	// Client overrides the HTTP client (default: traced transport)
	Client *http.Client

	Logger *slog.Logger
}

// Side is the health of one Ollama endpoint.
type Side struct {
	Ollama bool     `json:"ollama"`
	Models []string `json:"models,omitzero"`
	Model  string   `json:"model,omitempty"`
}

// Report is the combined health answer.
type Report struct {
	Status       string `json:"status"`
	MockMode     bool   `json:"mock_mode"`
	Orchestrator Side   `json:"orchestrator"`
	Specialist   Side   `json:"specialist"`
}

// WarmupResult holds per-side load latency in milliseconds; -1 means the call
// failed.
type WarmupResult struct {
	OrchestratorMS int64 `json:"orchestrator_ms"`
	SpecialistMS   int64 `json:"specialist_ms"`
	MockMode       bool  `json:"mock_mode,omitempty"`
}

// Checker probes and warms the model endpoints.
type Checker struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewChecker creates a Checker.
func NewChecker(cfg Config) *Checker {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.WarmupTimeout <= 0 {
		cfg.WarmupTimeout = 60 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Transport: tracing.Transport(http.DefaultTransport)}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{cfg: cfg, client: client, logger: logger}
}

// Check probes both endpoints in parallel.
func (c *Checker) Check(ctx context.Context) Report {
	if c.cfg.MockMode {
		return Report{
			Status:       StatusOK,
			MockMode:     true,
			Orchestrator: Side{Ollama: true, Model: c.cfg.ManagerModel},
			Specialist:   Side{Ollama: true, Model: c.cfg.SpecialistModel},
		}
	}

	var (
		r Report
		g errgroup.Group
	)
	g.Go(func() error {
		r.Orchestrator = c.probe(ctx, c.cfg.ManagerBaseURL)
		return nil
	})
	g.Go(func() error {
		r.Specialist = c.probe(ctx, c.cfg.SpecialistBaseURL)
		return nil
	})
	_ = g.Wait()

	switch {
	case r.Orchestrator.Ollama && r.Specialist.Ollama:
		r.Status = StatusOK
	case r.Orchestrator.Ollama || r.Specialist.Ollama:
		r.Status = StatusDegraded
	default:
		r.Status = StatusUnavailable
	}
	return r
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *Checker) probe(ctx context.Context, baseURL string) Side {
	side := Side{Models: []string{}}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(baseURL, "/api/tags"), nil)
	if err != nil {
		return side
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("ollama probe failed", "base_url", baseURL, "error", err)
		return side
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("ollama probe failed", "base_url", baseURL, "status", resp.StatusCode)
		return side
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		c.logger.Debug("ollama probe returned invalid body", "base_url", baseURL, "error", err)
		return side
	}

	side.Ollama = true
	for _, m := range tags.Models {
		side.Models = append(side.Models, m.Name)
	}
	return side
}

// Warmup asks both endpoints for a one-word completion so the models are
// loaded before the first run.
func (c *Checker) Warmup(ctx context.Context) WarmupResult {
	if c.cfg.MockMode {
		return WarmupResult{MockMode: true}
	}

	var (
		r WarmupResult
		g errgroup.Group
	)
	g.Go(func() error {
		r.OrchestratorMS = c.warm(ctx, c.cfg.ManagerBaseURL, c.cfg.ManagerModel)
		return nil
	})
	g.Go(func() error {
		r.SpecialistMS = c.warm(ctx, c.cfg.SpecialistBaseURL, c.cfg.SpecialistModel)
		return nil
	})
	_ = g.Wait()
	return r
}

func (c *Checker) warm(ctx context.Context, baseURL, model string) int64 {
	start := time.Now()
	if err := c.generate(ctx, baseURL, model); err != nil {
		c.logger.Warn("model warmup failed",
			"base_url", baseURL,
			"model", model,
			"error", err,
		)
		return -1
	}
	return time.Since(start).Milliseconds()
}

func (c *Checker) generate(ctx context.Context, baseURL, model string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WarmupTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"model":  registry.ModelName(model),
		"prompt": "Hello",
		"stream": false,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL, "/api/generate"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("generate returned status %d", resp.StatusCode)
	}
	return nil
}

func endpoint(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}
