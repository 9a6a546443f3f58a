package crew

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
)

// SubprocessConfig holds configuration for the subprocess pipeline.
type SubprocessConfig struct {
	// Command and arguments of the external crew process
	Command []string

	// Registry supplies the stage order reported in StageOutcome
	Registry registry.Registry

	// EnvPassthrough contains environment variables passed to the process
	EnvPassthrough map[string]string

	// CWD is the working directory for the process (empty = inherit)
	CWD string

	// MaxLineSize bounds one stdout line (default: DefaultMaxLineSize)
	MaxLineSize int

	Logger *slog.Logger
}

// DefaultMaxLineSize bounds one NDJSON line from the crew process.
const DefaultMaxLineSize = 4 * 1024 * 1024

// SubprocessPipeline runs an external crew process and translates its NDJSON
// stdout into pipeline hooks.
//
// Each stdout line is one of:
//
//	{"kind":"text","text":"..."}
//	{"kind":"action","tool":"ChartTool","tool_input":...,"log":"..."}
//	{"kind":"finish","output":"...","text":"..."}
//	{"kind":"stage_complete","output":"..."}
//	{"kind":"result","output":"..."}
//
// Lines that are not JSON are reported as progress. Stderr is logged.
type SubprocessPipeline struct {
	command        []string
	registry       registry.Registry
	envPassthrough map[string]string
	cwd            string
	maxLine        int
	logger         *slog.Logger
}

// NewSubprocessPipeline creates a subprocess pipeline.
func NewSubprocessPipeline(cfg SubprocessConfig) (*SubprocessPipeline, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("empty command")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.MaxLineSize <= 0 {
		cfg.MaxLineSize = DefaultMaxLineSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SubprocessPipeline{
		command:        cfg.Command,
		registry:       cfg.Registry,
		envPassthrough: cfg.EnvPassthrough,
		cwd:            cfg.CWD,
		maxLine:        cfg.MaxLineSize,
		logger:         cfg.Logger,
	}, nil
}

type processLine struct {
	Kind      string          `json:"kind"`
	Text      string          `json:"text"`
	Output    string          `json:"output"`
	Tool      string          `json:"tool"`
	ToolInput json.RawMessage `json:"tool_input"`
	Log       string          `json:"log"`
}

// Run starts the process with CREW_TOPIC set and blocks until it exits.
// The result is the last "result" line, or the last stage output if the
// process never sends one.
func (p *SubprocessPipeline) Run(ctx context.Context, topic string, hooks Hooks) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "crew.subprocess")
	defer span.End()
	span.SetAttributes(attribute.String("crew.command", p.command[0]))

	mergedEnv := os.Environ()
	for k, v := range p.envPassthrough {
		mergedEnv = append(mergedEnv, fmt.Sprintf("%s=%s", k, v))
	}
	mergedEnv = append(mergedEnv, "CREW_TOPIC="+topic)

	c := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	c.Env = mergedEnv
	if p.cwd != "" {
		c.Dir = p.cwd
	}

	stdout, err := c.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := c.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}

	if err := c.Start(); err != nil {
		return "", fmt.Errorf("start: %w", err)
	}

	// Stderr reader - log lines, keep the last for the error message
	var (
		wg         sync.WaitGroup
		lastStderr string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		buf := make([]byte, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			lastStderr = line
			p.logger.Warn("crew process stderr", "line", line)
		}
		if err := scanner.Err(); err != nil {
			p.logger.Warn("crew process stderr unreadable", "error", err)
			_, _ = io.Copy(io.Discard, stderr)
		}
	}()

	// Stdout is read on this goroutine so hooks fire in order.
	stages := p.registry.Stages()
	var (
		stageIdx   int
		result     string
		haveResult bool
		lastOutput string
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, min(64*1024, p.maxLine)), p.maxLine)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var msg processLine
		if err := json.Unmarshal([]byte(line), &msg); err != nil || msg.Kind == "" {
			hooks.step(Progress{Text: line})
			continue
		}

		switch msg.Kind {
		case "text":
			hooks.step(Progress{Text: msg.Text})
		case "action":
			hooks.step(ToolAction{Tool: msg.Tool, ToolInput: rawInput(msg.ToolInput), Log: msg.Log})
		case "finish":
			hooks.step(FinalAnswer{Output: msg.Output, Text: msg.Text})
		case "stage_complete":
			outcome := StageOutcome{Output: msg.Output}
			if stageIdx < len(stages) {
				outcome.Agent = stages[stageIdx]
			}
			stageIdx++
			lastOutput = msg.Output
			hooks.stageComplete(outcome)
		case "result":
			result, haveResult = msg.Output, true
		default:
			p.logger.Debug("unknown crew process line", "kind", msg.Kind)
		}
	}
	if err := scanner.Err(); err != nil {
		// Nothing reads stdout from here on; stop the process so it cannot
		// block on a full pipe. Wait closes the pipes, releasing the stderr
		// reader even if a child process still holds them.
		_ = c.Process.Kill()
		_ = c.Wait()
		wg.Wait()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("read crew process stdout: %w", err)
	}

	wg.Wait()

	if err := c.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			if lastStderr != "" {
				return "", fmt.Errorf("crew process exited with code %d: %s", exitErr.ExitCode(), lastStderr)
			}
			return "", fmt.Errorf("crew process exited with code %d", exitErr.ExitCode())
		}
		return "", fmt.Errorf("wait: %w", err)
	}

	if !haveResult {
		result = lastOutput
	}
	return result, nil
}

// rawInput renders a tool_input that may be a JSON string or any other JSON
// value as text.
func rawInput(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Verify interface compliance
var (
	_ Pipeline = (*LLMPipeline)(nil)
	_ Pipeline = (*SubprocessPipeline)(nil)
)
