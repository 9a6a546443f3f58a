package crew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/tools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/tracing"
)

// DefaultMaxSteps bounds the ReAct loop of one stage.
const DefaultMaxSteps = 6

// Model is the part of a langchaingo model the pipeline needs.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// NewOllamaModel connects to an Ollama server. model may carry a provider
// prefix such as "ollama/".
func NewOllamaModel(model, baseURL string) (*ollama.LLM, error) {
	llm, err := ollama.New(
		ollama.WithModel(registry.ModelName(model)),
		ollama.WithServerURL(baseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client for %s: %w", model, err)
	}
	return llm, nil
}

// LLMConfig configures an LLMPipeline.
type LLMConfig struct {
	// Manager writes the delegation brief for each stage. Optional.
	Manager Model

	// Specialist runs every stage.
	Specialist Model

	// Registry supplies the stage order and agent prompts.
	Registry registry.Registry

	// Tools available to stages that list them by name.
	Tools []tools.Tool

	// MaxSteps per stage (default: DefaultMaxSteps)
	MaxSteps int

	// Temperature for specialist calls
	Temperature float64

	Logger *slog.Logger
}

// LLMPipeline runs the research stages in order against language models,
// each stage as a bounded ReAct loop.
type LLMPipeline struct {
	manager     Model
	specialist  Model
	registry    registry.Registry
	tools       map[string]tools.Tool
	maxSteps    int
	temperature float64
	logger      *slog.Logger
}

// NewLLMPipeline creates a pipeline. Specialist and Registry are required.
func NewLLMPipeline(cfg LLMConfig) (*LLMPipeline, error) {
	if cfg.Specialist == nil {
		return nil, errors.New("specialist model is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	byName := make(map[string]tools.Tool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		byName[t.Name()] = t
	}

	return &LLMPipeline{
		manager:     cfg.Manager,
		specialist:  cfg.Specialist,
		registry:    cfg.Registry,
		tools:       byName,
		maxSteps:    cfg.MaxSteps,
		temperature: cfg.Temperature,
		logger:      cfg.Logger,
	}, nil
}

// Run executes every stage and returns the last stage's final answer.
func (p *LLMPipeline) Run(ctx context.Context, topic string, hooks Hooks) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "crew.pipeline")
	defer span.End()
	span.SetAttributes(attribute.String("crew.topic", topic))

	stages := p.registry.Stages()
	outputs := make([]StageOutcome, 0, len(stages))

	var result string
	for _, stage := range stages {
		out, err := p.runStage(ctx, topic, stage, outputs, hooks)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("stage %s: %w", stage.Key, err)
		}
		outcome := StageOutcome{Agent: stage, Output: out}
		outputs = append(outputs, outcome)
		hooks.stageComplete(outcome)
		result = out
	}
	return result, nil
}

func (p *LLMPipeline) runStage(ctx context.Context, topic string, stage registry.Agent, prior []StageOutcome, hooks Hooks) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "crew.stage")
	defer span.End()
	span.SetAttributes(attribute.String("crew.stage", stage.Key))

	brief := p.brief(ctx, topic, stage)
	available := p.stageTools(stage)

	messages := []llms.MessageContent{
		textMessage(llms.ChatMessageTypeSystem, systemPrompt(stage, available)),
		textMessage(llms.ChatMessageTypeHuman, taskPrompt(topic, stage, brief, prior)),
	}

	for step := 0; step < p.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		reply, err := p.generate(ctx, p.specialist, messages, llms.WithStopWords([]string{"\n" + observationMarker}))
		if err != nil {
			return "", err
		}

		outcome := ParseReply(reply)
		hooks.step(outcome)

		switch s := outcome.(type) {
		case FinalAnswer:
			return s.Output, nil
		case ToolAction:
			observation := p.callTool(ctx, available, s)
			messages = append(messages,
				textMessage(llms.ChatMessageTypeAI, reply),
				textMessage(llms.ChatMessageTypeHuman, observationMarker+" "+observation),
			)
		default:
			messages = append(messages,
				textMessage(llms.ChatMessageTypeAI, reply),
				textMessage(llms.ChatMessageTypeHuman, continuePrompt),
			)
		}
	}

	p.logger.Warn("stage exhausted step budget",
		"stage", stage.Key,
		"max_steps", p.maxSteps,
	)
	return "", ErrNoFinalAnswer
}

// brief asks the manager for a one-line instruction. Failures are logged and
// the stage runs without a brief.
func (p *LLMPipeline) brief(ctx context.Context, topic string, stage registry.Agent) string {
	if p.manager == nil {
		return ""
	}
	manager := p.registry.Manager()
	prompt := fmt.Sprintf(
		"You are the %s. In one sentence, instruct the %s what to focus on for research on: %s",
		manager.Role, stage.Role, topic,
	)
	reply, err := p.generate(ctx, p.manager, []llms.MessageContent{
		textMessage(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		p.logger.Warn("manager brief failed", "stage", stage.Key, "error", err)
		return ""
	}
	return strings.TrimSpace(firstLine(strings.TrimSpace(reply)))
}

func (p *LLMPipeline) generate(ctx context.Context, m Model, messages []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	opts = append(opts, llms.WithTemperature(p.temperature))
	resp, err := m.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("generate: empty response")
	}
	return resp.Choices[0].Content, nil
}

func (p *LLMPipeline) stageTools(stage registry.Agent) []tools.Tool {
	var out []tools.Tool
	for _, name := range stage.Tools {
		if t, ok := p.tools[name]; ok {
			out = append(out, t)
		} else {
			p.logger.Warn("stage tool not configured", "stage", stage.Key, "tool", name)
		}
	}
	return out
}

func (p *LLMPipeline) callTool(ctx context.Context, available []tools.Tool, action ToolAction) string {
	for _, t := range available {
		if strings.EqualFold(t.Name(), action.Tool) {
			out, err := t.Call(ctx, action.ToolInput)
			if err != nil {
				return "Error: " + err.Error()
			}
			return out
		}
	}
	names := make([]string, len(available))
	for i, t := range available {
		names[i] = t.Name()
	}
	if len(names) == 0 {
		return fmt.Sprintf("Error: tool %q is not available. Answer directly with %q.", action.Tool, finalAnswerMarker)
	}
	return fmt.Sprintf("Error: tool %q is not available. Available tools: %s", action.Tool, strings.Join(names, ", "))
}

func textMessage(role llms.ChatMessageType, text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  role,
		Parts: []llms.ContentPart{llms.TextContent{Text: text}},
	}
}
