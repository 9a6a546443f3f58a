package crew

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/tools"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
)

// scriptedModel replies with a fixed sequence and records every prompt.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, messages)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "Final Answer: (out of script)"}}}, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: reply}}}, nil
}

func lastText(messages []llms.MessageContent) string {
	last := messages[len(messages)-1]
	var b strings.Builder
	for _, p := range last.Parts {
		if tc, ok := p.(llms.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

type recordingTool struct {
	name   string
	inputs []string
}

func (t *recordingTool) Name() string        { return t.name }
func (t *recordingTool) Description() string { return "test tool" }
func (t *recordingTool) Call(ctx context.Context, input string) (string, error) {
	t.inputs = append(t.inputs, input)
	return "Chart saved to: charts/x.png", nil
}

type hookRecorder struct {
	steps  []StepOutcome
	stages []StageOutcome
}

func (r *hookRecorder) hooks() Hooks {
	return Hooks{
		OnStep:          func(s StepOutcome) { r.steps = append(r.steps, s) },
		OnStageComplete: func(o StageOutcome) { r.stages = append(r.stages, o) },
	}
}

func TestLLMPipeline_Run(t *testing.T) {
	reg := registry.NewDefaultRegistry("ollama/big", "ollama/small")
	chart := &recordingTool{name: registry.ToolChart}
	specialist := &scriptedModel{replies: []string{
		"Final Answer: research notes",
		"Thinking about numbers...",
		"Final Answer: {\"chart_type\": \"bar\"}",
		"Thought: draw\nAction: ChartTool\nAction Input: {\"chart_type\": \"bar\"}",
		"Final Answer: charts/x.png",
		"Final Answer: # Report",
	}}

	p, err := NewLLMPipeline(LLMConfig{
		Specialist: specialist,
		Registry:   reg,
		Tools:      []tools.Tool{chart},
	})
	require.NoError(t, err)

	rec := &hookRecorder{}
	result, err := p.Run(context.Background(), "EV charging", rec.hooks())
	require.NoError(t, err)
	assert.Equal(t, "# Report", result)

	require.Len(t, rec.stages, 4)
	for i, stage := range reg.Stages() {
		assert.Equal(t, stage.Key, rec.stages[i].Agent.Key)
	}
	assert.Equal(t, "research notes", rec.stages[0].Output)

	require.Len(t, rec.steps, 6)
	assert.IsType(t, Progress{}, rec.steps[1])
	assert.IsType(t, ToolAction{}, rec.steps[3])
	assert.Equal(t, []string{`{"chart_type": "bar"}`}, chart.inputs)

	// The observation from the tool is fed back to the model.
	require.Len(t, specialist.calls, 6)
	assert.Equal(t, "Observation: Chart saved to: charts/x.png", lastText(specialist.calls[4]))
	assert.Equal(t, continuePrompt, lastText(specialist.calls[2]))

	// Later stages see earlier outputs.
	assert.Contains(t, lastText(specialist.calls[1]), "research notes")
}

func TestLLMPipeline_ManagerBrief(t *testing.T) {
	reg := registry.NewMemoryRegistry(
		registry.Agent{Key: "manager", Role: "Director"},
		[]registry.Agent{{Key: "researcher", Role: "Researcher"}},
	)
	manager := &scriptedModel{replies: []string{"Focus on pricing.\nignored second line"}}
	specialist := &scriptedModel{replies: []string{"Final Answer: ok"}}

	p, err := NewLLMPipeline(LLMConfig{Manager: manager, Specialist: specialist, Registry: reg})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), "topic", Hooks{})
	require.NoError(t, err)
	assert.Contains(t, lastText(specialist.calls[0]), "Instruction from your director: Focus on pricing.")
	assert.NotContains(t, lastText(specialist.calls[0]), "ignored second line")
}

func TestLLMPipeline_Errors(t *testing.T) {
	reg := registry.NewMemoryRegistry(
		registry.Agent{Key: "manager"},
		[]registry.Agent{{Key: "researcher", Role: "Researcher"}, {Key: "writer", Role: "Writer"}},
	)

	t.Run("model failure", func(t *testing.T) {
		p, err := NewLLMPipeline(LLMConfig{Specialist: &scriptedModel{err: errors.New("connection refused")}, Registry: reg})
		require.NoError(t, err)

		rec := &hookRecorder{}
		_, err = p.Run(context.Background(), "topic", rec.hooks())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stage researcher")
		assert.Contains(t, err.Error(), "connection refused")
		assert.Empty(t, rec.stages)
	})

	t.Run("step budget", func(t *testing.T) {
		replies := make([]string, DefaultMaxSteps)
		for i := range replies {
			replies[i] = "still thinking"
		}
		p, err := NewLLMPipeline(LLMConfig{Specialist: &scriptedModel{replies: replies}, Registry: reg})
		require.NoError(t, err)

		_, err = p.Run(context.Background(), "topic", Hooks{})
		assert.ErrorIs(t, err, ErrNoFinalAnswer)
	})

	t.Run("unknown tool", func(t *testing.T) {
		specialist := &scriptedModel{replies: []string{
			"Action: WebSearch\nAction Input: ev",
			"Final Answer: a",
			"Final Answer: b",
		}}
		p, err := NewLLMPipeline(LLMConfig{Specialist: specialist, Registry: reg})
		require.NoError(t, err)

		result, err := p.Run(context.Background(), "topic", Hooks{})
		require.NoError(t, err)
		assert.Equal(t, "b", result)
		assert.Contains(t, lastText(specialist.calls[1]), `tool "WebSearch" is not available`)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p, err := NewLLMPipeline(LLMConfig{Specialist: &scriptedModel{}, Registry: reg})
		require.NoError(t, err)

		_, err = p.Run(ctx, "topic", Hooks{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("config", func(t *testing.T) {
		_, err := NewLLMPipeline(LLMConfig{Registry: reg})
		assert.Error(t, err)
		_, err = NewLLMPipeline(LLMConfig{Specialist: &scriptedModel{}})
		assert.Error(t, err)
	})
}
