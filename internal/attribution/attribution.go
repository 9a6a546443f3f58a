// Package attribution turns anonymous pipeline steps into agent-attributed
// crew events.
//
// One executor drives every stage, so a step does not say which agent it
// belongs to. The Attributor keeps an explicit current-stage pointer that only
// stage completions move, and labels each step with it.
package attribution

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/crew"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/metrics"
	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
	"github.com/flexinfer/mentatlab/services/analyst-go/pkg/types"
)

// MaxToolInput bounds the serialized tool input carried by tool_use events.
const MaxToolInput = 500

// Emitter receives attributed events. *bridge.Bridge satisfies it.
type Emitter interface {
	Push(e types.Event)
}

// Attributor tracks the active stage and emits events on its behalf.
type Attributor struct {
	emitter Emitter
	manager registry.Agent
	stages  []registry.Agent

	mu           sync.Mutex
	current      int // -1 until Begin: steps are attributed to the manager
	stageStarted time.Time
	now          func() time.Time
}

// New creates an Attributor over the given stage order.
func New(emitter Emitter, manager registry.Agent, stages []registry.Agent) *Attributor {
	return &Attributor{
		emitter: emitter,
		manager: manager,
		stages:  append([]registry.Agent(nil), stages...),
		current: -1,
		now:     time.Now,
	}
}

// Begin makes the first stage current and announces it.
func (a *Attributor) Begin() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.stages) == 0 || a.current >= 0 {
		return
	}
	a.current = 0
	a.startLocked(a.stages[0])
}

// Current returns the agent steps are currently attributed to.
func (a *Attributor) Current() registry.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLocked()
}

// Hooks returns pipeline hooks bound to this Attributor.
func (a *Attributor) Hooks() crew.Hooks {
	return crew.Hooks{
		OnStep:          a.OnStep,
		OnStageComplete: a.OnStageComplete,
	}
}

// OnStep classifies one step of the current stage and emits at most one event.
func (a *Attributor) OnStep(step crew.StepOutcome) {
	a.mu.Lock()
	agent := a.currentLocked()
	a.mu.Unlock()

	switch s := step.(type) {
	case crew.FinalAnswer:
		raw := s.Output
		if raw == "" {
			raw = s.Text
		}
		a.emitOutput(agent, raw)
	case crew.ToolAction:
		a.emitter.Push(types.Event{
			Type:      types.EventTypeToolUse,
			Agent:     agent.Key,
			Role:      agent.Role,
			Tool:      s.Tool,
			ToolInput: truncateRunes(s.ToolInput, MaxToolInput),
			Content:   "Using tool: " + s.Tool,
		})
	case crew.Progress:
		a.emitOutput(agent, s.Text)
	case nil:
	default:
		a.emitOutput(agent, fmt.Sprint(s))
	}
}

// OnStageComplete closes the current stage and, when another stage follows,
// emits the hand-off and advances the pointer. After the last stage the
// pointer stays where it is.
func (a *Attributor) OnStageComplete(crew.StageOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	finishing := a.currentLocked()
	elapsed := a.now().Sub(a.stageStarted)
	if !a.stageStarted.IsZero() {
		metrics.StageDuration.WithLabelValues(finishing.Key).Observe(elapsed.Seconds())
	}

	complete := types.Event{
		Type:  types.EventTypeAgentComplete,
		Agent: finishing.Key,
		Role:  finishing.Role,
	}
	if !a.stageStarted.IsZero() {
		complete.ElapsedSeconds = types.Float(float64(elapsed.Round(100*time.Millisecond)) / float64(time.Second))
	}
	a.emitter.Push(complete)

	next := a.current + 1
	if next >= len(a.stages) {
		return
	}
	to := a.stages[next]
	a.emitter.Push(types.Event{
		Type:        types.EventTypeDelegation,
		From:        finishing.Key,
		To:          to.Key,
		Instruction: "Delegating to " + to.Role,
	})
	a.current = next
	a.startLocked(to)
}

func (a *Attributor) currentLocked() registry.Agent {
	if a.current < 0 || a.current >= len(a.stages) {
		return a.manager
	}
	return a.stages[a.current]
}

func (a *Attributor) startLocked(agent registry.Agent) {
	a.stageStarted = a.now()
	a.emitter.Push(types.Event{
		Type:        types.EventTypeAgentStart,
		Agent:       agent.Key,
		Role:        agent.Role,
		Model:       agent.Model,
		VM:          agent.VM,
		TaskSummary: agent.Role + " is working...",
	})
}

func (a *Attributor) emitOutput(agent registry.Agent, raw string) {
	content := CleanContent(raw)
	if content == "" {
		return
	}
	a.emitter.Push(types.Event{
		Type:    types.EventTypeAgentOutput,
		Agent:   agent.Key,
		Role:    agent.Role,
		Content: content,
	})
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
