// Package crew runs the four-stage market-research pipeline and reports its
// progress through step and stage hooks.
package crew

import (
	"context"
	"errors"

	"github.com/flexinfer/mentatlab/services/analyst-go/internal/registry"
)

// ErrNoFinalAnswer is returned when a stage exhausts its step budget without
// producing a final answer.
var ErrNoFinalAnswer = errors.New("stage produced no final answer")

// StepOutcome is one primitive step of the active stage. It is one of
// FinalAnswer, ToolAction or Progress.
type StepOutcome interface {
	isStep()
}

// FinalAnswer ends a stage. Output is the extracted answer; Text is the raw
// model reply it came from.
type FinalAnswer struct {
	Output string
	Text   string
}

// ToolAction is an intermediate tool invocation.
type ToolAction struct {
	Tool      string
	ToolInput string
	Log       string
}

// Progress is any other textual step.
type Progress struct {
	Text string
}

func (FinalAnswer) isStep() {}
func (ToolAction) isStep()  {}
func (Progress) isStep()    {}

// StageOutcome is reported once per finished stage.
type StageOutcome struct {
	Agent  registry.Agent
	Output string
}

// Hooks receive pipeline progress. Either field may be nil. Hooks are invoked
// from the goroutine running the pipeline, in order.
type Hooks struct {
	OnStep          func(StepOutcome)
	OnStageComplete func(StageOutcome)
}

func (h Hooks) step(s StepOutcome) {
	if h.OnStep != nil {
		h.OnStep(s)
	}
}

func (h Hooks) stageComplete(o StageOutcome) {
	if h.OnStageComplete != nil {
		h.OnStageComplete(o)
	}
}

// Pipeline runs every stage for topic and returns the aggregate result. Run
// blocks until the pipeline finishes.
type Pipeline interface {
	Run(ctx context.Context, topic string, hooks Hooks) (string, error)
}
