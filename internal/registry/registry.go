// Package registry holds the agent identities that make up a crew: the
// manager and the ordered specialist stages it delegates to.
package registry

import (
	"errors"
	"strings"
)

// ErrAgentNotFound is returned when no agent has the requested key.
var ErrAgentNotFound = errors.New("agent not found")

// Venue labels describe where an agent's model is served.
const (
	VenueOrchestrator = "orchestrator"
	VenueSpecialist   = "specialist"
)

// Agent is one logical crew member.
type Agent struct {
	// Key is the short identifier used in events (e.g., "researcher")
	Key string `json:"key"`

	// Role is the display name (e.g., "Market Research Specialist")
	Role string `json:"role"`

	// Model is the Ollama model name without provider prefix
	Model string `json:"model"`

	// VM is the execution-venue label
	VM string `json:"vm"`

	// Goal is a one-line statement of what the agent produces
	Goal string `json:"goal,omitempty"`

	// Backstory frames the agent's system prompt
	Backstory string `json:"-"`

	// Tools names the crew tools the agent may call
	Tools []string `json:"tools,omitempty"`
}

// Registry exposes the crew layout. Implementations must be safe for
// concurrent use.
type Registry interface {
	// Manager returns the orchestrating agent.
	Manager() Agent

	// Stages returns the specialist agents in pipeline order.
	Stages() []Agent

	// Get returns an agent by key. Returns ErrAgentNotFound if unknown.
	Get(key string) (Agent, error)

	// List returns the manager followed by every stage agent.
	List() []Agent
}

// ModelName strips a provider prefix such as "ollama/" from a model string.
func ModelName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}
