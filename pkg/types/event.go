package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType tags an event with its place in the crew wire vocabulary.
type EventType string

const (
	EventTypeAgentStart    EventType = "agent_start"
	EventTypeAgentOutput   EventType = "agent_output"
	EventTypeToolUse       EventType = "tool_use"
	EventTypeDelegation    EventType = "delegation"
	EventTypeAgentComplete EventType = "agent_complete"
	EventTypeChartCreated  EventType = "chart_created"
	EventTypeCrewComplete  EventType = "crew_complete"
	EventTypeError         EventType = "error"

	// Transport-only markers, never stored in a run log.
	EventTypeHello     EventType = "hello"
	EventTypeStreamEnd EventType = "stream_end"
)

// Event is one immutable fact about run progress. Payload fields are flat so
// the JSON form matches what stream consumers expect; unused fields are
// omitted.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	RunID     string    `json:"run_id,omitempty"`

	Agent       string `json:"agent,omitempty"`
	Role        string `json:"role,omitempty"`
	Model       string `json:"model,omitempty"`
	VM          string `json:"vm,omitempty"`
	TaskSummary string `json:"task_summary,omitempty"`
	Content     string `json:"content,omitempty"`

	Tool      string `json:"tool,omitempty"`
	ToolInput string `json:"tool_input,omitempty"`

	From        string `json:"from,omitempty"`
	To          string `json:"to,omitempty"`
	Instruction string `json:"instruction,omitempty"`

	ChartTitle string `json:"chart_title,omitempty"`
	Path       string `json:"path,omitempty"`

	ElapsedSeconds *float64 `json:"elapsed_seconds,omitempty"`
	TotalSeconds   *float64 `json:"total_seconds,omitempty"`
	ReportPath     string   `json:"report_path,omitempty"`
	Charts         []string `json:"charts,omitzero"`

	Message     string `json:"message,omitempty"`
	Recoverable *bool  `json:"recoverable,omitempty"`
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	if e.Charts != nil {
		e.Charts = append(make([]string, 0, len(e.Charts)), e.Charts...)
	}
	if e.ElapsedSeconds != nil {
		v := *e.ElapsedSeconds
		e.ElapsedSeconds = &v
	}
	if e.TotalSeconds != nil {
		v := *e.TotalSeconds
		e.TotalSeconds = &v
	}
	if e.Recoverable != nil {
		v := *e.Recoverable
		e.Recoverable = &v
	}
	return e
}

// ToSSE formats the event for the Server-Sent Events protocol using the log
// index as the event id.
// Format: id: <id>\nevent: <type>\ndata: <json>\n\n
func (e Event) ToSSE(id int) []byte {
	data, _ := json.Marshal(e)
	return []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, e.Type, data))
}

// Float returns a pointer to v, for optional numeric payload fields.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for optional boolean payload fields.
func Bool(v bool) *bool { return &v }
