package domain

import (
	"strings"
	"time"
)

// ControlStatus is the execution control status of a live agent, as
// distinct from the structural trace data.
type ControlStatus string

const (
	ControlStatusRunning ControlStatus = "running"
	ControlStatusPaused  ControlStatus = "paused"
	// ControlStatusStep means "run N spans then return to paused".
	ControlStatusStep    ControlStatus = "step"
	ControlStatusStopped ControlStatus = "stopped"
	// ControlStatusUnknown is the client's belief before any control
	// record has been observed for a trace. Never sent by the server.
	ControlStatusUnknown ControlStatus = "unknown"
)

// ExecutionControl carries the pause/resume/step controls for a trace.
type ExecutionControl struct {
	TraceID string        `json:"trace_id"`
	Status  ControlStatus `json:"status"`

	StepCount   int `json:"step_count"`
	CurrentStep int `json:"current_step"`

	PausedAt     *time.Time `json:"paused_at,omitempty"`
	PausedSpanID string     `json:"paused_span_id,omitempty"`

	ResumeRequested bool `json:"resume_requested"`
}

// Pause marks execution paused, optionally at a span.
func (c *ExecutionControl) Pause(spanID string, now time.Time) {
	c.Status = ControlStatusPaused
	t := now
	c.PausedAt = &t
	c.PausedSpanID = spanID
	c.ResumeRequested = false
}

// Resume marks execution running again.
func (c *ExecutionControl) Resume() {
	c.Status = ControlStatusRunning
	c.ResumeRequested = true
	c.PausedAt = nil
	c.PausedSpanID = ""
}

// Step requests count spans of execution before pausing again.
func (c *ExecutionControl) Step(count int) {
	c.Status = ControlStatusStep
	c.StepCount = count
	c.CurrentStep = 0
	c.ResumeRequested = true
}

// AgentState is the editable live state of a running agent: its memory,
// context and variables, plus the execution control block.
type AgentState struct {
	TraceID string `json:"trace_id"`

	CurrentSpanID  string `json:"current_span_id,omitempty"`
	CurrentAgentID string `json:"current_agent_id,omitempty"`

	Memory    map[string]any `json:"memory"`
	Context   map[string]any `json:"context"`
	Variables map[string]any `json:"variables"`

	Control ExecutionControl `json:"control"`

	LastUpdated time.Time `json:"last_updated"`
}

// NewAgentState returns an initialized state for a trace.
func NewAgentState(traceID string) *AgentState {
	return &AgentState{
		TraceID:     traceID,
		Memory:      map[string]any{},
		Context:     map[string]any{},
		Variables:   map[string]any{},
		Control:     ExecutionControl{TraceID: traceID, Status: ControlStatusRunning},
		LastUpdated: time.Now().UTC(),
	}
}

// ModifyPath sets a value at a dotted path such as "memory.key" or
// "variables.x.y", creating intermediate maps as needed. It reports
// whether the path was valid.
func (s *AgentState) ModifyPath(path string, value any) bool {
	parts := strings.Split(path, ".")
	if len(parts) < 2 {
		return false
	}

	var container map[string]any
	switch parts[0] {
	case "memory":
		if s.Memory == nil {
			s.Memory = map[string]any{}
		}
		container = s.Memory
	case "context":
		if s.Context == nil {
			s.Context = map[string]any{}
		}
		container = s.Context
	case "variables":
		if s.Variables == nil {
			s.Variables = map[string]any{}
		}
		container = s.Variables
	default:
		return false
	}

	keys := parts[1:]
	for _, key := range keys[:len(keys)-1] {
		next, ok := container[key]
		if !ok {
			m := map[string]any{}
			container[key] = m
			container = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return false
		}
		container = m
	}
	container[keys[len(keys)-1]] = value
	s.LastUpdated = time.Now().UTC()
	return true
}
