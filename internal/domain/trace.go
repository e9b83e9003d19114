// Package domain defines the core data model shared by the sync engine,
// the CLI and the reference server.
package domain

import (
	"encoding/json"
	"time"
)

// SpanKind classifies the unit of work a span records.
type SpanKind string

const (
	SpanKindAgent     SpanKind = "agent"
	SpanKindTool      SpanKind = "tool"
	SpanKindLLM       SpanKind = "llm"
	SpanKindChain     SpanKind = "chain"
	SpanKindRetriever SpanKind = "retriever"
	SpanKindInternal  SpanKind = "internal"
)

// SpanStatus is the lifecycle status of a span or a whole trace.
type SpanStatus string

const (
	SpanStatusRunning   SpanStatus = "running"
	SpanStatusSuccess   SpanStatus = "success"
	SpanStatusError     SpanStatus = "error"
	SpanStatusCancelled SpanStatus = "cancelled"
)

// Span is a single recorded operation within a trace. Spans form a
// forest via ParentSpanID (empty means root).
type Span struct {
	SpanID       string     `json:"span_id"`
	ParentSpanID string     `json:"parent_span_id,omitempty"`
	TraceID      string     `json:"trace_id"`
	Name         string     `json:"name"`
	Kind         SpanKind   `json:"kind"`
	Status       SpanStatus `json:"status"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs float64    `json:"duration_ms,omitempty"`

	AgentID   string `json:"agent_id,omitempty"`
	AgentName string `json:"agent_name,omitempty"`

	InputData  json.RawMessage `json:"input_data,omitempty"`
	OutputData json.RawMessage `json:"output_data,omitempty"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUsd          float64 `json:"cost_usd"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorType    string `json:"error_type,omitempty"`

	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// Complete marks the span finished with the given status, stamping the
// end time and duration.
func (s *Span) Complete(status SpanStatus, output json.RawMessage, now time.Time) {
	s.Status = status
	end := now
	s.EndTime = &end
	if output != nil {
		s.OutputData = output
	}
	if !s.StartTime.IsZero() {
		s.DurationMs = float64(end.Sub(s.StartTime)) / float64(time.Millisecond)
	}
}

// Trace is one complete recorded execution of an agent workflow. Spans
// are kept as a flat list; the tree is derived from ParentSpanID.
type Trace struct {
	TraceID     string     `json:"trace_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      SpanStatus `json:"status"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs float64    `json:"duration_ms,omitempty"`

	Spans      []Span `json:"spans"`
	RootSpanID string `json:"root_span_id,omitempty"`

	TotalTokens  int     `json:"total_tokens"`
	TotalCostUsd float64 `json:"total_cost_usd"`
	AgentCount   int     `json:"agent_count"`
	ToolCalls    int     `json:"tool_calls"`
	LLMCalls     int     `json:"llm_calls"`

	Framework string          `json:"framework,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Recompute folds over the span list and rebuilds every aggregate from
// scratch. Recomputation rather than incremental accumulation keeps the
// aggregates correct under duplicate or out-of-order span delivery.
func (t *Trace) Recompute() {
	t.TotalTokens = 0
	t.TotalCostUsd = 0
	t.AgentCount = 0
	t.ToolCalls = 0
	t.LLMCalls = 0
	root := ""
	for i := range t.Spans {
		s := &t.Spans[i]
		t.TotalTokens += s.TotalTokens
		t.TotalCostUsd += s.CostUsd
		switch s.Kind {
		case SpanKindAgent:
			t.AgentCount++
		case SpanKindTool:
			t.ToolCalls++
		case SpanKindLLM:
			t.LLMCalls++
		}
		if root == "" && s.ParentSpanID == "" {
			root = s.SpanID
		}
	}
	if root != "" {
		t.RootSpanID = root
	}
}

// Complete marks the trace finished, stamping end time and duration.
func (t *Trace) Complete(status SpanStatus, now time.Time) {
	t.Status = status
	end := now
	t.EndTime = &end
	if !t.StartTime.IsZero() {
		t.DurationMs = float64(end.Sub(t.StartTime)) / float64(time.Millisecond)
	}
}

// Clone returns a copy of the trace with its own span slice. The raw
// JSON payloads are shared; callers treat them as immutable.
func (t *Trace) Clone() *Trace {
	cp := *t
	cp.Spans = make([]Span, len(t.Spans))
	copy(cp.Spans, t.Spans)
	return &cp
}
