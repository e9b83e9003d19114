package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTraceRecompute(t *testing.T) {
	start := time.Now().UTC()
	trace := &Trace{
		TraceID:   "t1",
		Name:      "research",
		Status:    SpanStatusRunning,
		StartTime: start,
		Spans: []Span{
			{SpanID: "root", TraceID: "t1", Kind: SpanKindAgent, TotalTokens: 100, CostUsd: 0.01},
			{SpanID: "s2", ParentSpanID: "root", TraceID: "t1", Kind: SpanKindLLM, TotalTokens: 250, CostUsd: 0.05},
			{SpanID: "s3", ParentSpanID: "root", TraceID: "t1", Kind: SpanKindTool},
		},
	}

	trace.Recompute()

	if trace.TotalTokens != 350 {
		t.Fatalf("expected 350 tokens, got %d", trace.TotalTokens)
	}
	if trace.TotalCostUsd != 0.06 {
		t.Fatalf("expected cost 0.06, got %f", trace.TotalCostUsd)
	}
	if trace.AgentCount != 1 || trace.ToolCalls != 1 || trace.LLMCalls != 1 {
		t.Fatalf("unexpected counts: agents=%d tools=%d llm=%d", trace.AgentCount, trace.ToolCalls, trace.LLMCalls)
	}
	if trace.RootSpanID != "root" {
		t.Fatalf("expected root span, got %q", trace.RootSpanID)
	}
}

func TestTraceRecomputeIsIdempotent(t *testing.T) {
	trace := &Trace{
		TraceID: "t1",
		Spans: []Span{
			{SpanID: "a", Kind: SpanKindTool, TotalTokens: 10},
		},
	}

	trace.Recompute()
	trace.Recompute()
	trace.Recompute()

	if trace.TotalTokens != 10 || trace.ToolCalls != 1 {
		t.Fatalf("aggregates accumulated instead of recomputed: tokens=%d tools=%d", trace.TotalTokens, trace.ToolCalls)
	}
}

func TestSpanComplete(t *testing.T) {
	start := time.Now().UTC()
	span := &Span{SpanID: "s1", Status: SpanStatusRunning, StartTime: start}

	end := start.Add(1500 * time.Millisecond)
	span.Complete(SpanStatusSuccess, json.RawMessage(`{"answer":42}`), end)

	if span.Status != SpanStatusSuccess {
		t.Fatalf("expected success, got %s", span.Status)
	}
	if span.EndTime == nil || !span.EndTime.Equal(end) {
		t.Fatalf("end time not stamped: %v", span.EndTime)
	}
	if span.DurationMs != 1500 {
		t.Fatalf("expected 1500ms, got %f", span.DurationMs)
	}
	if string(span.OutputData) != `{"answer":42}` {
		t.Fatalf("output not set: %s", span.OutputData)
	}
}

func TestTraceCloneIndependentSpans(t *testing.T) {
	trace := &Trace{
		TraceID: "t1",
		Spans:   []Span{{SpanID: "a", Status: SpanStatusRunning}},
	}

	clone := trace.Clone()
	clone.Spans[0].Status = SpanStatusError

	if trace.Spans[0].Status != SpanStatusRunning {
		t.Fatalf("clone shares span storage with original")
	}
}
