package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTrace(t *testing.T, s *SQLiteStore, traceID string) *domain.Trace {
	t.Helper()
	trace := &domain.Trace{
		TraceID:   traceID,
		Name:      "research",
		Status:    domain.SpanStatusRunning,
		StartTime: time.Now().UTC().Truncate(time.Second),
		Metadata:  json.RawMessage(`{"env":"test"}`),
	}
	if err := s.CreateTrace(context.Background(), trace); err != nil {
		t.Fatalf("CreateTrace failed: %v", err)
	}
	return trace
}

func TestTraceRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedTrace(t, s, "t1")

	got, err := s.GetTrace(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTrace failed: %v", err)
	}
	if got == nil || got.Name != "research" || got.Status != domain.SpanStatusRunning {
		t.Fatalf("unexpected trace: %+v", got)
	}
	if string(got.Metadata) != `{"env":"test"}` {
		t.Fatalf("metadata lost: %s", got.Metadata)
	}

	missing, err := s.GetTrace(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing trace, got %+v err=%v", missing, err)
	}
}

func TestSpanUpsertAndAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	trace := seedTrace(t, s, "t1")

	root := &domain.Span{
		SpanID:    "root",
		TraceID:   "t1",
		Name:      "orchestrate",
		Kind:      domain.SpanKindAgent,
		Status:    domain.SpanStatusRunning,
		StartTime: trace.StartTime,
	}
	llm := &domain.Span{
		SpanID:       "llm1",
		ParentSpanID: "root",
		TraceID:      "t1",
		Name:         "completion",
		Kind:         domain.SpanKindLLM,
		Status:       domain.SpanStatusSuccess,
		StartTime:    trace.StartTime.Add(time.Second),
		TotalTokens:  300,
		CostUsd:      0.02,
	}
	if err := s.UpsertSpan(ctx, root); err != nil {
		t.Fatalf("UpsertSpan failed: %v", err)
	}
	if err := s.UpsertSpan(ctx, llm); err != nil {
		t.Fatalf("UpsertSpan failed: %v", err)
	}

	// Upsert with the same id replaces, never duplicates.
	llm.TotalTokens = 350
	if err := s.UpsertSpan(ctx, llm); err != nil {
		t.Fatalf("UpsertSpan replace failed: %v", err)
	}

	got, err := s.GetTrace(ctx, "t1")
	if err != nil {
		t.Fatalf("GetTrace failed: %v", err)
	}
	if len(got.Spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(got.Spans))
	}
	if got.TotalTokens != 350 || got.LLMCalls != 1 || got.AgentCount != 1 {
		t.Fatalf("unexpected aggregates: %+v", got)
	}
	if got.RootSpanID != "root" {
		t.Fatalf("root span not derived: %q", got.RootSpanID)
	}

	span, err := s.GetSpan(ctx, "t1", "llm1")
	if err != nil {
		t.Fatalf("GetSpan failed: %v", err)
	}
	if span == nil || span.TotalTokens != 350 {
		t.Fatalf("unexpected span: %+v", span)
	}
}

func TestListTraces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := &domain.Trace{TraceID: "t1", Name: "first", Status: domain.SpanStatusSuccess, StartTime: time.Now().UTC().Add(-time.Hour)}
	newer := &domain.Trace{TraceID: "t2", Name: "second", Status: domain.SpanStatusRunning, StartTime: time.Now().UTC()}
	if err := s.CreateTrace(ctx, older); err != nil {
		t.Fatalf("CreateTrace failed: %v", err)
	}
	if err := s.CreateTrace(ctx, newer); err != nil {
		t.Fatalf("CreateTrace failed: %v", err)
	}

	traces, err := s.ListTraces(ctx, 0, 10, "")
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(traces) != 2 || traces[0].TraceID != "t2" {
		t.Fatalf("expected newest-first, got %+v", traces)
	}

	running, err := s.ListTraces(ctx, 0, 10, "running")
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(running) != 1 || running[0].TraceID != "t2" {
		t.Fatalf("status filter broken: %+v", running)
	}

	n, err := s.CountTraces(ctx, "")
	if err != nil || n != 2 {
		t.Fatalf("CountTraces = %d err=%v", n, err)
	}
}

func TestDeleteTraceCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	trace := seedTrace(t, s, "t1")

	if err := s.UpsertSpan(ctx, &domain.Span{
		SpanID: "s1", TraceID: "t1", Name: "x",
		Kind: domain.SpanKindTool, Status: domain.SpanStatusRunning,
		StartTime: trace.StartTime,
	}); err != nil {
		t.Fatalf("UpsertSpan failed: %v", err)
	}
	if err := s.SaveState(ctx, domain.NewAgentState("t1")); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	if err := s.DeleteTrace(ctx, "t1"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}

	span, err := s.GetSpan(ctx, "t1", "s1")
	if err != nil || span != nil {
		t.Fatalf("span survived delete: %+v err=%v", span, err)
	}
	state, err := s.GetState(ctx, "t1")
	if err != nil || state != nil {
		t.Fatalf("state survived delete: %+v err=%v", state, err)
	}
}

func TestUpdateTraceMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateTrace(context.Background(), &domain.Trace{TraceID: "ghost", Status: domain.SpanStatusSuccess})
	if err == nil {
		t.Fatalf("expected error updating missing trace")
	}
}

func TestStateRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedTrace(t, s, "t1")

	state := domain.NewAgentState("t1")
	state.Memory["plan"] = "step 1"
	state.Control.Pause("s1", time.Now().UTC())
	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	got, err := s.GetState(ctx, "t1")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got == nil || got.Memory["plan"] != "step 1" {
		t.Fatalf("unexpected state: %+v", got)
	}
	if got.Control.Status != domain.ControlStatusPaused || got.Control.PausedSpanID != "s1" {
		t.Fatalf("control block lost: %+v", got.Control)
	}

	missing, err := s.GetState(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing state, got %+v err=%v", missing, err)
	}
}
