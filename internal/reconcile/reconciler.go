// Package reconcile owns the canonical in-memory copy of the currently
// selected trace and merges snapshot fetches and incremental push
// events into one consistent tree.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
)

// Getter fetches a JSON resource; satisfied by the request gateway.
type Getter interface {
	Get(ctx context.Context, path string, out any) error
}

// Reconciler merges trace events. Merge operations are total: foreign
// or duplicate events are filtered or overwritten, never rejected.
type Reconciler struct {
	api Getter

	mu     sync.Mutex
	trace  *domain.Trace
	depths map[string]int
}

// New creates a reconciler fetching snapshots through api.
func New(api Getter) *Reconciler {
	return &Reconciler{api: api}
}

// LoadSnapshot fetches the full trace and replaces any previous
// in-memory trace wholesale. The snapshot is the authoritative baseline
// that later incremental events are merged into.
func (r *Reconciler) LoadSnapshot(ctx context.Context, traceID string) (*domain.Trace, error) {
	var t domain.Trace
	if err := r.api.Get(ctx, "/traces/"+traceID, &t); err != nil {
		return nil, fmt.Errorf("load trace snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = &t
	r.depths = nil
	r.trace.Recompute()
	return r.trace.Clone(), nil
}

// Clear discards the in-memory trace.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trace = nil
	r.depths = nil
}

// TraceID returns the id of the loaded trace, or "".
func (r *Reconciler) TraceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return ""
	}
	return r.trace.TraceID
}

// Snapshot returns a copy of the current trace for the UI, or nil.
func (r *Reconciler) Snapshot() *domain.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return nil
	}
	return r.trace.Clone()
}

// ApplySpanCreated merges a span_created event.
func (r *Reconciler) ApplySpanCreated(span domain.Span) {
	r.upsert(span)
}

// ApplySpanUpdated merges a span_updated event. An update arriving
// before its create is treated as an implicit create, so create/update
// pairs are safe in either order.
func (r *Reconciler) ApplySpanUpdated(span domain.Span) {
	r.upsert(span)
}

// upsert replaces the span with the same id or appends it, then
// recomputes every aggregate. Replace-by-key makes the merge idempotent
// under at-least-once delivery.
func (r *Reconciler) upsert(span domain.Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil || span.TraceID != r.trace.TraceID {
		return
	}

	replaced := false
	for i := range r.trace.Spans {
		if r.trace.Spans[i].SpanID == span.SpanID {
			r.trace.Spans[i] = span
			replaced = true
			break
		}
	}
	if !replaced {
		r.trace.Spans = append(r.trace.Spans, span)
	}
	r.depths = nil
	r.trace.Recompute()
}

// ApplyTraceUpdated merges trace-level fields from a trace_updated
// event, keeping the span list intact.
func (r *Reconciler) ApplyTraceUpdated(meta domain.Trace) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil || meta.TraceID != r.trace.TraceID {
		return
	}

	r.trace.Name = meta.Name
	r.trace.Description = meta.Description
	r.trace.Status = meta.Status
	r.trace.StartTime = meta.StartTime
	r.trace.EndTime = meta.EndTime
	r.trace.DurationMs = meta.DurationMs
	r.trace.Framework = meta.Framework
	if meta.Metadata != nil {
		r.trace.Metadata = meta.Metadata
	}
	r.trace.Recompute()
}

// DepthOf returns the tree depth of a span (root = 0), derived from the
// parent chain with memoization. A missing or cyclic parent chain
// terminates at the last resolvable ancestor.
func (r *Reconciler) DepthOf(spanID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depthLocked(spanID)
}

func (r *Reconciler) depthLocked(spanID string) int {
	if r.trace == nil {
		return 0
	}
	if r.depths == nil {
		r.depths = make(map[string]int, len(r.trace.Spans))
	}

	parents := make(map[string]string, len(r.trace.Spans))
	for i := range r.trace.Spans {
		parents[r.trace.Spans[i].SpanID] = r.trace.Spans[i].ParentSpanID
	}

	var walk func(id string, seen map[string]bool) int
	walk = func(id string, seen map[string]bool) int {
		if d, ok := r.depths[id]; ok {
			return d
		}
		parent, ok := parents[id]
		if !ok || parent == "" || seen[id] {
			r.depths[id] = 0
			return 0
		}
		seen[id] = true
		d := 1 + walk(parent, seen)
		r.depths[id] = d
		return d
	}
	return walk(spanID, make(map[string]bool))
}

// DisplayOrder returns the spans sorted for display by (start time,
// depth, span id). This is a pure projection; the canonical span list
// keeps merge order.
func (r *Reconciler) DisplayOrder() []domain.Span {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.trace == nil {
		return nil
	}

	out := make([]domain.Span, len(r.trace.Spans))
	copy(out, r.trace.Spans)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		di, dj := r.depthLocked(out[i].SpanID), r.depthLocked(out[j].SpanID)
		if di != dj {
			return di < dj
		}
		return out[i].SpanID < out[j].SpanID
	})
	return out
}
