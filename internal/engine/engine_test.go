package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/credentials"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
)

func newTestEngine(t *testing.T, handler http.HandlerFunc) *Engine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	credPath := filepath.Join(t.TempDir(), "credentials.json")
	if err := credentials.NewStore(credPath).Save(&credentials.Credential{
		AccessToken:  "token",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}); err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	eng, err := New(Options{ServerURL: server.URL, CredentialsPath: credPath})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(eng.Close)
	return eng
}

func TestSelectTraceLoadsSnapshotAndControl(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/traces/t1":
			json.NewEncoder(w).Encode(map[string]any{
				"trace_id":   "t1",
				"name":       "research",
				"status":     "running",
				"start_time": time.Now().UTC(),
				"spans": []map[string]any{
					{"span_id": "root", "trace_id": "t1", "name": "orchestrate", "kind": "agent", "status": "running", "start_time": time.Now().UTC()},
				},
			})
		case "/state/t1":
			json.NewEncoder(w).Encode(map[string]any{
				"trace_id": "t1",
				"control":  map[string]any{"trace_id": "t1", "status": "paused"},
			})
		default:
			http.NotFound(w, r)
		}
	})

	if err := eng.SelectTrace(context.Background(), "t1"); err != nil {
		t.Fatalf("SelectTrace failed: %v", err)
	}

	if eng.SelectedTrace() != "t1" {
		t.Fatalf("selected = %q", eng.SelectedTrace())
	}
	trace := eng.Trace()
	if trace == nil || trace.Name != "research" || len(trace.Spans) != 1 {
		t.Fatalf("snapshot not loaded: %+v", trace)
	}
	if eng.ControlStatus() != domain.ControlStatusPaused {
		t.Fatalf("control status = %s, want paused", eng.ControlStatus())
	}

	subs := eng.Transport.Subscriptions()
	if len(subs) != 1 || subs[0] != "t1" {
		t.Fatalf("subscriptions = %v", subs)
	}
}

func TestSelectTraceMissingControlRecord(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/traces/t1":
			json.NewEncoder(w).Encode(map[string]any{
				"trace_id": "t1", "name": "n", "status": "running",
				"start_time": time.Now().UTC(), "spans": []any{},
			})
		default:
			// No /state record yet.
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"State not found"}`))
		}
	})

	if err := eng.SelectTrace(context.Background(), "t1"); err != nil {
		t.Fatalf("SelectTrace failed on missing control record: %v", err)
	}
	if eng.ControlStatus() != domain.ControlStatusUnknown {
		t.Fatalf("control status = %s, want unknown", eng.ControlStatus())
	}
}

func TestSelectTraceFailureRevertsSelection(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail":"Trace not found"}`))
	})

	if err := eng.SelectTrace(context.Background(), "ghost"); err == nil {
		t.Fatalf("expected error selecting missing trace")
	}
	if eng.SelectedTrace() != "" || eng.Trace() != nil {
		t.Fatalf("failed selection left state behind")
	}
}

func TestDeselectTrace(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/traces/t1":
			json.NewEncoder(w).Encode(map[string]any{
				"trace_id": "t1", "name": "n", "status": "running",
				"start_time": time.Now().UTC(), "spans": []any{},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"not found"}`))
		}
	})

	if err := eng.SelectTrace(context.Background(), "t1"); err != nil {
		t.Fatalf("SelectTrace failed: %v", err)
	}
	eng.DeselectTrace()

	if eng.SelectedTrace() != "" || eng.Trace() != nil {
		t.Fatalf("deselect left state behind")
	}
	if len(eng.Transport.Subscriptions()) != 0 {
		t.Fatalf("deselect left subscriptions: %v", eng.Transport.Subscriptions())
	}
}

func TestListTraces(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/traces" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Fatalf("limit = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"traces": []map[string]any{
				{"trace_id": "t1", "name": "a", "status": "success", "start_time": time.Now().UTC()},
			},
			"total": 1,
		})
	})

	traces, err := eng.ListTraces(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(traces) != 1 || traces[0].TraceID != "t1" {
		t.Fatalf("unexpected traces: %+v", traces)
	}
}

func TestOnChangeUnregister(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	calls := 0
	off := eng.OnChange(func() { calls++ })
	eng.DeselectTrace()
	off()
	eng.DeselectTrace()

	if calls != 1 {
		t.Fatalf("subscriber fired %d times, want 1", calls)
	}
}
