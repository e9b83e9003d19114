// Package engine composes the session manager, request gateway,
// realtime transport, trace reconciler and execution control
// coordinator into the surface the UI layer consumes.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/control"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/credentials"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/gateway"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/protocol"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/realtime"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/reconcile"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/session"
)

// Options configures a new Engine.
type Options struct {
	// ServerURL is the HTTP base URL, e.g. http://localhost:8000.
	ServerURL string
	// WebsocketURL overrides the derived ws:// URL when set.
	WebsocketURL string
	// CredentialsPath overrides the default credential file location.
	CredentialsPath string
}

// Engine is the live trace synchronization engine. It has an explicit
// lifecycle — New, Connect, Close — and holds no package-level state, so
// multiple isolated engines can coexist (e.g. in tests).
type Engine struct {
	Session   *session.Manager
	Gateway   *gateway.Client
	Transport *realtime.Transport

	reconciler  *reconcile.Reconciler
	coordinator *control.Coordinator

	mu          sync.Mutex
	selected    string
	subscribers map[int]func()
	nextSubID   int
	unregister  []func()
}

// New wires up an engine against the given server.
func New(opts Options) (*Engine, error) {
	base := strings.TrimSuffix(opts.ServerURL, "/")
	if base == "" {
		return nil, fmt.Errorf("server URL required")
	}

	credPath := opts.CredentialsPath
	if credPath == "" {
		var err error
		credPath, err = credentials.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	wsURL := opts.WebsocketURL
	if wsURL == "" {
		wsURL = websocketURL(base)
	}

	sess := session.NewManager(base, credentials.NewStore(credPath))
	gw := gateway.NewClient(base, sess)

	e := &Engine{
		Session:     sess,
		Gateway:     gw,
		Transport:   realtime.NewTransport(wsURL, sess),
		reconciler:  reconcile.New(gw),
		coordinator: control.New(gw),
		subscribers: make(map[int]func()),
	}
	e.registerHandlers()
	return e, nil
}

// websocketURL derives the realtime endpoint from the HTTP base URL.
func websocketURL(base string) string {
	ws := base
	switch {
	case strings.HasPrefix(base, "https://"):
		ws = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		ws = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return ws + "/ws"
}

func (e *Engine) registerHandlers() {
	e.unregister = append(e.unregister,
		e.Transport.On(protocol.TypeSpanCreated, func(env protocol.Envelope) {
			var span domain.Span
			if err := json.Unmarshal(env.Data, &span); err != nil {
				return
			}
			e.reconciler.ApplySpanCreated(span)
			e.notify()
		}),
		e.Transport.On(protocol.TypeSpanUpdated, func(env protocol.Envelope) {
			var span domain.Span
			if err := json.Unmarshal(env.Data, &span); err != nil {
				return
			}
			e.reconciler.ApplySpanUpdated(span)
			e.notify()
		}),
		e.Transport.On(protocol.TypeTraceUpdated, func(env protocol.Envelope) {
			var meta domain.Trace
			if err := json.Unmarshal(env.Data, &meta); err != nil {
				return
			}
			e.reconciler.ApplyTraceUpdated(meta)
			e.notify()
		}),
		e.Transport.On(protocol.TypeStateChange, func(env protocol.Envelope) {
			if env.TraceID != e.coordinator.TraceID() {
				return
			}
			// The push is a hint, not the truth: re-fetch the control
			// state rather than trusting the envelope.
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := e.coordinator.Refresh(ctx); err != nil {
					log.Printf("engine: control refresh: %v", err)
				}
				e.notify()
			}()
		}),
		e.Transport.OnStatus(func(realtime.Status) {
			e.notify()
		}),
	)
}

// Connect starts the realtime channel.
func (e *Engine) Connect() {
	e.Transport.Connect()
}

// Close tears down the realtime channel and handler registrations.
func (e *Engine) Close() {
	e.Transport.Disconnect()
	for _, un := range e.unregister {
		un()
	}
	e.unregister = nil
}

// Login authenticates and persists the credential.
func (e *Engine) Login(ctx context.Context, username, password string) error {
	return e.Session.Login(ctx, username, password)
}

// Logout clears the credential and drops the realtime connection.
func (e *Engine) Logout() error {
	e.Transport.Disconnect()
	return e.Session.Logout()
}

// SelectTrace makes traceID the live-merged trace: the previous
// selection is unsubscribed and discarded, a fresh snapshot is loaded,
// the realtime subscription is established and the control state
// fetched.
func (e *Engine) SelectTrace(ctx context.Context, traceID string) error {
	e.mu.Lock()
	prev := e.selected
	e.selected = traceID
	e.mu.Unlock()

	if prev != "" && prev != traceID {
		e.Transport.Unsubscribe(prev)
	}
	e.reconciler.Clear()
	e.coordinator.Select(traceID)

	if _, err := e.reconciler.LoadSnapshot(ctx, traceID); err != nil {
		e.mu.Lock()
		e.selected = ""
		e.mu.Unlock()
		e.coordinator.Deselect()
		return err
	}

	e.Transport.Subscribe(traceID)

	if err := e.coordinator.Refresh(ctx); err != nil {
		return err
	}
	e.notify()
	return nil
}

// DeselectTrace unsubscribes and discards the current trace.
func (e *Engine) DeselectTrace() {
	e.mu.Lock()
	prev := e.selected
	e.selected = ""
	e.mu.Unlock()

	if prev != "" {
		e.Transport.Unsubscribe(prev)
	}
	e.reconciler.Clear()
	e.coordinator.Deselect()
	e.notify()
}

// SelectedTrace returns the selected trace id, or "".
func (e *Engine) SelectedTrace() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Trace returns a snapshot of the reconciled trace, or nil.
func (e *Engine) Trace() *domain.Trace {
	return e.reconciler.Snapshot()
}

// SpansForDisplay returns the spans in display order.
func (e *Engine) SpansForDisplay() []domain.Span {
	return e.reconciler.DisplayOrder()
}

// SpanDepth returns the tree depth of a span in the selected trace.
func (e *Engine) SpanDepth(spanID string) int {
	return e.reconciler.DepthOf(spanID)
}

// ControlStatus returns the believed execution state of the selected
// trace's agent.
func (e *Engine) ControlStatus() domain.ControlStatus {
	return e.coordinator.Status()
}

// ConnectionStatus returns the realtime channel status.
func (e *Engine) ConnectionStatus() realtime.Status {
	return e.Transport.Status()
}

// Pause, Resume and Step proxy to the coordinator; all are no-ops when
// no trace is selected.
func (e *Engine) Pause(ctx context.Context) error { return e.coordinator.Pause(ctx) }

// Resume resumes the selected trace's agent.
func (e *Engine) Resume(ctx context.Context) error { return e.coordinator.Resume(ctx) }

// Step runs count spans then pauses.
func (e *Engine) Step(ctx context.Context, count int) error { return e.coordinator.Step(ctx, count) }

// ListTraces fetches the trace index.
func (e *Engine) ListTraces(ctx context.Context, offset, limit int) ([]domain.Trace, error) {
	var resp struct {
		Traces []domain.Trace `json:"traces"`
	}
	path := fmt.Sprintf("/traces?offset=%d&limit=%d", offset, limit)
	if err := e.Gateway.Get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Traces, nil
}

// OnChange registers a callback invoked after any observable change:
// merged events, control transitions, connection status flips. The
// returned closure unregisters it.
func (e *Engine) OnChange(fn func()) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

func (e *Engine) notify() {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
