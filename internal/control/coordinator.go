// Package control coordinates pause/resume/step commands with the
// remote agent and tracks the believed execution state, corrected by
// push notifications.
package control

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/gateway"
)

// maxStepCount mirrors the server-side clamp on step requests.
const maxStepCount = 1000

// API is the slice of the request gateway the coordinator needs.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
}

// Coordinator tracks the believed run-state of the selected trace's
// agent. The belief is optimistic for pause/resume and corrected by
// state fetches triggered from push notifications.
type Coordinator struct {
	api API

	mu      sync.Mutex
	traceID string
	status  domain.ControlStatus
}

// New creates a coordinator with no trace selected.
func New(api API) *Coordinator {
	return &Coordinator{api: api, status: domain.ControlStatusUnknown}
}

// Select points the coordinator at a trace, resetting the believed
// state to unknown until a fetch reports otherwise.
func (c *Coordinator) Select(traceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traceID = traceID
	c.status = domain.ControlStatusUnknown
}

// Deselect clears the selection and the believed state.
func (c *Coordinator) Deselect() {
	c.Select("")
}

// TraceID returns the selected trace id, or "".
func (c *Coordinator) TraceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.traceID
}

// Status returns the believed execution status.
func (c *Coordinator) Status() domain.ControlStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Refresh fetches the remote control state. A 404 means no control
// record exists yet — the agent may never have reported state — and
// resets the belief to unknown without error. Any other failure leaves
// the believed state untouched.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	traceID := c.traceID
	c.mu.Unlock()
	if traceID == "" {
		return nil
	}

	var state domain.AgentState
	err := c.api.Get(ctx, "/state/"+traceID, &state)
	if errors.Is(err, gateway.ErrNotFound) {
		c.setStatus(traceID, domain.ControlStatusUnknown)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch control state: %w", err)
	}
	c.setStatus(traceID, state.Control.Status)
	return nil
}

// Pause asks the remote agent to pause. On success the belief becomes
// paused immediately.
func (c *Coordinator) Pause(ctx context.Context) error {
	return c.command(ctx, "pause", nil, domain.ControlStatusPaused)
}

// Resume asks the remote agent to continue running.
func (c *Coordinator) Resume(ctx context.Context) error {
	return c.command(ctx, "resume", nil, domain.ControlStatusRunning)
}

// Step asks the remote agent to execute count spans then pause. The
// belief becomes step; it settles back to paused only when a push
// notification triggers a fresh state fetch — never optimistically.
func (c *Coordinator) Step(ctx context.Context, count int) error {
	if count < 1 {
		count = 1
	}
	if count > maxStepCount {
		count = maxStepCount
	}
	return c.command(ctx, "step", map[string]int{"count": count}, domain.ControlStatusStep)
}

// command issues a control command; a no-op when no trace is selected.
func (c *Coordinator) command(ctx context.Context, verb string, body any, next domain.ControlStatus) error {
	c.mu.Lock()
	traceID := c.traceID
	c.mu.Unlock()
	if traceID == "" {
		return nil
	}

	if err := c.api.Post(ctx, "/state/"+traceID+"/"+verb, body, nil); err != nil {
		return fmt.Errorf("%s trace %s: %w", verb, traceID, err)
	}
	c.setStatus(traceID, next)
	return nil
}

// setStatus updates the belief only if the trace is still selected; a
// slow response for a deselected trace is dropped.
func (c *Coordinator) setStatus(traceID string, status domain.ControlStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.traceID != traceID {
		return
	}
	c.status = status
}
