package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
)

// GetState returns the live agent state for a trace. 404 means no state
// record exists yet; clients treat that as "unknown", not an error.
func (h *Handler) GetState(c echo.Context) error {
	state, err := h.store.GetState(c.Request().Context(), c.Param("trace_id"))
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load state")
	}
	if state == nil {
		return detail(c, http.StatusNotFound, "State not found")
	}
	return c.JSON(http.StatusOK, state)
}

// InitState creates (or resets) the state record for a trace. SDKs call
// this when instrumented execution starts.
func (h *Handler) InitState(c echo.Context) error {
	traceID := c.Param("trace_id")
	ctx := c.Request().Context()

	t, err := h.store.GetTrace(ctx, traceID)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load trace")
	}
	if t == nil {
		return detail(c, http.StatusNotFound, "Trace not found")
	}

	state := domain.NewAgentState(traceID)
	if err := c.Bind(state); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}
	state.TraceID = traceID
	state.LastUpdated = time.Now().UTC()

	if err := h.store.SaveState(ctx, state); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to save state")
	}
	h.broadcastStateChange(state)
	return c.JSON(http.StatusCreated, state)
}

type modifyStateRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// ModifyState sets one value at a dotted path like "memory.plan" or
// "variables.retries".
func (h *Handler) ModifyState(c echo.Context) error {
	var req modifyStateRequest
	if err := c.Bind(&req); err != nil || req.Path == "" {
		return detail(c, http.StatusBadRequest, "Missing path")
	}

	state, err := h.store.GetState(c.Request().Context(), c.Param("trace_id"))
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load state")
	}
	if state == nil {
		return detail(c, http.StatusNotFound, "State not found")
	}

	if !state.ModifyPath(req.Path, req.Value) {
		return detail(c, http.StatusBadRequest, "Invalid path")
	}
	if err := h.store.SaveState(c.Request().Context(), state); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to save state")
	}
	h.broadcastStateChange(state)
	return c.JSON(http.StatusOK, state)
}

type bulkModifyRequest struct {
	Memory    map[string]any `json:"memory"`
	Context   map[string]any `json:"context"`
	Variables map[string]any `json:"variables"`
}

// BulkModifyState replaces whole state containers at once. Absent
// containers are left untouched.
func (h *Handler) BulkModifyState(c echo.Context) error {
	var req bulkModifyRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}

	state, err := h.store.GetState(c.Request().Context(), c.Param("trace_id"))
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load state")
	}
	if state == nil {
		return detail(c, http.StatusNotFound, "State not found")
	}

	if req.Memory != nil {
		state.Memory = req.Memory
	}
	if req.Context != nil {
		state.Context = req.Context
	}
	if req.Variables != nil {
		state.Variables = req.Variables
	}
	state.LastUpdated = time.Now().UTC()

	if err := h.store.SaveState(c.Request().Context(), state); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to save state")
	}
	h.broadcastStateChange(state)
	return c.JSON(http.StatusOK, state)
}

// PauseExecution requests the agent pause at the next span boundary.
func (h *Handler) PauseExecution(c echo.Context) error {
	state, status := h.loadOrInitState(c)
	if state == nil {
		return status
	}
	state.Control.Pause(state.CurrentSpanID, time.Now().UTC())
	return h.saveControl(c, state)
}

// ResumeExecution clears a pause and lets the agent run.
func (h *Handler) ResumeExecution(c echo.Context) error {
	state, status := h.loadOrInitState(c)
	if state == nil {
		return status
	}
	state.Control.Resume()
	return h.saveControl(c, state)
}

type stepRequest struct {
	Count int `json:"count"`
}

// StepExecution runs count spans (1..1000) and pauses again.
func (h *Handler) StepExecution(c echo.Context) error {
	var req stepRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Count < 1 {
		req.Count = 1
	}
	if req.Count > 1000 {
		req.Count = 1000
	}

	state, status := h.loadOrInitState(c)
	if state == nil {
		return status
	}
	state.Control.Step(req.Count)
	return h.saveControl(c, state)
}

// loadOrInitState loads the state for the request's trace, creating a
// fresh record when the trace exists but was never instrumented. A nil
// state return means the error response has already been written.
func (h *Handler) loadOrInitState(c echo.Context) (*domain.AgentState, error) {
	traceID := c.Param("trace_id")
	ctx := c.Request().Context()

	state, err := h.store.GetState(ctx, traceID)
	if err != nil {
		return nil, detail(c, http.StatusInternalServerError, "Failed to load state")
	}
	if state != nil {
		return state, nil
	}

	t, err := h.store.GetTrace(ctx, traceID)
	if err != nil {
		return nil, detail(c, http.StatusInternalServerError, "Failed to load trace")
	}
	if t == nil {
		return nil, detail(c, http.StatusNotFound, "Trace not found")
	}
	return domain.NewAgentState(traceID), nil
}

func (h *Handler) saveControl(c echo.Context, state *domain.AgentState) error {
	state.LastUpdated = time.Now().UTC()
	if err := h.store.SaveState(c.Request().Context(), state); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to save state")
	}
	h.broadcastStateChange(state)
	return c.JSON(http.StatusOK, state)
}
