// Package api provides the reference server's HTTP and websocket
// handlers.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/config"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/protocol"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/auth"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/hub"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/store"
)

// subjectKey is the echo context key carrying the authenticated subject.
const subjectKey = "subject"

// Handler handles HTTP requests.
type Handler struct {
	store  *store.SQLiteStore
	hub    *hub.Hub
	issuer *auth.Issuer
	cfg    *config.Server
}

// NewHandler creates a handler over the given collaborators.
func NewHandler(s *store.SQLiteStore, h *hub.Hub, issuer *auth.Issuer, cfg *config.Server) *Handler {
	return &Handler{store: s, hub: h, issuer: issuer, cfg: cfg}
}

// RegisterRoutes registers all routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
	e.POST("/auth/refresh", h.Refresh)
	e.GET("/auth/me", h.Me, h.requireAuth)

	e.GET("/traces", h.ListTraces, h.requireAuth)
	e.POST("/traces", h.CreateTrace, h.requireAuth)
	e.GET("/traces/:trace_id", h.GetTrace, h.requireAuth)
	e.DELETE("/traces/:trace_id", h.DeleteTrace, h.requireAuth)
	e.POST("/traces/:trace_id/complete", h.CompleteTrace, h.requireAuth)
	e.POST("/traces/:trace_id/spans", h.CreateSpan, h.requireAuth)
	e.PATCH("/traces/:trace_id/spans/:span_id", h.UpdateSpan, h.requireAuth)

	e.GET("/state/:trace_id", h.GetState, h.requireAuth)
	e.POST("/state/:trace_id", h.InitState, h.requireAuth)
	e.PATCH("/state/:trace_id", h.ModifyState, h.requireAuth)
	e.PUT("/state/:trace_id", h.BulkModifyState, h.requireAuth)
	e.POST("/state/:trace_id/pause", h.PauseExecution, h.requireAuth)
	e.POST("/state/:trace_id/resume", h.ResumeExecution, h.requireAuth)
	e.POST("/state/:trace_id/step", h.StepExecution, h.requireAuth)

	e.GET("/ws", h.HandleWebSocket)
	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// requireAuth verifies the bearer access token and stores the subject
// on the request context.
func (h *Handler) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !h.cfg.RequireAuth {
			c.Set(subjectKey, "dev-user")
			return next(c)
		}

		token := bearerToken(c.Request().Header.Get("Authorization"))
		if token == "" {
			return detail(c, http.StatusUnauthorized, "Missing Authorization header")
		}
		subject, err := h.issuer.Verify(token, auth.TypeAccess)
		if err != nil {
			return detail(c, http.StatusUnauthorized, "Invalid or expired token")
		}
		c.Set(subjectKey, subject)
		return next(c)
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// detail writes an error body in the {"detail": ...} envelope the
// client gateway decodes.
func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"detail": msg})
}

// broadcastSpanEvent pushes a span_created/span_updated envelope to the
// trace's subscribers.
func (h *Handler) broadcastSpanEvent(eventType string, span *domain.Span) {
	data, err := json.Marshal(span)
	if err != nil {
		return
	}
	h.hub.BroadcastJSON(span.TraceID, protocol.Envelope{
		Type:    eventType,
		TraceID: span.TraceID,
		SpanID:  span.SpanID,
		Data:    data,
	})
}

// broadcastTraceUpdated pushes the trace's current metadata (without
// spans) to its subscribers.
func (h *Handler) broadcastTraceUpdated(t *domain.Trace) {
	meta := *t
	meta.Spans = nil
	data, err := json.Marshal(&meta)
	if err != nil {
		return
	}
	h.hub.BroadcastJSON(t.TraceID, protocol.Envelope{
		Type:    protocol.TypeTraceUpdated,
		TraceID: t.TraceID,
		Data:    data,
	})
}

// broadcastStateChange pushes a state_change envelope with the control
// status and editable state containers.
func (h *Handler) broadcastStateChange(state *domain.AgentState) {
	payload, err := json.Marshal(map[string]any{
		"memory":    state.Memory,
		"context":   state.Context,
		"variables": state.Variables,
	})
	if err != nil {
		return
	}
	h.hub.BroadcastJSON(state.TraceID, protocol.Envelope{
		Type:          protocol.TypeStateChange,
		TraceID:       state.TraceID,
		ControlStatus: string(state.Control.Status),
		State:         payload,
	})
}
