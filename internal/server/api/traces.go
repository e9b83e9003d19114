package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
	"github.com/noogler-aditya/Agent-Lighthouse/internal/protocol"
)

type createTraceRequest struct {
	TraceID     string          `json:"trace_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Framework   string          `json:"framework"`
	Metadata    json.RawMessage `json:"metadata"`
}

type listTracesResponse struct {
	Traces []domain.Trace `json:"traces"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// ListTraces returns traces newest-first with optional status filter.
func (h *Handler) ListTraces(c echo.Context) error {
	offset := intParam(c.QueryParam("offset"), 0)
	limit := intParam(c.QueryParam("limit"), 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	status := c.QueryParam("status")

	traces, err := h.store.ListTraces(c.Request().Context(), offset, limit, status)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to list traces")
	}
	total, err := h.store.CountTraces(c.Request().Context(), status)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to count traces")
	}
	if traces == nil {
		traces = []domain.Trace{}
	}
	return c.JSON(http.StatusOK, listTracesResponse{
		Traces: traces,
		Total:  total,
		Offset: offset,
		Limit:  limit,
	})
}

// CreateTrace starts a new trace. SDKs may supply their own trace_id;
// one is generated otherwise.
func (h *Handler) CreateTrace(c echo.Context) error {
	var req createTraceRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Name == "" {
		return detail(c, http.StatusBadRequest, "Trace name is required")
	}
	if req.TraceID == "" {
		req.TraceID = uuid.New().String()
	}

	t := &domain.Trace{
		TraceID:     req.TraceID,
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.SpanStatusRunning,
		StartTime:   time.Now().UTC(),
		Spans:       []domain.Span{},
		Framework:   req.Framework,
		Metadata:    req.Metadata,
	}
	if err := h.store.CreateTrace(c.Request().Context(), t); err != nil {
		return detail(c, http.StatusConflict, "Trace already exists")
	}
	return c.JSON(http.StatusCreated, t)
}

// GetTrace returns one trace with all its spans.
func (h *Handler) GetTrace(c echo.Context) error {
	t, err := h.store.GetTrace(c.Request().Context(), c.Param("trace_id"))
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load trace")
	}
	if t == nil {
		return detail(c, http.StatusNotFound, "Trace not found")
	}
	return c.JSON(http.StatusOK, t)
}

// DeleteTrace removes a trace with its spans and state.
func (h *Handler) DeleteTrace(c echo.Context) error {
	traceID := c.Param("trace_id")
	t, err := h.store.GetTrace(c.Request().Context(), traceID)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load trace")
	}
	if t == nil {
		return detail(c, http.StatusNotFound, "Trace not found")
	}
	if err := h.store.DeleteTrace(c.Request().Context(), traceID); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to delete trace")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Trace deleted"})
}

// CompleteTrace marks a trace finished. The final status comes from the
// ?status= query parameter, defaulting to success.
func (h *Handler) CompleteTrace(c echo.Context) error {
	traceID := c.Param("trace_id")
	status := domain.SpanStatus(c.QueryParam("status"))
	if status == "" {
		status = domain.SpanStatusSuccess
	}
	switch status {
	case domain.SpanStatusSuccess, domain.SpanStatusError, domain.SpanStatusCancelled:
	default:
		return detail(c, http.StatusBadRequest, "Invalid status")
	}

	t, err := h.store.GetTrace(c.Request().Context(), traceID)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load trace")
	}
	if t == nil {
		return detail(c, http.StatusNotFound, "Trace not found")
	}

	t.Complete(status, time.Now().UTC())
	if err := h.store.UpdateTrace(c.Request().Context(), t); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to update trace")
	}
	h.broadcastTraceUpdated(t)
	return c.JSON(http.StatusOK, t)
}

// CreateSpan records a new span on a trace and pushes it to
// subscribers.
func (h *Handler) CreateSpan(c echo.Context) error {
	traceID := c.Param("trace_id")
	ctx := c.Request().Context()

	t, err := h.store.GetTrace(ctx, traceID)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load trace")
	}
	if t == nil {
		return detail(c, http.StatusNotFound, "Trace not found")
	}

	var span domain.Span
	if err := c.Bind(&span); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}
	span.TraceID = traceID
	if span.SpanID == "" {
		span.SpanID = uuid.New().String()
	}
	if span.Name == "" {
		return detail(c, http.StatusBadRequest, "Span name is required")
	}
	if span.Kind == "" {
		span.Kind = domain.SpanKindInternal
	}
	if span.Status == "" {
		span.Status = domain.SpanStatusRunning
	}
	if span.StartTime.IsZero() {
		span.StartTime = time.Now().UTC()
	}

	if err := h.store.UpsertSpan(ctx, &span); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to save span")
	}
	h.broadcastSpanEvent(protocol.TypeSpanCreated, &span)
	h.refreshTraceAggregates(c, traceID)
	return c.JSON(http.StatusCreated, &span)
}

type updateSpanRequest struct {
	Status           *domain.SpanStatus `json:"status"`
	OutputData       json.RawMessage    `json:"output_data"`
	PromptTokens     *int               `json:"prompt_tokens"`
	CompletionTokens *int               `json:"completion_tokens"`
	TotalTokens      *int               `json:"total_tokens"`
	CostUsd          *float64           `json:"cost_usd"`
	ErrorMessage     *string            `json:"error_message"`
	ErrorType        *string            `json:"error_type"`
	Attributes       json.RawMessage    `json:"attributes"`
}

// UpdateSpan applies a partial update to a span. A terminal status also
// stamps the end time and duration.
func (h *Handler) UpdateSpan(c echo.Context) error {
	traceID := c.Param("trace_id")
	spanID := c.Param("span_id")
	ctx := c.Request().Context()

	span, err := h.store.GetSpan(ctx, traceID, spanID)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to load span")
	}
	if span == nil {
		return detail(c, http.StatusNotFound, "Span not found")
	}

	var req updateSpanRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}

	if req.PromptTokens != nil {
		span.PromptTokens = *req.PromptTokens
	}
	if req.CompletionTokens != nil {
		span.CompletionTokens = *req.CompletionTokens
	}
	if req.TotalTokens != nil {
		span.TotalTokens = *req.TotalTokens
	}
	if req.CostUsd != nil {
		span.CostUsd = *req.CostUsd
	}
	if req.ErrorMessage != nil {
		span.ErrorMessage = *req.ErrorMessage
	}
	if req.ErrorType != nil {
		span.ErrorType = *req.ErrorType
	}
	if req.Attributes != nil {
		span.Attributes = req.Attributes
	}
	if req.Status != nil {
		switch *req.Status {
		case domain.SpanStatusSuccess, domain.SpanStatusError, domain.SpanStatusCancelled:
			span.Complete(*req.Status, req.OutputData, time.Now().UTC())
		case domain.SpanStatusRunning:
			span.Status = *req.Status
			if req.OutputData != nil {
				span.OutputData = req.OutputData
			}
		default:
			return detail(c, http.StatusBadRequest, "Invalid status")
		}
	} else if req.OutputData != nil {
		span.OutputData = req.OutputData
	}

	if err := h.store.UpsertSpan(ctx, span); err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to save span")
	}
	h.broadcastSpanEvent(protocol.TypeSpanUpdated, span)
	h.refreshTraceAggregates(c, traceID)
	return c.JSON(http.StatusOK, span)
}

// refreshTraceAggregates reloads the trace, persists recomputed
// aggregates and pushes trace_updated. Best effort after a span write.
func (h *Handler) refreshTraceAggregates(c echo.Context, traceID string) {
	t, err := h.store.GetTrace(c.Request().Context(), traceID)
	if err != nil || t == nil {
		return
	}
	if err := h.store.UpdateTrace(c.Request().Context(), t); err != nil {
		return
	}
	h.broadcastTraceUpdated(t)
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
