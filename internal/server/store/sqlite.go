// Package store persists traces, spans and agent state for the
// reference server.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/domain"
)

// SQLiteStore implements the server store on SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dsn and runs
// migrations. Use ":memory:" for tests.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS traces (
			trace_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			duration_ms REAL NOT NULL DEFAULT 0,
			root_span_id TEXT,
			framework TEXT,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_traces_start ON traces(start_time)`,
		`CREATE TABLE IF NOT EXISTS spans (
			span_id TEXT NOT NULL,
			trace_id TEXT NOT NULL,
			parent_span_id TEXT,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			duration_ms REAL NOT NULL DEFAULT 0,
			agent_id TEXT,
			agent_name TEXT,
			input_data TEXT,
			output_data TEXT,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			total_tokens INTEGER NOT NULL DEFAULT 0,
			cost_usd REAL NOT NULL DEFAULT 0,
			error_message TEXT,
			error_type TEXT,
			attributes TEXT,
			PRIMARY KEY (trace_id, span_id),
			FOREIGN KEY (trace_id) REFERENCES traces(trace_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spans_trace ON spans(trace_id, start_time)`,
		`CREATE TABLE IF NOT EXISTS states (
			trace_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			last_updated DATETIME NOT NULL,
			FOREIGN KEY (trace_id) REFERENCES traces(trace_id) ON DELETE CASCADE
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateTrace inserts a new trace row.
func (s *SQLiteStore) CreateTrace(ctx context.Context, t *domain.Trace) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traces (trace_id, name, description, status, start_time, end_time, duration_ms, root_span_id, framework, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraceID, t.Name, t.Description, string(t.Status), t.StartTime, t.EndTime, t.DurationMs,
		t.RootSpanID, t.Framework, rawString(t.Metadata))
	return err
}

// UpdateTrace rewrites a trace's metadata row.
func (s *SQLiteStore) UpdateTrace(ctx context.Context, t *domain.Trace) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE traces SET name = ?, description = ?, status = ?, start_time = ?, end_time = ?, duration_ms = ?, root_span_id = ?, framework = ?, metadata = ?
		 WHERE trace_id = ?`,
		t.Name, t.Description, string(t.Status), t.StartTime, t.EndTime, t.DurationMs,
		t.RootSpanID, t.Framework, rawString(t.Metadata), t.TraceID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// GetTrace loads a trace with its spans and recomputed aggregates.
// Returns (nil, nil) when the trace does not exist.
func (s *SQLiteStore) GetTrace(ctx context.Context, traceID string) (*domain.Trace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT trace_id, name, description, status, start_time, end_time, duration_ms, root_span_id, framework, metadata
		 FROM traces WHERE trace_id = ?`, traceID)
	t, err := scanTrace(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	spans, err := s.listSpans(ctx, traceID)
	if err != nil {
		return nil, err
	}
	t.Spans = spans
	t.Recompute()
	return t, nil
}

// ListTraces returns traces ordered newest-first, spans included.
func (s *SQLiteStore) ListTraces(ctx context.Context, offset, limit int, status string) ([]domain.Trace, error) {
	query := `SELECT trace_id, name, description, status, start_time, end_time, duration_ms, root_span_id, framework, metadata
		 FROM traces`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY start_time DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var traces []domain.Trace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		traces = append(traces, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range traces {
		spans, err := s.listSpans(ctx, traces[i].TraceID)
		if err != nil {
			return nil, err
		}
		traces[i].Spans = spans
		traces[i].Recompute()
	}
	return traces, nil
}

// CountTraces returns the number of traces matching status ("" = all).
func (s *SQLiteStore) CountTraces(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM traces`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	var n int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// DeleteTrace removes a trace; spans and state go with it.
func (s *SQLiteStore) DeleteTrace(ctx context.Context, traceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM traces WHERE trace_id = ?`, traceID)
	return err
}

// UpsertSpan inserts or replaces a span.
func (s *SQLiteStore) UpsertSpan(ctx context.Context, sp *domain.Span) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO spans (
			span_id, trace_id, parent_span_id, name, kind, status,
			start_time, end_time, duration_ms, agent_id, agent_name,
			input_data, output_data, prompt_tokens, completion_tokens,
			total_tokens, cost_usd, error_message, error_type, attributes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.SpanID, sp.TraceID, sp.ParentSpanID, sp.Name, string(sp.Kind), string(sp.Status),
		sp.StartTime, sp.EndTime, sp.DurationMs, sp.AgentID, sp.AgentName,
		rawString(sp.InputData), rawString(sp.OutputData), sp.PromptTokens, sp.CompletionTokens,
		sp.TotalTokens, sp.CostUsd, sp.ErrorMessage, sp.ErrorType, rawString(sp.Attributes))
	return err
}

// GetSpan loads one span. Returns (nil, nil) when absent.
func (s *SQLiteStore) GetSpan(ctx context.Context, traceID, spanID string) (*domain.Span, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT span_id, trace_id, parent_span_id, name, kind, status,
			start_time, end_time, duration_ms, agent_id, agent_name,
			input_data, output_data, prompt_tokens, completion_tokens,
			total_tokens, cost_usd, error_message, error_type, attributes
		 FROM spans WHERE trace_id = ? AND span_id = ?`, traceID, spanID)
	sp, err := scanSpan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sp, err
}

func (s *SQLiteStore) listSpans(ctx context.Context, traceID string) ([]domain.Span, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT span_id, trace_id, parent_span_id, name, kind, status,
			start_time, end_time, duration_ms, agent_id, agent_name,
			input_data, output_data, prompt_tokens, completion_tokens,
			total_tokens, cost_usd, error_message, error_type, attributes
		 FROM spans WHERE trace_id = ? ORDER BY start_time`, traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spans := []domain.Span{}
	for rows.Next() {
		sp, err := scanSpan(rows)
		if err != nil {
			return nil, err
		}
		spans = append(spans, *sp)
	}
	return spans, rows.Err()
}

// SaveState inserts or replaces the agent state for a trace.
func (s *SQLiteStore) SaveState(ctx context.Context, state *domain.AgentState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO states (trace_id, payload, last_updated) VALUES (?, ?, ?)`,
		state.TraceID, string(payload), state.LastUpdated)
	return err
}

// GetState loads the agent state for a trace. Returns (nil, nil) when
// no state record exists.
func (s *SQLiteStore) GetState(ctx context.Context, traceID string) (*domain.AgentState, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM states WHERE trace_id = ?`, traceID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state domain.AgentState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("parse state for trace %s: %w", traceID, err)
	}
	return &state, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrace(row scanner) (*domain.Trace, error) {
	var t domain.Trace
	var description, rootSpanID, framework, metadata sql.NullString
	var endTime sql.NullTime
	var status string
	err := row.Scan(&t.TraceID, &t.Name, &description, &status, &t.StartTime, &endTime,
		&t.DurationMs, &rootSpanID, &framework, &metadata)
	if err != nil {
		return nil, err
	}
	t.Status = domain.SpanStatus(status)
	t.Description = description.String
	t.RootSpanID = rootSpanID.String
	t.Framework = framework.String
	if metadata.Valid && metadata.String != "" {
		t.Metadata = json.RawMessage(metadata.String)
	}
	if endTime.Valid {
		et := endTime.Time
		t.EndTime = &et
	}
	return &t, nil
}

func scanSpan(row scanner) (*domain.Span, error) {
	var sp domain.Span
	var parent, agentID, agentName, input, output, errMsg, errType, attrs sql.NullString
	var endTime sql.NullTime
	var kind, status string
	err := row.Scan(&sp.SpanID, &sp.TraceID, &parent, &sp.Name, &kind, &status,
		&sp.StartTime, &endTime, &sp.DurationMs, &agentID, &agentName,
		&input, &output, &sp.PromptTokens, &sp.CompletionTokens,
		&sp.TotalTokens, &sp.CostUsd, &errMsg, &errType, &attrs)
	if err != nil {
		return nil, err
	}
	sp.Kind = domain.SpanKind(kind)
	sp.Status = domain.SpanStatus(status)
	sp.ParentSpanID = parent.String
	sp.AgentID = agentID.String
	sp.AgentName = agentName.String
	sp.ErrorMessage = errMsg.String
	sp.ErrorType = errType.String
	if input.Valid && input.String != "" {
		sp.InputData = json.RawMessage(input.String)
	}
	if output.Valid && output.String != "" {
		sp.OutputData = json.RawMessage(output.String)
	}
	if attrs.Valid && attrs.String != "" {
		sp.Attributes = json.RawMessage(attrs.String)
	}
	if endTime.Valid {
		et := endTime.Time
		sp.EndTime = &et
	}
	return &sp, nil
}

// rawString renders optional raw JSON for storage; empty stays NULL-ish.
func rawString(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
