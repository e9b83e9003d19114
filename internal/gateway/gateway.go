// Package gateway wraps outbound API calls with bearer authentication
// and a bounded refresh-and-retry cycle on 401 responses.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/session"
)

// ErrNotFound marks a 404 response. Absence is a meaningful state for
// several endpoints (e.g. no control record yet) and is not reported as
// a server error.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response other than 401-with-retry and 404,
// surfaced verbatim to the caller.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned status %d", e.Status)
}

// errorEnvelope matches the server's error body.
type errorEnvelope struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

// Client is the authenticated request gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *session.Manager
}

// NewClient creates a gateway against baseURL using sessions for
// credentials.
func NewClient(baseURL string, sessions *session.Manager) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		session: sessions,
	}
}

// Get issues an authenticated GET, decoding the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Patch issues an authenticated PATCH with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Do sends one authenticated request. On a 401 it performs exactly one
// refresh then retries once with the new token; a second 401 is
// returned to the caller unmodified. If the refresh itself fails the
// original 401 is still what the caller sees — the two cases are not
// distinguished.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	token, err := c.session.ValidToken(ctx)
	if err != nil {
		return err
	}

	status, data, err := c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized {
		token, err = c.session.Refresh(ctx)
		if err == nil {
			status, data, err = c.send(ctx, method, path, payload, token)
			if err != nil {
				return err
			}
		}
	}

	switch {
	case status >= 200 && status < 300:
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	case status == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	default:
		return &APIError{Status: status, Message: errorMessage(data)}
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func errorMessage(data []byte) string {
	var env errorEnvelope
	if json.Unmarshal(data, &env) == nil {
		if env.Detail != "" {
			return env.Detail
		}
		if env.Error != "" {
			return env.Error
		}
	}
	return strings.TrimSpace(string(data))
}
