// Package session owns the bearer credential lifecycle: login, silent
// refresh and logout. Concurrent refresh attempts are coalesced so a
// burst of expired requests issues exactly one refresh call.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/credentials"
)

// ErrNoSession means no credential is stored and no refresh is possible.
var ErrNoSession = errors.New("no session: login required")

// ErrAuthExpired means the refresh credential was rejected and the
// session has been cleared; the caller must log in again.
var ErrAuthExpired = errors.New("session expired: login required")

// expiryMargin treats a token as expired slightly before its claimed
// expiry so an in-flight request cannot carry a token that dies mid-air.
const expiryMargin = 5 * time.Second

// tokenResponse is the server's login/refresh response body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	Subject      string `json:"subject,omitempty"`
}

// Manager keeps the credential valid. All methods are safe for
// concurrent use.
type Manager struct {
	baseURL    string
	httpClient *http.Client
	store      *credentials.Store
	now        func() time.Time

	mu     sync.Mutex
	loaded bool
	cred   *credentials.Credential

	refresh singleflight.Group
}

// NewManager creates a session manager persisting through store.
func NewManager(baseURL string, store *credentials.Store) *Manager {
	return &Manager{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		store: store,
		now:   time.Now,
	}
}

// Credential returns a copy of the current credential, or nil.
func (m *Manager) Credential() *credentials.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureLoadedLocked()
	if m.cred == nil {
		return nil
	}
	cp := *m.cred
	return &cp
}

// Subject returns the identity subject of the current session, if any.
func (m *Manager) Subject() string {
	if c := m.Credential(); c != nil {
		return c.Subject
	}
	return ""
}

// ValidToken returns an access token guaranteed not expired (within the
// safety margin), refreshing silently if needed.
func (m *Manager) ValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.ensureLoadedLocked()
	cred := m.cred
	m.mu.Unlock()

	if cred == nil {
		return "", ErrNoSession
	}
	if !cred.Expired(m.now(), expiryMargin) {
		return cred.AccessToken, nil
	}
	return m.Refresh(ctx)
}

// Refresh exchanges the stored refresh token for a new pair. Concurrent
// callers share a single in-flight refresh and its outcome.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	token, err, _ := m.refresh.Do("refresh", func() (any, error) {
		return m.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.ensureLoadedLocked()
	cred := m.cred
	m.mu.Unlock()

	if cred == nil || cred.RefreshToken == "" {
		return "", ErrNoSession
	}

	var resp tokenResponse
	status, err := m.post(ctx, "/auth/refresh", map[string]string{
		"refresh_token": cred.RefreshToken,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("refresh session: %w", err)
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
		// The refresh credential itself is invalid. Retrying cannot
		// succeed, so the whole session is torn down.
		m.clear()
		return "", ErrAuthExpired
	default:
		return "", fmt.Errorf("refresh session: server returned status %d", status)
	}

	subject := resp.Subject
	if subject == "" {
		subject = cred.Subject
	}
	if subject == "" {
		subject = subjectClaim(resp.AccessToken)
	}
	next := &credentials.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Subject:      subject,
		ExpiresAt:    resp.ExpiresAt,
	}
	m.persist(next)
	return next.AccessToken, nil
}

// Login exchanges identity and secret for a fresh credential pair.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	var resp tokenResponse
	status, err := m.post(ctx, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if status == http.StatusUnauthorized {
		return fmt.Errorf("login: invalid credentials")
	}
	if status != http.StatusOK {
		return fmt.Errorf("login: server returned status %d", status)
	}

	subject := resp.Subject
	if subject == "" {
		subject = subjectClaim(resp.AccessToken)
	}
	m.persist(&credentials.Credential{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		Subject:      subject,
		ExpiresAt:    resp.ExpiresAt,
	})
	return nil
}

// Logout clears the credential in memory and on disk.
func (m *Manager) Logout() error {
	m.mu.Lock()
	m.cred = nil
	m.loaded = true
	m.mu.Unlock()
	return m.store.Clear()
}

func (m *Manager) post(ctx context.Context, path string, body any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
		return resp.StatusCode, nil
	}
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (m *Manager) persist(cred *credentials.Credential) {
	m.mu.Lock()
	m.cred = cred
	m.loaded = true
	m.mu.Unlock()
	if err := m.store.Save(cred); err != nil {
		// A failed write only costs persistence across restarts; the
		// in-memory session stays usable.
		log.Printf("persist credentials: %v", err)
	}
}

func (m *Manager) clear() {
	m.mu.Lock()
	m.cred = nil
	m.loaded = true
	m.mu.Unlock()
	_ = m.store.Clear()
}

// ensureLoadedLocked lazily reads the store once. Callers hold m.mu.
func (m *Manager) ensureLoadedLocked() {
	if m.loaded {
		return
	}
	m.loaded = true
	cred, err := m.store.Load()
	if err != nil {
		return
	}
	m.cred = cred
}

// subjectClaim extracts the sub claim from a JWT without verifying it.
// The server already authenticated the token exchange; the claim is
// only used for display.
func subjectClaim(token string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	sub, _ := claims.GetSubject()
	return sub
}
