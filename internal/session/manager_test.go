package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/credentials"
)

func newTestManager(t *testing.T, serverURL string, cred *credentials.Credential) *Manager {
	t.Helper()
	store := credentials.NewStore(filepath.Join(t.TempDir(), "credentials.json"))
	if cred != nil {
		if err := store.Save(cred); err != nil {
			t.Fatalf("seed credential: %v", err)
		}
	}
	return NewManager(serverURL, store)
}

func tokenHandler(t *testing.T, access string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  access,
			"refresh_token": "ref-next",
			"expires_at":    time.Now().Add(time.Hour).Unix(),
			"subject":       "admin",
		})
	}
}

func TestValidTokenReturnsCachedToken(t *testing.T) {
	var refreshCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		tokenHandler(t, "fresh")(w, r)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, &credentials.Credential{
		AccessToken:  "cached",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	})

	token, err := m.ValidToken(context.Background())
	if err != nil {
		t.Fatalf("ValidToken failed: %v", err)
	}
	if token != "cached" {
		t.Fatalf("expected cached token, got %q", token)
	}
	if refreshCalls.Load() != 0 {
		t.Fatalf("refreshed a valid token")
	}
}

func TestValidTokenRefreshesExpiredToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/refresh" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["refresh_token"] != "ref" {
			t.Fatalf("unexpected refresh token: %q", body["refresh_token"])
		}
		tokenHandler(t, "fresh")(w, r)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, &credentials.Credential{
		AccessToken:  "stale",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	})

	token, err := m.ValidToken(context.Background())
	if err != nil {
		t.Fatalf("ValidToken failed: %v", err)
	}
	if token != "fresh" {
		t.Fatalf("expected refreshed token, got %q", token)
	}
	if m.Subject() != "admin" {
		t.Fatalf("subject not updated: %q", m.Subject())
	}
}

func TestValidTokenNoSession(t *testing.T) {
	m := newTestManager(t, "http://127.0.0.1:0", nil)

	_, err := m.ValidToken(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestConcurrentRefreshIsCoalesced(t *testing.T) {
	var refreshCalls atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		<-release
		tokenHandler(t, "fresh")(w, r)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, &credentials.Credential{
		AccessToken:  "stale",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	})

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	tokens := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = m.ValidToken(context.Background())
		}(i)
	}

	// Let every worker pile up behind the in-flight refresh.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if tokens[i] != "fresh" {
			t.Fatalf("worker %d got token %q", i, tokens[i])
		}
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", got)
	}
}

func TestRefreshRejectionClearsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"Invalid or expired refresh token"}`)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, &credentials.Credential{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	})

	_, err := m.ValidToken(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}

	// The session is torn down: the next call reports no session.
	_, err = m.ValidToken(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after teardown, got %v", err)
	}
	if m.Credential() != nil {
		t.Fatalf("credential survived teardown")
	}
}

func TestRefreshServerErrorKeepsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, &credentials.Credential{
		AccessToken:  "stale",
		RefreshToken: "ref",
		ExpiresAt:    time.Now().Add(-time.Hour).Unix(),
	})

	_, err := m.Refresh(context.Background())
	if err == nil || errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected transient error, got %v", err)
	}
	// A transient failure must not destroy the refresh credential.
	if m.Credential() == nil {
		t.Fatalf("credential cleared on transient failure")
	}
}

func TestLoginPersistsCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		tokenHandler(t, "acc")(w, r)
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "credentials.json")
	store := credentials.NewStore(path)
	m := NewManager(server.URL, store)

	if err := m.Login(context.Background(), "admin", "admin"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// A second manager over the same store sees the persisted session.
	m2 := NewManager(server.URL, credentials.NewStore(path))
	token, err := m2.ValidToken(context.Background())
	if err != nil {
		t.Fatalf("ValidToken failed: %v", err)
	}
	if token != "acc" {
		t.Fatalf("expected persisted token, got %q", token)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	m := newTestManager(t, server.URL, nil)
	if err := m.Login(context.Background(), "admin", "wrong"); err == nil {
		t.Fatalf("expected login failure")
	}
}
