// Package credentials persists the dashboard session credential so a
// login survives process restarts. The credential is stored as JSON at
// ~/.lighthouse/credentials.json with owner-only permissions.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credential is the current access/refresh token pair plus derived
// identity claims. Exactly one credential exists per store.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Subject      string `json:"subject,omitempty"`
	// ExpiresAt is the access token expiry as unix seconds.
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the access token is expired at now, treating
// it as expired margin before the claimed expiry.
func (c *Credential) Expired(now time.Time, margin time.Duration) bool {
	if c == nil || c.ExpiresAt == 0 {
		return true
	}
	return !now.Add(margin).Before(time.Unix(c.ExpiresAt, 0))
}

// Store reads and writes the credential file.
type Store struct {
	path string
}

// DefaultPath returns ~/.lighthouse/credentials.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".lighthouse", "credentials.json"), nil
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the stored credential. A missing file yields (nil, nil).
func (s *Store) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &cred, nil
}

// Save writes the credential, creating the parent directory if needed.
func (s *Store) Save(cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("nil credential")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0o600)
}

// Clear removes the credential file. Clearing an absent file is not an
// error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
