package credentials

import (
	"path/filepath"
	"testing"
	"time"
)

func TestStoreRoundtrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested", "credentials.json"))

	cred := &Credential{
		AccessToken:  "acc",
		RefreshToken: "ref",
		Subject:      "admin",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
	}
	if err := store.Save(cred); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil || got.AccessToken != "acc" || got.Subject != "admin" {
		t.Fatalf("unexpected credential: %+v", got)
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil credential, got %+v", got)
	}
}

func TestStoreClear(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "credentials.json"))

	// Clearing an absent file is fine.
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear of absent file failed: %v", err)
	}

	if err := store.Save(&Credential{AccessToken: "acc"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	got, err := store.Load()
	if err != nil || got != nil {
		t.Fatalf("expected empty store after clear, got %+v err=%v", got, err)
	}
}

func TestCredentialExpired(t *testing.T) {
	now := time.Unix(1000, 0)

	var nilCred *Credential
	if !nilCred.Expired(now, 0) {
		t.Fatalf("nil credential should be expired")
	}

	cred := &Credential{ExpiresAt: 2000}
	if cred.Expired(now, 5*time.Second) {
		t.Fatalf("fresh credential reported expired")
	}

	// Inside the safety margin counts as expired.
	if !cred.Expired(time.Unix(1996, 0), 5*time.Second) {
		t.Fatalf("credential within margin should be expired")
	}
	if !cred.Expired(time.Unix(3000, 0), 0) {
		t.Fatalf("stale credential should be expired")
	}
}
