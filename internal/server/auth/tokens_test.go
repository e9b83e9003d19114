package auth

import (
	"testing"
	"time"
)

func newTestIssuer() *Issuer {
	return NewIssuer("test-secret", "lighthouse", "lighthouse-ui", 15*time.Minute, 7*24*time.Hour)
}

func TestIssueAndVerifyPair(t *testing.T) {
	issuer := newTestIssuer()

	pair, err := issuer.IssuePair("admin")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}
	if pair.Subject != "admin" || pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if pair.ExpiresAt <= time.Now().Unix() {
		t.Fatalf("access expiry in the past: %d", pair.ExpiresAt)
	}

	subject, err := issuer.Verify(pair.AccessToken, TypeAccess)
	if err != nil {
		t.Fatalf("Verify access failed: %v", err)
	}
	if subject != "admin" {
		t.Fatalf("subject = %q, want admin", subject)
	}

	subject, err = issuer.Verify(pair.RefreshToken, TypeRefresh)
	if err != nil || subject != "admin" {
		t.Fatalf("Verify refresh failed: subject=%q err=%v", subject, err)
	}
}

func TestVerifyRejectsWrongType(t *testing.T) {
	issuer := newTestIssuer()
	pair, err := issuer.IssuePair("admin")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	// A refresh token must never pass as an access token, and vice
	// versa.
	if _, err := issuer.Verify(pair.RefreshToken, TypeAccess); err == nil {
		t.Fatalf("refresh token accepted as access token")
	}
	if _, err := issuer.Verify(pair.AccessToken, TypeRefresh); err == nil {
		t.Fatalf("access token accepted as refresh token")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	pair, err := newTestIssuer().IssuePair("admin")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	other := NewIssuer("other-secret", "lighthouse", "lighthouse-ui", time.Minute, time.Hour)
	if _, err := other.Verify(pair.AccessToken, TypeAccess); err == nil {
		t.Fatalf("token verified under wrong secret")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := newTestIssuer()
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	pair, err := issuer.IssuePair("admin")
	if err != nil {
		t.Fatalf("IssuePair failed: %v", err)
	}

	live := newTestIssuer()
	if _, err := live.Verify(pair.AccessToken, TypeAccess); err == nil {
		t.Fatalf("expired token verified")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	if _, err := newTestIssuer().Verify("not-a-jwt", TypeAccess); err == nil {
		t.Fatalf("garbage token verified")
	}
}
