package auth

import (
	"testing"
	"time"

	"stocksense/internal/store"
)

var testUser = &store.User{ID: 42, OrgID: 7, Email: "ops@example.com", Role: "admin"}

func newTestManager() *Manager {
	m := NewManager("test-secret", 30, 7)
	m.nowFunc = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return m
}

func TestIssueAndVerifyPair(t *testing.T) {
	m := newTestManager()

	pair, err := m.IssuePair(testUser)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := m.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != 42 || claims.OrgID != 7 || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := m.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Errorf("VerifyRefresh: %v", err)
	}
}

func TestTokenTypesDoNotCross(t *testing.T) {
	m := newTestManager()
	pair, err := m.IssuePair(testUser)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.VerifyAccess(pair.RefreshToken); err == nil {
		t.Error("refresh token must not verify as access")
	}
	if _, err := m.VerifyRefresh(pair.AccessToken); err == nil {
		t.Error("access token must not verify as refresh")
	}
}

func TestExpiredAccessTokenRejected(t *testing.T) {
	m := newTestManager()
	pair, err := m.IssuePair(testUser)
	if err != nil {
		t.Fatal(err)
	}

	m.nowFunc = func() time.Time { return time.Date(2026, 3, 10, 12, 31, 0, 0, time.UTC) }
	if _, err := m.VerifyAccess(pair.AccessToken); err == nil {
		t.Error("expired access token must be rejected")
	}
	// Refresh token is still inside its 7 day window.
	if _, err := m.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Errorf("refresh token rejected early: %v", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	pair, err := newTestManager().IssuePair(testUser)
	if err != nil {
		t.Fatal(err)
	}

	other := NewManager("other-secret", 30, 7)
	if _, err := other.VerifyAccess(pair.AccessToken); err == nil {
		t.Error("token signed with a different secret must be rejected")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	m := newTestManager()
	for _, tok := range []string{"", "not.a.jwt", "a.b"} {
		if _, err := m.VerifyAccess(tok); err == nil {
			t.Errorf("garbage token %q accepted", tok)
		}
	}
}
