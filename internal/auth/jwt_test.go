package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-at-least-16-chars!!"

// newTestTokenService creates a TokenService for testing.
// It uses a fixed, known secret so tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_ValidSecret(t *testing.T) {
	_, err := NewTokenService("this-is-16-chars", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error for valid secret: %v", err)
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if ts.ttl != DefaultTokenTTL {
		t.Errorf("ttl = %v, want %v", ts.ttl, DefaultTokenTTL)
	}
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestIssue_ReturnsJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// header.payload.signature
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("Issue() token doesn't look like a JWT: %d parts", len(parts))
	}
}

func TestIssue_ClaimsCarrySubjectAndTimes(t *testing.T) {
	ts := newTestTokenService(t)
	before := time.Now().Add(-time.Second)

	token, err := ts.Issue("user-123")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	c := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, c); err != nil {
		t.Fatalf("ParseUnverified() error = %v", err)
	}

	if c.Subject != "user-123" {
		t.Errorf("sub = %q, want %q", c.Subject, "user-123")
	}
	if c.IssuedAt == nil || c.IssuedAt.Before(before) {
		t.Errorf("iat = %v, want about now", c.IssuedAt)
	}
	if c.ExpiresAt == nil {
		t.Fatal("exp not set")
	}
	if lifetime := c.ExpiresAt.Sub(c.IssuedAt.Time); lifetime != time.Hour {
		t.Errorf("exp - iat = %v, want 1h", lifetime)
	}
}

func TestIssue_DifferentUsersGetDifferentTokens(t *testing.T) {
	ts := newTestTokenService(t)

	token1, _ := ts.Issue("user-aaa")
	token2, _ := ts.Issue("user-bbb")

	if token1 == token2 {
		t.Error("Issue() returned identical tokens for different user IDs")
	}
}

// =========================================================================
// VERIFY TESTS
// =========================================================================

func TestVerify_RoundTrip(t *testing.T) {
	ts := newTestTokenService(t)
	userID := "user-abc-123"

	token, err := ts.Issue(userID)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != userID {
		t.Errorf("Verify() userID = %q, want %q", got, userID)
	}
}

// Every failure mode must come back as the same ErrInvalidToken.
func TestVerify_FailuresCollapseToErrInvalidToken(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", time.Hour)

	expired, _ := ts.IssueWithTTL("user-123", -time.Second)
	valid, _ := ts.Issue("user-123")
	foreign, _ := other.Issue("user-123")
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-123",
	}).SignedString([]byte(testSecret))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-123",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
		{"expired", expired},
		{"tampered signature", valid[:len(valid)-3] + "xxx"},
		{"signed with another secret", foreign},
		{"missing subject", noSubject},
		{"missing expiry", noExpiry},
		{"wrong HMAC algorithm", hs512},
		{"alg none", none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

// =========================================================================
// TTL TESTS
// =========================================================================

func TestIssueWithTTL_FutureToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueWithTTL("user-123", 24*time.Hour)
	if err != nil {
		t.Fatalf("IssueWithTTL() error = %v", err)
	}

	userID, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify() on 24h token error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("userID = %q, want %q", userID, "user-123")
	}
}
