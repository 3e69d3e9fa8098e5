package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// newTestSigner uses a fixed secret so tests are deterministic.
func newTestSigner(t *testing.T, ttl time.Duration) *Signer {
	t.Helper()
	s, err := NewSigner("test-secret-at-least-16-chars!!", ttl)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return s
}

// =========================================================================
// CONSTRUCTION
// =========================================================================

func TestNewSigner_ShortSecret(t *testing.T) {
	if _, err := NewSigner("short", 0); err == nil {
		t.Fatal("NewSigner() should reject secrets shorter than 16 chars")
	}
}

func TestNewSigner_NegativeTTL(t *testing.T) {
	if _, err := NewSigner("this-is-16-chars", -time.Second); err == nil {
		t.Fatal("NewSigner() should reject a negative TTL")
	}
}

// =========================================================================
// SIGN
// =========================================================================

func TestSign_LooksLikeJWT(t *testing.T) {
	s := newTestSigner(t, 0)

	token, err := s.Sign("user-123")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Sign() token doesn't look like a JWT: %q", token)
	}
}

func TestSign_SameUserGetsDistinctTokens(t *testing.T) {
	s := newTestSigner(t, 0)

	// Same user, same second: the jti keeps them apart.
	a, _ := s.Sign("user-123")
	b, _ := s.Sign("user-123")
	if a == b {
		t.Error("Sign() returned identical tokens for two sessions of one user")
	}
}

func TestSign_NoTTLMeansNoExpiry(t *testing.T) {
	s := newTestSigner(t, 0)
	token, _ := s.Sign("user-123")

	parsed, _, err := jwt.NewParser().ParseUnverified(token, &claims{})
	if err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if parsed.Claims.(*claims).ExpiresAt != nil {
		t.Error("token signed without TTL carries an exp claim")
	}
}

// =========================================================================
// VERIFY
// =========================================================================

func TestVerify_RoundTrip(t *testing.T) {
	s := newTestSigner(t, time.Hour)

	token, err := s.Sign("user-abc")
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	got, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != "user-abc" {
		t.Errorf("Verify() = %q, want %q", got, "user-abc")
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	s := newTestSigner(t, time.Minute)
	token, _ := s.Sign("user-123")

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := s.Verify(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Verify() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerify_Rejects(t *testing.T) {
	s := newTestSigner(t, 0)
	good, _ := s.Sign("user-123")

	other, _ := NewSigner("wrong-secret-32-chars-long!!!!!!", 0)
	foreign, _ := other.Sign("user-123")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-123", Issuer: issuer,
	}})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer: issuer,
	}})
	noSubjectToken, _ := noSubject.SignedString(s.secret)

	wrongIssuer := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject: "user-123", Issuer: "someone-else",
	}})
	wrongIssuerToken, _ := wrongIssuer.SignedString(s.secret)

	tests := []struct {
		name  string
		token string
	}{
		{"tampered signature", good[:len(good)-3] + "xxx"},
		{"different secret", foreign},
		{"alg none", noneToken},
		{"missing subject", noSubjectToken},
		{"wrong issuer", wrongIssuerToken},
		{"empty", ""},
		{"garbage", "not.a.jwt.token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Verify(tt.token); err == nil {
				t.Errorf("Verify(%s) should fail", tt.name)
			}
		})
	}
}
