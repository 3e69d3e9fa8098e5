// Package auth implements session tokens, password hashing and the request
// gate that admits authenticated callers.
//
// A session token is an HS256 JWT:
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Payload: {"sub":"<user id>","iat":...,"jti":"<xid>","iss":"task-manager"}
//
// A valid signature only proves the token was minted here. Admission also
// requires the token to still be in its owner's token list (see
// TokenService.Validate), which is what makes logout work.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const issuer = "task-manager"

// ErrTokenExpired is returned by Verify for a correctly signed token whose
// exp claim has passed.
var ErrTokenExpired = errors.New("auth: token expired")

// Signer mints and verifies JWTs with a shared HMAC secret.
type Signer struct {
	secret []byte
	ttl    time.Duration // 0 means tokens carry no exp claim
	now    func() time.Time
}

// NewSigner creates a Signer. ttl == 0 issues tokens that never expire at
// the signature level; revocation still works through the token list.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl < 0 {
		return nil, errors.New("auth: token TTL must not be negative")
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Sign returns a signed token whose subject is userID. Every call gets a
// fresh jti, so two tokens for the same user are never equal.
func (s *Signer) Sign(userID string) (string, error) {
	now := s.now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       xid.New().String(),
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if s.ttl > 0 {
		c.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Verify checks the signature, algorithm, issuer and (when present) expiry
// and returns the subject. It does not consult storage.
//
// jwt.WithValidMethods pins HS256 so a token claiming "none" or an
// asymmetric algorithm is rejected before the key is used.
func (s *Signer) Verify(tokenStr string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.ttl > 0 {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
