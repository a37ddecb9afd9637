// Package auth mints and parses the credentials used by TaskHub: the
// signed session credential (JWT) and the opaque single-use tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HMAC signing secret, in bytes.
const MinSecretLength = 32

// ErrInvalidSession is the only error ParseSession returns. The underlying
// reason is not exposed.
var ErrInvalidSession = errors.New("invalid session credential")

// Claims embeds the registered claims; the subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Session is what a valid credential proves.
type Session struct {
	SubjectID string
	IssuedAt  time.Time
}

// Codec signs and verifies session credentials with HS256.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	lifetime time.Duration
	now      func() time.Time
}

// NewCodec validates the secret length once, at construction. A short
// secret is a startup failure, never a per-call error.
func NewCodec(secret, issuer, audience string, lifetime time.Duration) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", common.ErrWeakSecret, MinSecretLength, len(secret))
	}
	if lifetime <= 0 {
		return nil, fmt.Errorf("session lifetime must be positive, got %s", lifetime)
	}
	return &Codec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		lifetime: lifetime,
		now:      time.Now,
	}, nil
}

// WithClock replaces the time source used for iat, exp and validation.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Lifetime is the validity window stamped into every credential.
func (c *Codec) Lifetime() time.Duration {
	return c.lifetime
}

// IssueSession returns a signed credential for userID. Each credential
// carries its own jti, so two sessions minted in the same second can be
// revoked independently.
func (c *Codec) IssueSession(userID string) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
	})

	return token.SignedString(c.secret)
}

// ParseSession verifies signature, algorithm, issuer, audience and expiry.
// Every failure yields ErrInvalidSession.
func (c *Codec) ParseSession(credential string) (*Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidSession
	}

	return &Session{SubjectID: claims.Subject, IssuedAt: claims.IssuedAt.Time}, nil
}
