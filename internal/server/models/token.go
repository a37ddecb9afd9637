package models

import "time"

// TokenClass identifies one of the opaque single-use token slots on a user.
type TokenClass int

const (
	TokenEmailVerification TokenClass = iota + 1
	TokenPasswordReset
	TokenSSO
)

func (c TokenClass) String() string {
	switch c {
	case TokenEmailVerification:
		return "email_verification"
	case TokenPasswordReset:
		return "password_reset"
	case TokenSSO:
		return "sso"
	}
	return "unknown"
}

// Token is an opaque value with an absolute expiry. The zero Token is an
// empty slot.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t Token) IsZero() bool {
	return t.Value == ""
}

// Expired reports whether now is strictly after the expiry timestamp.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Live reports whether the slot holds a value that has not expired.
func (t Token) Live(now time.Time) bool {
	return !t.IsZero() && !t.Expired(now)
}
