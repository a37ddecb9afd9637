package models

import (
	"strings"
	"time"
)

// Role is used by authorization gates after authentication.
type Role string

const (
	RoleMember  Role = "member"
	RoleManager Role = "manager"
)

// User is the subset of the user record the identity core reads and writes.
//
// Each single-use token class occupies exactly one slot on the record;
// issuing a new token of a class overwrites the slot, which silently
// invalidates the previous value.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role

	EmailVerified     bool
	EmailVerification Token
	PasswordReset     Token
	SSO               Token

	// PasswordChangedAt is the watermark for session invalidation: session
	// credentials issued before it (beyond the clock-skew tolerance) are
	// rejected.
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Token returns the slot for the given class.
func (u *User) Token(class TokenClass) Token {
	switch class {
	case TokenEmailVerification:
		return u.EmailVerification
	case TokenPasswordReset:
		return u.PasswordReset
	case TokenSSO:
		return u.SSO
	}
	return Token{}
}

// SetToken overwrites the slot for the given class.
func (u *User) SetToken(class TokenClass, t Token) {
	switch class {
	case TokenEmailVerification:
		u.EmailVerification = t
	case TokenPasswordReset:
		u.PasswordReset = t
	case TokenSSO:
		u.SSO = t
	}
}

// Public returns a copy safe to hand to clients: no password hash and no
// token values.
func (u *User) Public() *User {
	return &User{
		ID:                u.ID,
		Name:              u.Name,
		Email:             u.Email,
		Role:              u.Role,
		EmailVerified:     u.EmailVerified,
		PasswordChangedAt: u.PasswordChangedAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// NormalizeEmail makes email comparisons case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
