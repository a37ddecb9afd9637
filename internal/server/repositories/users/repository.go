// Package users is the user store consumed by the identity core.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/server/models"
)

// Repository stores user records. Lookups that find nothing return
// common.ErrorNotFound; Create returns common.ErrEmailTaken on a duplicate
// (case-insensitive) email.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// FindByToken looks a user up by the value in the given token slot,
	// regardless of expiry.
	FindByToken(ctx context.Context, class models.TokenClass, value string) (*models.User, error)

	// SetToken overwrites the slot. A zero Token clears it.
	SetToken(ctx context.Context, userID string, class models.TokenClass, token models.Token) error

	// ConsumeToken atomically clears the slot holding value if, and only
	// if, it has not expired at now. The returned user still carries value
	// in that slot. Of several concurrent calls with the same value at most
	// one succeeds; the others get common.ErrorNotFound.
	ConsumeToken(ctx context.Context, class models.TokenClass, value string, now time.Time) (*models.User, error)

	// ClearToken clears the slot holding value, expired or not.
	ClearToken(ctx context.Context, class models.TokenClass, value string) error

	MarkEmailVerified(ctx context.Context, userID string) error

	// UpdatePassword replaces the hash, moves the session watermark to
	// changedAt and clears the reset and SSO slots.
	UpdatePassword(ctx context.Context, userID, passwordHash string, changedAt time.Time) error

	Delete(ctx context.Context, userID string) error
}
