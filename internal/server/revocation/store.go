// Package revocation tracks session credentials revoked before their
// natural expiry (logout).
//
// Entries only need to outlive the credential itself, so every Revoke
// carries a TTL after which the entry disappears on its own.
package revocation

import (
	"context"
	"time"
)

// Store is the revocation registry. Implementations must be safe for
// concurrent use.
type Store interface {
	// Revoke marks credential as unusable for ttl.
	Revoke(ctx context.Context, credential string, ttl time.Duration) error

	// IsRevoked reports whether credential is currently revoked.
	IsRevoked(ctx context.Context, credential string) (bool, error)
}
