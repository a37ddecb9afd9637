package services

import (
	"context"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
)

// Principal is what the session gate attaches to an authenticated request.
type Principal struct {
	UserID string
	Role   models.Role
	// Credential is the bearer string the request presented, kept so
	// logout can revoke it.
	Credential string
}

type principalKey struct{}

// WithPrincipal returns a child context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal set by the gate, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// RequireRole fails with common.ErrorUnauthorized when the request is not
// authenticated and with common.ErrForbidden when the role differs.
func RequireRole(ctx context.Context, role models.Role) (*Principal, error) {
	p, ok := PrincipalFromContext(ctx)
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	if p.Role != role {
		return nil, common.ErrForbidden
	}
	return p, nil
}
