// Package services holds the identity core: the session gate, the
// credential lifecycle flows (registration, verification, password reset
// and change, login, logout) and the SSO handoff between the hub and the
// task application.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/logging"
	"github.com/dmitrijs2005/taskhub/internal/server/auth"
	"github.com/dmitrijs2005/taskhub/internal/server/config"
	"github.com/dmitrijs2005/taskhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskhub/internal/server/revocation"
)

// SessionVerifier decides, per request, whether a presented session
// credential is currently valid.
type SessionVerifier struct {
	codec     *auth.Codec
	revoked   revocation.Store
	repos     repomanager.RepositoryManager
	maxAge    time.Duration
	tolerance time.Duration
	now       func() time.Time
	log       logging.Logger
}

func NewSessionVerifier(codec *auth.Codec, revoked revocation.Store, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *SessionVerifier {
	return &SessionVerifier{
		codec:     codec,
		revoked:   revoked,
		repos:     m,
		maxAge:    cfg.SessionMaxAge,
		tolerance: cfg.ClockSkewTolerance,
		now:       time.Now,
		log:       log,
	}
}

// Authenticate runs the gate. Every rejection returns
// common.ErrorUnauthorized; the reason only goes to the log.
func (v *SessionVerifier) Authenticate(ctx context.Context, credential string) (*Principal, error) {
	reject := func(reason string, args ...any) (*Principal, error) {
		v.log.Warn(ctx, "credential rejected", append([]any{"reason", reason}, args...)...)
		return nil, common.ErrorUnauthorized
	}

	if credential == "" {
		return reject("missing")
	}

	revoked, err := v.revoked.IsRevoked(ctx, credential)
	if err != nil {
		return reject("revocation lookup failed", "error", err)
	}
	if revoked {
		return reject("revoked")
	}

	session, err := v.codec.ParseSession(credential)
	if err != nil {
		return reject("invalid")
	}

	if v.now().Sub(session.IssuedAt) > v.maxAge {
		return reject("max age exceeded", "user_id", session.SubjectID, "issued_at", session.IssuedAt)
	}

	user, err := v.repos.Users().GetByID(ctx, session.SubjectID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return reject("unknown subject", "user_id", session.SubjectID)
		}
		return reject("user lookup failed", "user_id", session.SubjectID, "error", err)
	}

	if !user.EmailVerified {
		return reject("email unverified", "user_id", user.ID)
	}

	if user.PasswordChangedAt.After(session.IssuedAt.Add(v.tolerance)) {
		return reject("password changed", "user_id", user.ID,
			"issued_at", session.IssuedAt, "password_changed_at", user.PasswordChangedAt)
	}

	return &Principal{UserID: user.ID, Role: user.Role, Credential: credential}, nil
}
