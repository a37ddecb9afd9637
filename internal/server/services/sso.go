package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/logging"
	"github.com/dmitrijs2005/taskhub/internal/server/auth"
	"github.com/dmitrijs2005/taskhub/internal/server/config"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
	"github.com/dmitrijs2005/taskhub/internal/server/repositories/repomanager"
)

// Hub login replies. Every failure other than an unverified email shares
// one message.
const (
	MsgHubLoginOK         = "Login successful."
	MsgHubLoginFailed     = "Invalid email or password."
	MsgHubLoginUnverified = "Please verify your email before signing in."
)

// HubLoginResult is the reply to the hub. SSOToken is only set when
// Authenticated is true.
type HubLoginResult struct {
	Authenticated bool
	UserName      string
	SSOToken      string
	Message       string
}

// SSOService hands a hub login over to the task application with a short,
// single-use opaque token.
type SSOService struct {
	accounts *AccountService
	repos    repomanager.RepositoryManager
	ttl      time.Duration
	log      logging.Logger
	now      func() time.Time
}

func NewSSOService(accounts *AccountService, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *SSOService {
	return &SSOService{
		accounts: accounts,
		repos:    m,
		ttl:      cfg.SSOTokenTTL,
		log:      log,
		now:      time.Now,
	}
}

// HubLogin authenticates at the hub and mints an SSO token. Failures come
// back as an unauthenticated result, not as an error; the reason and the
// caller's address are logged. Only store failures return an error.
func (s *SSOService) HubLogin(ctx context.Context, email, password, peer string) (*HubLoginResult, error) {
	fail := func(reason, msg string, args ...any) (*HubLoginResult, error) {
		s.log.Warn(ctx, "hub login failed", append([]any{"reason", reason, "peer", peer}, args...)...)
		return &HubLoginResult{Message: msg}, nil
	}

	if strings.TrimSpace(email) == "" || password == "" {
		return fail("missing credentials", MsgHubLoginFailed)
	}

	user, err := s.accounts.checkPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			return fail("invalid credentials", MsgHubLoginFailed, "email", email)
		}
		return nil, err
	}
	if !user.EmailVerified {
		return fail("email unverified", MsgHubLoginUnverified, "user_id", user.ID)
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	t := models.Token{Value: token, ExpiresAt: s.now().Add(s.ttl)}
	if err := s.repos.Users().SetToken(ctx, user.ID, models.TokenSSO, t); err != nil {
		return nil, fmt.Errorf("store sso token: %w", err)
	}

	s.log.Info(ctx, "hub login", "user_id", user.ID, "peer", peer)
	return &HubLoginResult{
		Authenticated: true,
		UserName:      user.Name,
		SSOToken:      token,
		Message:       MsgHubLoginOK,
	}, nil
}

// Redeem exchanges an SSO token for a session. The token is cleared before
// the session is minted, so it cannot be replayed even if minting fails.
// An expired token is rejected and cleared.
func (s *SSOService) Redeem(ctx context.Context, token string) (*Grant, error) {
	if token == "" {
		return nil, common.ErrMissingInput
	}

	now := s.now()
	user, err := s.repos.Users().ConsumeToken(ctx, models.TokenSSO, token, now)
	if err == nil {
		s.log.Info(ctx, "sso token redeemed", "user_id", user.ID)
		return s.accounts.grant(user)
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	stale, err := s.repos.Users().FindByToken(ctx, models.TokenSSO, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "sso redeem rejected", "reason", "unknown or consumed token")
			return nil, common.ErrInvalidToken
		}
		return nil, err
	}

	if stale.SSO.Expired(now) {
		if err := s.repos.Users().ClearToken(ctx, models.TokenSSO, token); err != nil {
			s.log.Error(ctx, "clear expired sso token", "user_id", stale.ID, "error", err)
		}
		s.log.Warn(ctx, "sso redeem rejected", "reason", "expired", "user_id", stale.ID)
		return nil, common.ErrTokenExpired
	}

	// Still live yet not consumable, e.g. a timestamp precision edge.
	s.log.Warn(ctx, "sso redeem rejected", "reason", "not consumable", "user_id", stale.ID)
	return nil, common.ErrInvalidToken
}
