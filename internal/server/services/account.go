package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/logging"
	"github.com/dmitrijs2005/taskhub/internal/server/auth"
	"github.com/dmitrijs2005/taskhub/internal/server/config"
	"github.com/dmitrijs2005/taskhub/internal/server/mailer"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
	"github.com/dmitrijs2005/taskhub/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/taskhub/internal/server/repositories/users"
	"github.com/dmitrijs2005/taskhub/internal/server/revocation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Messages returned by the self-service flows.
const (
	MsgRegistered       = "Registration successful. Check your email to verify your account."
	MsgEmailVerified    = "Email verified."
	MsgVerificationSent = "If the account exists and is not verified yet, a new verification email has been sent."
	MsgResetRequested   = "If an account with that email exists, a password reset link has been sent."
	MsgPasswordReset    = "Your password has been reset."
	MsgLoggedOut        = "Logged out."
	MsgUserDeleted      = "User deleted."
)

// Paths of the task application pages that take a token from the link.
const (
	verifyEmailPath   = "/verify-email"
	resetPasswordPath = "/reset-password"
)

// Grant is returned by every operation that starts a session.
type Grant struct {
	User              *models.User
	SessionCredential string
}

// AccountService owns the lifecycle of session credentials and of the
// email verification and password reset tokens.
type AccountService struct {
	repos    repomanager.RepositoryManager
	codec    *auth.Codec
	revoked  revocation.Store
	notifier mailer.Notifier
	log      logging.Logger

	verifyTTL  time.Duration
	resetTTL   time.Duration
	bcryptCost int
	baseURL    string
	managers   map[string]struct{}

	// dummyHash is compared against when the email is unknown, so a
	// failed login costs the same either way.
	dummyHash []byte
	now       func() time.Time
}

func NewAccountService(m repomanager.RepositoryManager, codec *auth.Codec, revoked revocation.Store,
	notifier mailer.Notifier, cfg *config.Config, log logging.Logger) (*AccountService, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("taskhub-dummy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	managers := make(map[string]struct{}, len(cfg.ManagerEmails))
	for _, e := range cfg.ManagerEmails {
		managers[models.NormalizeEmail(e)] = struct{}{}
	}

	return &AccountService{
		repos:      m,
		codec:      codec,
		revoked:    revoked,
		notifier:   notifier,
		log:        log,
		verifyTTL:  cfg.EmailVerificationTTL,
		resetTTL:   cfg.PasswordResetTTL,
		bcryptCost: cfg.BcryptCost,
		baseURL:    strings.TrimRight(cfg.AppBaseURL, "/"),
		managers:   managers,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

func (s *AccountService) link(path, token string) string {
	return s.baseURL + path + "?token=" + url.QueryEscape(token)
}

// watermark is the password change time. It is truncated to whole seconds
// to match the precision of iat, so a credential minted right after the
// change is never older than the change itself.
func (s *AccountService) watermark() time.Time {
	return s.now().Truncate(time.Second)
}

func (s *AccountService) role(email string) models.Role {
	if _, ok := s.managers[models.NormalizeEmail(email)]; ok {
		return models.RoleManager
	}
	return models.RoleMember
}

// Register creates an unverified account and emails a verification link.
// When the email cannot be sent the account is rolled back, so no
// unreachable unverified user is left behind.
func (s *AccountService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(email) == "" || password == "" {
		return nil, common.ErrMissingInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = s.repos.WithTx(ctx, func(ctx context.Context, repo users.Repository) error {
		u, err := repo.Create(ctx, &models.User{
			Name:              strings.TrimSpace(name),
			Email:             email,
			PasswordHash:      string(hash),
			Role:              s.role(email),
			EmailVerification: models.Token{Value: token, ExpiresAt: s.now().Add(s.verifyTTL)},
		})
		if err != nil {
			return err
		}

		if err := s.notifier.SendTemplated(ctx, u.Email, mailer.TemplateVerifyEmail, map[string]any{
			"Name":      u.Name,
			"Link":      s.link(verifyEmailPath, token),
			"ExpiresIn": s.verifyTTL.String(),
		}); err != nil {
			return fmt.Errorf("send verification email: %w", err)
		}

		created = u
		return nil
	})
	if err != nil {
		if !errors.Is(err, common.ErrEmailTaken) {
			s.log.Error(ctx, "registration failed", "email", email, "error", err)
		}
		return nil, err
	}

	s.log.Info(ctx, "user registered", "user_id", created.ID, "role", created.Role)
	return created.Public(), nil
}

// VerifyEmail consumes an email verification token. An expired token is
// rejected but left in place.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", common.ErrMissingInput
	}

	user, err := s.repos.Users().FindByToken(ctx, models.TokenEmailVerification, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidToken
		}
		return "", err
	}
	if user.EmailVerified {
		return "", common.ErrAlreadyVerified
	}

	now := s.now()
	if user.EmailVerification.Expired(now) {
		s.log.Info(ctx, "verification token expired", "user_id", user.ID)
		return "", common.ErrTokenExpired
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, repo users.Repository) error {
		if _, err := repo.ConsumeToken(ctx, models.TokenEmailVerification, token, now); err != nil {
			return err
		}
		return repo.MarkEmailVerified(ctx, user.ID)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "verification token already consumed", "user_id", user.ID)
			return "", common.ErrAlreadyConsumed
		}
		return "", err
	}

	s.notifyBestEffort(ctx, user, mailer.TemplateWelcome)
	s.log.Info(ctx, "email verified", "user_id", user.ID)
	return MsgEmailVerified, nil
}

// ResendVerification replaces any previous verification token with a fresh
// one. Unknown addresses get the same reply as known ones.
func (s *AccountService) ResendVerification(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", common.ErrMissingInput
	}

	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Info(ctx, "verification resend for unknown email")
			return MsgVerificationSent, nil
		}
		return "", err
	}
	if user.EmailVerified {
		return "", common.ErrAlreadyVerified
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, repo users.Repository) error {
		t := models.Token{Value: token, ExpiresAt: s.now().Add(s.verifyTTL)}
		if err := repo.SetToken(ctx, user.ID, models.TokenEmailVerification, t); err != nil {
			return err
		}
		return s.notifier.SendTemplated(ctx, user.Email, mailer.TemplateVerifyEmail, map[string]any{
			"Name":      user.Name,
			"Link":      s.link(verifyEmailPath, token),
			"ExpiresIn": s.verifyTTL.String(),
		})
	})
	if err != nil {
		s.log.Error(ctx, "verification resend failed", "user_id", user.ID, "error", err)
		return "", err
	}

	return MsgVerificationSent, nil
}

// RequestPasswordReset issues a reset token for a verified account. The
// reply for an unknown address is identical to the reply for a known one.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", common.ErrMissingInput
	}

	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Info(ctx, "password reset requested for unknown email")
			return MsgResetRequested, nil
		}
		return "", err
	}
	if !user.EmailVerified {
		return "", common.ErrEmailUnverified
	}

	token, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, repo users.Repository) error {
		t := models.Token{Value: token, ExpiresAt: s.now().Add(s.resetTTL)}
		if err := repo.SetToken(ctx, user.ID, models.TokenPasswordReset, t); err != nil {
			return err
		}
		return s.notifier.SendTemplated(ctx, user.Email, mailer.TemplateResetPassword, map[string]any{
			"Name":      user.Name,
			"Link":      s.link(resetPasswordPath, token),
			"ExpiresIn": s.resetTTL.String(),
		})
	})
	if err != nil {
		s.log.Error(ctx, "password reset request failed", "user_id", user.ID, "error", err)
		return "", err
	}

	s.log.Info(ctx, "password reset issued", "user_id", user.ID)
	return MsgResetRequested, nil
}

// ResetPassword consumes a reset token and sets a new password. The token
// is cleared in the same transaction that writes the new hash, and of
// concurrent attempts with one token at most one gets through.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	if token == "" || newPassword == "" {
		return "", common.ErrMissingInput
	}

	user, err := s.repos.Users().FindByToken(ctx, models.TokenPasswordReset, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrInvalidToken
		}
		return "", err
	}

	if user.PasswordReset.Expired(s.now()) {
		s.log.Info(ctx, "reset token expired", "user_id", user.ID)
		return "", common.ErrTokenExpired
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(newPassword)) == nil {
		return "", common.ErrSamePassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	err = s.repos.WithTx(ctx, func(ctx context.Context, repo users.Repository) error {
		if _, err := repo.ConsumeToken(ctx, models.TokenPasswordReset, token, s.now()); err != nil {
			return err
		}
		return repo.UpdatePassword(ctx, user.ID, string(hash), s.watermark())
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.log.Warn(ctx, "reset token already consumed", "user_id", user.ID)
			return "", common.ErrAlreadyConsumed
		}
		return "", err
	}

	s.notifyBestEffort(ctx, user, mailer.TemplatePasswordChanged)
	s.log.Info(ctx, "password reset", "user_id", user.ID)
	return MsgPasswordReset, nil
}

// Login checks email and password and starts a session. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (*Grant, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, common.ErrMissingInput
	}

	user, err := s.checkPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if !user.EmailVerified {
		return nil, common.ErrEmailUnverified
	}

	return s.grant(user)
}

// checkPassword returns common.ErrInvalidCredentials for both an unknown
// email and a wrong password.
func (s *AccountService) checkPassword(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, common.ErrInvalidCredentials
	}
	return user, nil
}

func (s *AccountService) grant(user *models.User) (*Grant, error) {
	credential, err := s.codec.IssueSession(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &Grant{User: user.Public(), SessionCredential: credential}, nil
}

// Logout revokes the credential the request was authenticated with. The
// entry outlives the credential's own expiry.
func (s *AccountService) Logout(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		return "", common.ErrMissingInput
	}
	if err := s.revoked.Revoke(ctx, credential, s.codec.Lifetime()); err != nil {
		return "", err
	}
	return MsgLoggedOut, nil
}

// ChangePassword replaces the password of an authenticated user. Every
// session issued before the change stops working; the returned grant is
// the caller's new session.
func (s *AccountService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*Grant, error) {
	if currentPassword == "" || newPassword == "" {
		return nil, common.ErrMissingInput
	}

	user, err := s.repos.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)) != nil {
		return nil, common.ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return nil, common.ErrSamePassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repos.Users().UpdatePassword(ctx, user.ID, string(hash), s.watermark()); err != nil {
		return nil, err
	}

	s.notifyBestEffort(ctx, user, mailer.TemplatePasswordChanged)
	s.log.Info(ctx, "password changed", "user_id", user.ID)
	return s.grant(user)
}

// Whoami returns the authenticated user without secrets.
func (s *AccountService) Whoami(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repos.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// DeleteUser removes an account. Callers must already hold the manager role.
// An id that is not a UUID cannot name an account and is reported as not
// found without reaching the store.
func (s *AccountService) DeleteUser(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", common.ErrMissingInput
	}
	if _, err := uuid.Parse(userID); err != nil {
		return "", common.ErrorNotFound
	}
	if err := s.repos.Users().Delete(ctx, userID); err != nil {
		return "", err
	}
	s.log.Info(ctx, "user deleted", "user_id", userID)
	return MsgUserDeleted, nil
}

// notifyBestEffort sends a notification whose failure must not undo the
// operation that triggered it.
func (s *AccountService) notifyBestEffort(ctx context.Context, user *models.User, template string) {
	data := map[string]any{"Name": user.Name}
	if err := s.notifier.SendTemplated(ctx, user.Email, template, data); err != nil {
		s.log.Warn(ctx, "notification not sent", "user_id", user.ID, "template", template, "error", err)
	}
}
