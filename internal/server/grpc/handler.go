package grpc

import (
	"context"

	"github.com/dmitrijs2005/taskhub/internal/api"
	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
	"github.com/dmitrijs2005/taskhub/internal/server/services"
)

// identityHandler implements api.IdentityServer on top of the services.
type identityHandler struct {
	s *GRPCServer
}

var _ api.IdentityServer = (*identityHandler)(nil)

func toAPIUser(u *models.User) *api.User {
	if u == nil {
		return nil
	}
	return &api.User{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
		CreatedAt:     u.CreatedAt,
	}
}

func principal(ctx context.Context) (*services.Principal, error) {
	p, ok := services.PrincipalFromContext(ctx)
	if !ok {
		return nil, toStatus(common.ErrorUnauthorized)
	}
	return p, nil
}

func toSession(g *services.Grant) *api.SessionResponse {
	return &api.SessionResponse{User: toAPIUser(g.User), SessionCredential: g.SessionCredential}
}

// fail logs unexpected errors and converts err to a status.
func (h *identityHandler) fail(ctx context.Context, op string, err error) error {
	if isInternal(err) {
		h.s.logger.Error(ctx, op+" failed", "error", err)
	}
	return toStatus(err)
}

func (h *identityHandler) message(ctx context.Context, op string, msg string, err error) (*api.MessageResponse, error) {
	if err != nil {
		return nil, h.fail(ctx, op, err)
	}
	return &api.MessageResponse{Message: msg}, nil
}

func (h *identityHandler) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {
	u, err := h.s.accounts.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		return nil, h.fail(ctx, "register", err)
	}
	return &api.RegisterResponse{User: toAPIUser(u), Message: services.MsgRegistered}, nil
}

func (h *identityHandler) VerifyEmail(ctx context.Context, req *api.TokenRequest) (*api.MessageResponse, error) {
	msg, err := h.s.accounts.VerifyEmail(ctx, req.Token)
	return h.message(ctx, "verify email", msg, err)
}

func (h *identityHandler) ResendVerification(ctx context.Context, req *api.EmailRequest) (*api.MessageResponse, error) {
	msg, err := h.s.accounts.ResendVerification(ctx, req.Email)
	return h.message(ctx, "resend verification", msg, err)
}

func (h *identityHandler) RequestPasswordReset(ctx context.Context, req *api.EmailRequest) (*api.MessageResponse, error) {
	msg, err := h.s.accounts.RequestPasswordReset(ctx, req.Email)
	return h.message(ctx, "request password reset", msg, err)
}

func (h *identityHandler) ResetPassword(ctx context.Context, req *api.ResetPasswordRequest) (*api.MessageResponse, error) {
	msg, err := h.s.accounts.ResetPassword(ctx, req.Token, req.NewPassword)
	return h.message(ctx, "reset password", msg, err)
}

func (h *identityHandler) Login(ctx context.Context, req *api.LoginRequest) (*api.SessionResponse, error) {
	g, err := h.s.accounts.Login(ctx, req.Email, req.Password)
	if err != nil {
		return nil, h.fail(ctx, "login", err)
	}
	return toSession(g), nil
}

func (h *identityHandler) HubLogin(ctx context.Context, req *api.LoginRequest) (*api.HubLoginResponse, error) {
	res, err := h.s.sso.HubLogin(ctx, req.Email, req.Password, peerAddr(ctx))
	if err != nil {
		return nil, h.fail(ctx, "hub login", err)
	}
	return &api.HubLoginResponse{
		Authenticated: res.Authenticated,
		UserName:      res.UserName,
		SSOToken:      res.SSOToken,
		Message:       res.Message,
	}, nil
}

func (h *identityHandler) RedeemSSO(ctx context.Context, req *api.TokenRequest) (*api.SessionResponse, error) {
	g, err := h.s.sso.Redeem(ctx, req.Token)
	if err != nil {
		return nil, h.fail(ctx, "redeem sso", err)
	}
	return toSession(g), nil
}

func (h *identityHandler) Whoami(ctx context.Context, _ *api.Empty) (*api.User, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	u, err := h.s.accounts.Whoami(ctx, p.UserID)
	if err != nil {
		return nil, h.fail(ctx, "whoami", err)
	}
	return toAPIUser(u), nil
}

func (h *identityHandler) Logout(ctx context.Context, _ *api.Empty) (*api.MessageResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := h.s.accounts.Logout(ctx, p.Credential)
	return h.message(ctx, "logout", msg, err)
}

func (h *identityHandler) ChangePassword(ctx context.Context, req *api.ChangePasswordRequest) (*api.SessionResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	g, err := h.s.accounts.ChangePassword(ctx, p.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		return nil, h.fail(ctx, "change password", err)
	}
	return toSession(g), nil
}

func (h *identityHandler) DeleteUser(ctx context.Context, req *api.DeleteUserRequest) (*api.MessageResponse, error) {
	msg, err := h.s.accounts.DeleteUser(ctx, req.UserID)
	return h.message(ctx, "delete user", msg, err)
}
