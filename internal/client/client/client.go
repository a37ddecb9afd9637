package client

import (
	"context"

	"github.com/dmitrijs2005/taskhub/internal/api"
)

// Client is what the CLI needs from the identity service. Calls that start
// a session remember its credential for the authenticated calls.
type Client interface {
	Close() error
	Register(ctx context.Context, name, email, password string) (*api.RegisterResponse, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	ResendVerification(ctx context.Context, email string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
	Login(ctx context.Context, email, password string) (*api.User, error)
	HubLogin(ctx context.Context, email, password string) (*api.HubLoginResponse, error)
	RedeemSSO(ctx context.Context, token string) (*api.User, error)
	Whoami(ctx context.Context) (*api.User, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
	Logout(ctx context.Context) (string, error)
	DeleteUser(ctx context.Context, userID string) (string, error)
	LoggedIn() bool
}
