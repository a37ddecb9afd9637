package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/api"
	"github.com/dmitrijs2005/taskhub/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	conn    *grpc.ClientConn
	client  *api.IdentityClient
	timeout time.Duration

	mu         sync.RWMutex
	credential string
}

var _ Client = (*GRPCClient)(nil)

func withCredential(ctx context.Context, credential string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AuthorizationHeaderName, "Bearer "+credential)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) sessionInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if cred := s.session(); cred != "" {
		ctx = withCredential(ctx, cred)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpoint. Extra dial options are
// appended after the defaults.
func NewGRPCClient(endpoint string, timeout time.Duration, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{timeout: timeout}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.sessionInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = api.NewIdentityClient(conn)
	return c, nil
}

func (s *GRPCClient) session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential
}

func (s *GRPCClient) setSession(credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = credential
}

func (s *GRPCClient) LoggedIn() bool {
	return s.session() != ""
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Register(ctx context.Context, name, email, password string) (*api.RegisterResponse, error) {
	resp, err := s.client.Register(ctx, &api.RegisterRequest{Name: name, Email: email, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) VerifyEmail(ctx context.Context, token string) (string, error) {
	resp, err := s.client.VerifyEmail(ctx, &api.TokenRequest{Token: token})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.Message, nil
}

func (s *GRPCClient) ResendVerification(ctx context.Context, email string) (string, error) {
	resp, err := s.client.ResendVerification(ctx, &api.EmailRequest{Email: email})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.Message, nil
}

func (s *GRPCClient) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	resp, err := s.client.RequestPasswordReset(ctx, &api.EmailRequest{Email: email})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.Message, nil
}

func (s *GRPCClient) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	resp, err := s.client.ResetPassword(ctx, &api.ResetPasswordRequest{Token: token, NewPassword: newPassword})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.Message, nil
}

func (s *GRPCClient) Login(ctx context.Context, email, password string) (*api.User, error) {
	resp, err := s.client.Login(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.setSession(resp.SessionCredential)
	return resp.User, nil
}

func (s *GRPCClient) HubLogin(ctx context.Context, email, password string) (*api.HubLoginResponse, error) {
	resp, err := s.client.HubLogin(ctx, &api.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) RedeemSSO(ctx context.Context, token string) (*api.User, error) {
	resp, err := s.client.RedeemSSO(ctx, &api.TokenRequest{Token: token})
	if err != nil {
		return nil, s.mapError(err)
	}
	s.setSession(resp.SessionCredential)
	return resp.User, nil
}

func (s *GRPCClient) Whoami(ctx context.Context) (*api.User, error) {
	if !s.LoggedIn() {
		return nil, ErrNotLoggedIn
	}
	resp, err := s.client.Whoami(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

// ChangePassword swaps the stored credential for the one the server
// returns, since the old one stops working.
func (s *GRPCClient) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	if !s.LoggedIn() {
		return ErrNotLoggedIn
	}
	resp, err := s.client.ChangePassword(ctx, &api.ChangePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword})
	if err != nil {
		return s.mapError(err)
	}
	s.setSession(resp.SessionCredential)
	return nil
}

// Logout forgets the credential even when the server call fails.
func (s *GRPCClient) Logout(ctx context.Context) (string, error) {
	if !s.LoggedIn() {
		return "", ErrNotLoggedIn
	}
	resp, err := s.client.Logout(ctx)
	s.setSession("")
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.Message, nil
}

func (s *GRPCClient) DeleteUser(ctx context.Context, userID string) (string, error) {
	if !s.LoggedIn() {
		return "", ErrNotLoggedIn
	}
	resp, err := s.client.DeleteUser(ctx, &api.DeleteUserRequest{UserID: userID})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.Message, nil
}

// mapError keeps the server's status message, which is already safe for
// users, and turns transport failures into sentinels.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.Unauthenticated:
		if st.Message() == "invalid or expired credential" {
			s.setSession("")
			return ErrUnauthorized
		}
		return errors.New(st.Message())
	default:
		return errors.New(st.Message())
	}
}
