package client

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

// fakeIdentity answers with canned values and records the authorization
// metadata of each call.
type fakeIdentity struct {
	mu       sync.Mutex
	auth     []string
	whoamiFn func() (*api.User, error)
	block    chan struct{}
}

func (f *fakeIdentity) record(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	v := ""
	if a := md.Get("authorization"); len(a) > 0 {
		v = a[0]
	}
	f.mu.Lock()
	f.auth = append(f.auth, v)
	f.mu.Unlock()
}

func (f *fakeIdentity) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[len(f.auth)-1]
}

func (f *fakeIdentity) Register(ctx context.Context, r *api.RegisterRequest) (*api.RegisterResponse, error) {
	f.record(ctx)
	if r.Email == "taken@example.com" {
		return nil, status.Error(codes.AlreadyExists, "email already registered")
	}
	return &api.RegisterResponse{User: &api.User{ID: "u-1", Email: r.Email}, Message: "registered"}, nil
}

func (f *fakeIdentity) VerifyEmail(ctx context.Context, _ *api.TokenRequest) (*api.MessageResponse, error) {
	f.record(ctx)
	return &api.MessageResponse{Message: "verified"}, nil
}

func (f *fakeIdentity) ResendVerification(ctx context.Context, _ *api.EmailRequest) (*api.MessageResponse, error) {
	f.record(ctx)
	return &api.MessageResponse{Message: "resent"}, nil
}

func (f *fakeIdentity) RequestPasswordReset(ctx context.Context, _ *api.EmailRequest) (*api.MessageResponse, error) {
	f.record(ctx)
	return &api.MessageResponse{Message: "reset sent"}, nil
}

func (f *fakeIdentity) ResetPassword(ctx context.Context, _ *api.ResetPasswordRequest) (*api.MessageResponse, error) {
	f.record(ctx)
	return nil, status.Error(codes.InvalidArgument, "invalid token")
}

func (f *fakeIdentity) Login(ctx context.Context, r *api.LoginRequest) (*api.SessionResponse, error) {
	f.record(ctx)
	if r.Password != "pw" {
		return nil, status.Error(codes.Unauthenticated, "invalid email or password")
	}
	return &api.SessionResponse{User: &api.User{ID: "u-1"}, SessionCredential: "cred-login"}, nil
}

func (f *fakeIdentity) HubLogin(ctx context.Context, _ *api.LoginRequest) (*api.HubLoginResponse, error) {
	f.record(ctx)
	return &api.HubLoginResponse{Authenticated: true, UserName: "Ana", SSOToken: "sso", Message: "ok"}, nil
}

func (f *fakeIdentity) RedeemSSO(ctx context.Context, _ *api.TokenRequest) (*api.SessionResponse, error) {
	f.record(ctx)
	return &api.SessionResponse{User: &api.User{ID: "u-1"}, SessionCredential: "cred-sso"}, nil
}

func (f *fakeIdentity) Whoami(ctx context.Context, _ *api.Empty) (*api.User, error) {
	f.record(ctx)
	if f.block != nil {
		<-f.block
	}
	if f.whoamiFn != nil {
		return f.whoamiFn()
	}
	return &api.User{ID: "u-1", Name: "Ana"}, nil
}

func (f *fakeIdentity) Logout(ctx context.Context, _ *api.Empty) (*api.MessageResponse, error) {
	f.record(ctx)
	return &api.MessageResponse{Message: "bye"}, nil
}

func (f *fakeIdentity) ChangePassword(ctx context.Context, _ *api.ChangePasswordRequest) (*api.SessionResponse, error) {
	f.record(ctx)
	return &api.SessionResponse{SessionCredential: "cred-changed"}, nil
}

func (f *fakeIdentity) DeleteUser(ctx context.Context, _ *api.DeleteUserRequest) (*api.MessageResponse, error) {
	f.record(ctx)
	return nil, status.Error(codes.PermissionDenied, "forbidden")
}

func newTestClient(t *testing.T, timeout time.Duration) (*GRPCClient, *fakeIdentity) {
	t.Helper()

	fake := &fakeIdentity{}
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.RegisterIdentityServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCClient("passthrough:///bufconn", timeout,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return c, fake
}

func TestGRPCClient_PublicCallsCarryNoCredential(t *testing.T) {
	c, fake := newTestClient(t, time.Second)
	ctx := context.Background()

	resp, err := c.Register(ctx, "Ana", "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "registered", resp.Message)
	assert.Empty(t, fake.lastAuth())
	assert.False(t, c.LoggedIn())
}

func TestGRPCClient_SessionFlow(t *testing.T) {
	c, fake := newTestClient(t, time.Second)
	ctx := context.Background()

	_, err := c.Whoami(ctx)
	require.ErrorIs(t, err, ErrNotLoggedIn)

	_, err = c.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	require.True(t, c.LoggedIn())

	me, err := c.Whoami(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ana", me.Name)
	assert.Equal(t, "Bearer cred-login", fake.lastAuth())

	require.NoError(t, c.ChangePassword(ctx, "pw", "pw2"))
	_, err = c.Whoami(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer cred-changed", fake.lastAuth())

	msg, err := c.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bye", msg)
	assert.False(t, c.LoggedIn())
}

func TestGRPCClient_HubLoginAndRedeem(t *testing.T) {
	c, fake := newTestClient(t, time.Second)
	ctx := context.Background()

	hub, err := c.HubLogin(ctx, "ana@example.com", "pw")
	require.NoError(t, err)
	require.True(t, hub.Authenticated)

	_, err = c.RedeemSSO(ctx, hub.SSOToken)
	require.NoError(t, err)

	_, err = c.Whoami(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer cred-sso", fake.lastAuth())
}

func TestGRPCClient_ErrorMapping(t *testing.T) {
	c, fake := newTestClient(t, time.Second)
	ctx := context.Background()

	_, err := c.Login(ctx, "ana@example.com", "bad")
	require.EqualError(t, err, "invalid email or password")

	_, err = c.Register(ctx, "Ana", "taken@example.com", "pw")
	require.EqualError(t, err, "email already registered")

	_, err = c.ResetPassword(ctx, "t", "pw")
	require.EqualError(t, err, "invalid token")

	_, err = c.Login(ctx, "ana@example.com", "pw")
	require.NoError(t, err)

	_, err = c.DeleteUser(ctx, "u-2")
	require.EqualError(t, err, "forbidden")

	fake.whoamiFn = func() (*api.User, error) {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired credential")
	}
	_, err = c.Whoami(ctx)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, c.LoggedIn(), "a rejected credential is dropped")
}

func TestGRPCClient_Timeout(t *testing.T) {
	c, fake := newTestClient(t, 50*time.Millisecond)
	fake.block = make(chan struct{})
	defer close(fake.block)

	_, err := c.Login(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)

	_, err = c.Whoami(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMapError(t *testing.T) {
	c := &GRPCClient{}
	assert.NoError(t, c.mapError(nil))
	assert.ErrorIs(t, c.mapError(status.Error(codes.Unavailable, "down")), ErrUnavailable)
	assert.EqualError(t, c.mapError(status.Error(codes.FailedPrecondition, "token expired")), "token expired")
}
