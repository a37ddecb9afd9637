package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "taskhub.identity.Identity"

// Method names as they appear in grpc.UnaryServerInfo.FullMethod.
const (
	MethodRegister             = "/" + ServiceName + "/Register"
	MethodVerifyEmail          = "/" + ServiceName + "/VerifyEmail"
	MethodResendVerification   = "/" + ServiceName + "/ResendVerification"
	MethodRequestPasswordReset = "/" + ServiceName + "/RequestPasswordReset"
	MethodResetPassword        = "/" + ServiceName + "/ResetPassword"
	MethodLogin                = "/" + ServiceName + "/Login"
	MethodHubLogin             = "/" + ServiceName + "/HubLogin"
	MethodRedeemSSO            = "/" + ServiceName + "/RedeemSSO"
	MethodWhoami               = "/" + ServiceName + "/Whoami"
	MethodLogout               = "/" + ServiceName + "/Logout"
	MethodChangePassword       = "/" + ServiceName + "/ChangePassword"
	MethodDeleteUser           = "/" + ServiceName + "/DeleteUser"
)

// IdentityServer is implemented by the server transport.
type IdentityServer interface {
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	VerifyEmail(context.Context, *TokenRequest) (*MessageResponse, error)
	ResendVerification(context.Context, *EmailRequest) (*MessageResponse, error)
	RequestPasswordReset(context.Context, *EmailRequest) (*MessageResponse, error)
	ResetPassword(context.Context, *ResetPasswordRequest) (*MessageResponse, error)
	Login(context.Context, *LoginRequest) (*SessionResponse, error)
	HubLogin(context.Context, *LoginRequest) (*HubLoginResponse, error)
	RedeemSSO(context.Context, *TokenRequest) (*SessionResponse, error)
	Whoami(context.Context, *Empty) (*User, error)
	Logout(context.Context, *Empty) (*MessageResponse, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*SessionResponse, error)
	DeleteUser(context.Context, *DeleteUserRequest) (*MessageResponse, error)
}

func unary[Req, Resp any](name string, call func(IdentityServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(IdentityServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(IdentityServer), ctx, req.(*Req))
			})
		},
	}
}

// IdentityServiceDesc describes the service for grpc.Server.RegisterService.
var IdentityServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Register", IdentityServer.Register),
		unary("VerifyEmail", IdentityServer.VerifyEmail),
		unary("ResendVerification", IdentityServer.ResendVerification),
		unary("RequestPasswordReset", IdentityServer.RequestPasswordReset),
		unary("ResetPassword", IdentityServer.ResetPassword),
		unary("Login", IdentityServer.Login),
		unary("HubLogin", IdentityServer.HubLogin),
		unary("RedeemSSO", IdentityServer.RedeemSSO),
		unary("Whoami", IdentityServer.Whoami),
		unary("Logout", IdentityServer.Logout),
		unary("ChangePassword", IdentityServer.ChangePassword),
		unary("DeleteUser", IdentityServer.DeleteUser),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "taskhub/identity",
}

func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&IdentityServiceDesc, srv)
}

// IdentityClient calls the service with the JSON codec.
type IdentityClient struct {
	cc grpc.ClientConnInterface
}

func NewIdentityClient(cc grpc.ClientConnInterface) *IdentityClient {
	return &IdentityClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *IdentityClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *IdentityClient) VerifyEmail(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MethodVerifyEmail, in, opts)
}

func (c *IdentityClient) ResendVerification(ctx context.Context, in *EmailRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MethodResendVerification, in, opts)
}

func (c *IdentityClient) RequestPasswordReset(ctx context.Context, in *EmailRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MethodRequestPasswordReset, in, opts)
}

func (c *IdentityClient) ResetPassword(ctx context.Context, in *ResetPasswordRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MethodResetPassword, in, opts)
}

func (c *IdentityClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *IdentityClient) HubLogin(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*HubLoginResponse, error) {
	return invoke[HubLoginResponse](ctx, c.cc, MethodHubLogin, in, opts)
}

func (c *IdentityClient) RedeemSSO(ctx context.Context, in *TokenRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, MethodRedeemSSO, in, opts)
}

func (c *IdentityClient) Whoami(ctx context.Context, opts ...grpc.CallOption) (*User, error) {
	return invoke[User](ctx, c.cc, MethodWhoami, &Empty{}, opts)
}

func (c *IdentityClient) Logout(ctx context.Context, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MethodLogout, &Empty{}, opts)
}

func (c *IdentityClient) ChangePassword(ctx context.Context, in *ChangePasswordRequest, opts ...grpc.CallOption) (*SessionResponse, error) {
	return invoke[SessionResponse](ctx, c.cc, MethodChangePassword, in, opts)
}

func (c *IdentityClient) DeleteUser(ctx context.Context, in *DeleteUserRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	return invoke[MessageResponse](ctx, c.cc, MethodDeleteUser, in, opts)
}
