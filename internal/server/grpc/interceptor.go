package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/dmitrijs2005/taskhub/internal/api"
	"github.com/dmitrijs2005/taskhub/internal/common"
	"github.com/dmitrijs2005/taskhub/internal/server/models"
	"github.com/dmitrijs2005/taskhub/internal/server/services"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const requestIDHeader = "x-request-id"

// publicMethods need no session credential.
var publicMethods = map[string]bool{
	api.MethodRegister:             true,
	api.MethodVerifyEmail:          true,
	api.MethodResendVerification:   true,
	api.MethodRequestPasswordReset: true,
	api.MethodResetPassword:        true,
	api.MethodLogin:                true,
	api.MethodHubLogin:             true,
	api.MethodRedeemSSO:            true,
}

// roleGated methods additionally require the given role.
var roleGated = map[string]models.Role{
	api.MethodDeleteUser: models.RoleManager,
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// credentialFromMetadata accepts both "Bearer <jwt>" and a bare credential.
func credentialFromMetadata(ctx context.Context) string {
	v := strings.TrimSpace(firstMetadata(ctx, common.AuthorizationHeaderName))
	if len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return v
}

func (s *GRPCServer) requestLogInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	id := firstMetadata(ctx, requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDHeader, id))

	resp, err := handler(ctx, req)

	s.logger.Info(ctx, "rpc",
		"request_id", id,
		"method", info.FullMethod,
		"peer", peerAddr(ctx),
		"code", status.Code(err).String(),
		"duration", time.Since(start),
	)
	return resp, err
}

func (s *GRPCServer) authInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+api.ServiceName+"/") || publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	p, err := s.verifier.Authenticate(ctx, credentialFromMetadata(ctx))
	if err != nil {
		s.logger.Warn(ctx, "unauthenticated call",
			"method", info.FullMethod,
			"peer", peerAddr(ctx),
			"user_agent", firstMetadata(ctx, common.UserAgentHeaderName),
		)
		return nil, status.Error(codes.Unauthenticated, msgInvalidCredential)
	}
	ctx = services.WithPrincipal(ctx, p)

	if role, ok := roleGated[info.FullMethod]; ok {
		if _, err := services.RequireRole(ctx, role); err != nil {
			s.logger.Warn(ctx, "forbidden call", "method", info.FullMethod, "user_id", p.UserID, "role", p.Role)
			return nil, toStatus(err)
		}
	}

	return handler(ctx, req)
}
