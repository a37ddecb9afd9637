// Package grpc exposes the identity services over gRPC with the JSON codec
// from internal/api.
package grpc

import (
	"context"
	"errors"
	"net"

	"github.com/dmitrijs2005/taskhub/internal/api"
	"github.com/dmitrijs2005/taskhub/internal/logging"
	"github.com/dmitrijs2005/taskhub/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Authenticator is the gate every non-public method passes through.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (*services.Principal, error)
}

type GRPCServer struct {
	address  string
	accounts *services.AccountService
	sso      *services.SSOService
	verifier Authenticator
	logger   logging.Logger
	health   *health.Server
}

func NewGRPCServer(a string, l logging.Logger, accounts *services.AccountService, sso *services.SSOService, verifier Authenticator) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		accounts: accounts,
		sso:      sso,
		verifier: verifier,
		health:   health.NewServer(),
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.requestLogInterceptor, s.authInterceptor))

	api.RegisterIdentityServer(srv, &identityHandler{s: s})
	healthpb.RegisterHealthServer(srv, s.health)

	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
