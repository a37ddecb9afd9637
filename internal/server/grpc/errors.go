package grpc

import (
	"errors"

	"github.com/dmitrijs2005/taskhub/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	msgInvalidCredential = "invalid or expired credential"
	msgInvalidToken      = "invalid token"
	msgInternal          = "internal error"
)

type statusMapping struct {
	err  error
	code codes.Code
	msg  string
}

// statusMappings is checked in order. An empty msg means the sentinel's
// own text is sent; wrapped context never reaches the client.
var statusMappings = []statusMapping{
	{common.ErrorUnauthorized, codes.Unauthenticated, msgInvalidCredential},
	{common.ErrMissingInput, codes.InvalidArgument, ""},
	{common.ErrInvalidToken, codes.InvalidArgument, msgInvalidToken},
	{common.ErrAlreadyConsumed, codes.InvalidArgument, msgInvalidToken},
	{common.ErrorNotFound, codes.NotFound, ""},
	{common.ErrTokenExpired, codes.FailedPrecondition, ""},
	{common.ErrAlreadyVerified, codes.FailedPrecondition, ""},
	{common.ErrSamePassword, codes.FailedPrecondition, ""},
	{common.ErrEmailUnverified, codes.FailedPrecondition, ""},
	{common.ErrEmailTaken, codes.AlreadyExists, ""},
	{common.ErrInvalidCredentials, codes.Unauthenticated, ""},
	{common.ErrForbidden, codes.PermissionDenied, ""},
}

// toStatus converts a service error into a gRPC status.
func toStatus(err error) error {
	for _, m := range statusMappings {
		if errors.Is(err, m.err) {
			msg := m.msg
			if msg == "" {
				msg = m.err.Error()
			}
			return status.Error(m.code, msg)
		}
	}
	return status.Error(codes.Internal, msgInternal)
}

func isInternal(err error) bool {
	return status.Code(toStatus(err)) == codes.Internal
}
