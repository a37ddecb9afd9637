// Package client talks to the TaskHub identity service over gRPC.
//
// GRPCClient keeps the session credential returned by Login, RedeemSSO and
// ChangePassword and attaches it to later calls through a unary
// interceptor. gRPC status codes are mapped to the sentinel errors
// ErrUnavailable and ErrUnauthorized; any other failure carries the
// server's status message.
package client
