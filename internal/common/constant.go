// Package common contains shared constants and sentinel errors used across
// TaskHub components.
package common

// AuthorizationHeaderName is the gRPC metadata key carrying the session
// credential, either bare or with a "Bearer " prefix.
const AuthorizationHeaderName = "authorization"

// UserAgentHeaderName is logged alongside rejected credentials.
const UserAgentHeaderName = "user-agent"
