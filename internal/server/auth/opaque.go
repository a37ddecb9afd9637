package auth

import "github.com/dmitrijs2005/taskhub/internal/common"

// OpaqueTokenBytes is the entropy of verification, reset and SSO tokens.
const OpaqueTokenBytes = 32

// NewOpaqueToken returns a hex-encoded random string with no structure.
// Its validity lives entirely in the stored expiry next to it, so clearing
// the stored value is enough to kill it.
func NewOpaqueToken() (string, error) {
	return common.MakeRandHexString(OpaqueTokenBytes)
}
