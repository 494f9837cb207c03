// Package pkce implements Proof Key for Code Exchange verification
// (RFC 7636).
package pkce

import (
	"crypto/subtle"
	"strings"

	tokens "github.com/authplane/authplane/internal/security/token"
)

const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// Verify reports whether verifier satisfies the stored challenge under
// method. An empty method defaults to plain, per RFC 7636 §4.3.
func Verify(verifier, challenge, method string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	switch {
	case strings.EqualFold(method, MethodS256):
		derived := tokens.SHA256Base64URL(verifier)
		return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
	case method == "" || strings.EqualFold(method, MethodPlain):
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
