package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

// GenerateOpaqueToken returns nBytes of randomness, base64url without
// padding.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL returns sha256(s) in unpadded base64url. Shared by PKCE
// S256 verification and anywhere a digest needs to travel in a URL.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
