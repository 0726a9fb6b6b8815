package sharelink

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// tokenBytes gives 256 bits of entropy per token.
const tokenBytes = 32

// GenerateToken creates a cryptographically secure random share token,
// base64 raw-URL encoded so it is safe to embed in a path segment.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DigestToken derives the storable digest of a raw token. A deterministic
// one-way digest (unlike a salted password hash) is required here because
// validation looks tokens up by digest equality; the token itself carries the
// entropy, so no salt is needed to resist precomputation.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
