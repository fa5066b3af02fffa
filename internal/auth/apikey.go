// Package auth resolves API keys to caller identities. Key issuance and user
// management happen out-of-band; this package only authenticates.
package auth

import (
	"crypto/sha256"
	"fmt"
)

// HashKey returns the SHA-256 hex digest of an API key. Only the digest is
// ever stored or compared.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// KeyPrefix returns a safe-to-log prefix of an API key (never the full key).
func KeyPrefix(key string) string {
	if len(key) > 12 {
		return key[:12] + "..."
	}
	return key
}
