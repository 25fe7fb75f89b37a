package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// scopedTokenBytes is the raw entropy of a scoped token (256 bits).
const scopedTokenBytes = 32

// ScopedTokenLen is the length of the base64url rendering of a scoped token.
const ScopedTokenLen = 43

// NewScopedToken mints an opaque scoped bearer token: 256 bits from the CSPRNG,
// base64url without padding, always ScopedTokenLen characters. The token carries
// no structure and no session metadata. Panics if the entropy source fails;
// that is unrecoverable and must kill the process rather than hand out a weak token.
func NewScopedToken() string {
	b := make([]byte, scopedTokenBytes)
	if _, err := rand.Read(b); err != nil {
		panic("security: entropy source failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// HashScopedToken returns a SHA-256 hash of the scoped token, hex-encoded.
// Only the hash is persisted; the raw token exists in the create response and nowhere else.
func HashScopedToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ScopedTokenHashEqual performs constant-time comparison of the provided token's
// hash with the stored hash. Returns true only if they match.
func ScopedTokenHashEqual(providedToken, storedHash string) bool {
	providedHash := HashScopedToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
