package keys

import (
	"crypto/sha256"
	"encoding/hex"
)

// IdentityLen is the length of a hex-encoded content identity.
const IdentityLen = sha256.Size * 2

// Hash derives the content identity for a (text, language) pair.
// "ab"+"c" and "a"+"bc" differ because of the separator, but "a_b"+"c" and
// "a"+"b_c" still collide; stored records depend on this exact layout.
func Hash(text, language string) string {
	sum := sha256.Sum256([]byte(text + "_" + language))
	return hex.EncodeToString(sum[:])
}

// IsIdentity reports whether s has the shape of a content identity.
func IsIdentity(s string) bool {
	if len(s) != IdentityLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
