package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// FullRounds is the security-relevant round count used for user
// identifiers and IP addresses.
const FullRounds = 5000

// HashedValue is the lowercase hex output of Hash. It is an opaque
// identifier and is never reversed.
type HashedValue string

// Hash applies SHA-256 to input rounds times, feeding the hex digest of
// each round into the next. Hash(v, a+b) == Hash(string(Hash(v, a)), b).
//
// rounds must be >= 1; anything else is a programming error and panics.
func Hash(input string, rounds int) HashedValue {
	if rounds < 1 {
		panic(fmt.Sprintf("hashing: rounds must be >= 1, got %d", rounds))
	}

	value := []byte(input)
	out := make([]byte, hex.EncodedLen(sha256.Size))
	for i := 0; i < rounds; i++ {
		sum := sha256.Sum256(value)
		hex.Encode(out, sum[:])
		value = out
	}
	return HashedValue(out)
}

// IsHashedValue reports whether s has the shape of a Hash output.
func IsHashedValue(s string) bool {
	if len(s) != hex.EncodedLen(sha256.Size) {
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
