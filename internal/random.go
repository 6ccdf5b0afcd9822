// Package internal holds small shared helpers for the auth engine:
// CSPRNG code generation and secret hashing.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
	"strings"
)

// NewNumericCode returns a fixed-length numeric code with digits drawn
// from crypto/rand. Leading zeros are preserved.
func NewNumericCode(digits int) (string, error) {
	if digits < 1 {
		digits = 6
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// HashCode returns the SHA-256 digest of a code. Only digests are
// persisted; the plaintext code exists solely in the delivery channel.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// ConstantTimeEqual compares two digests without data-dependent timing.
func ConstantTimeEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
