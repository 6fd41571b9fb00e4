// Package nonce generates the random tokens embedded in QR check-in codes.
//
// Every issued QR payload carries a nonce that identifies exactly one
// issuance. Nonces must not be predictable from earlier ones, so the
// generator reads from crypto/rand and never from math/rand.
package nonce

import (
	"crypto/rand"
	"errors"
	"fmt"
)

// Alphabet is the fixed set of symbols a nonce is drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength is the nonce length used for QR payloads.
// 16 symbols over a 62-symbol alphabet is 16·log2(62) ≈ 95 bits of entropy,
// so collisions across the lifetime of a venue are not a practical concern.
const DefaultLength = 16

// maxUnbiased is the largest multiple of len(Alphabet) that fits in a byte.
// Bytes at or above it are discarded so every symbol is equally likely
// (62*4 = 248; a plain b%62 would favour the first 8 symbols).
const maxUnbiased = 256 - (256 % len(Alphabet))

// ErrInvalidLength is returned when length is less than 1.
var ErrInvalidLength = errors.New("nonce length must be at least 1")

// Generate returns a random string of exactly length symbols from Alphabet.
func Generate(length int) (string, error) {
	if length < 1 {
		return "", ErrInvalidLength
	}

	out := make([]byte, 0, length)
	// Read in chunks slightly larger than needed; rejected bytes are rare
	// (8/256) so one or two reads nearly always suffice.
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
