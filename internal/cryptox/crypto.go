// Package cryptox holds the PIN credential primitives: salt generation,
// argon2id key derivation, and constant-time verification.
package cryptox

import (
	"crypto/rand"
	"crypto/subtle"

	"golang.org/x/crypto/argon2"
)

const saltSize = 16

// NewSalt returns a fresh random salt for PIN derivation.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	return salt, nil
}

// DerivePinHash derives the stored hash for a PIN with argon2id. The same
// parameters must be used when verifying, so they are fixed here rather
// than configurable.
func DerivePinHash(pin, salt []byte) []byte {
	return argon2.IDKey(pin, salt, 1, 64*1024, 4, 32)
}

// VerifyPin re-derives the hash for candidate with the stored salt and
// compares it against the stored hash in constant time.
func VerifyPin(candidate, salt, hash []byte) bool {
	derived := DerivePinHash(candidate, salt)
	return subtle.ConstantTimeCompare(derived, hash) == 1
}

// Wipe overwrites b with zeros. Use it to clear password and PIN buffers
// once they are no longer needed.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
