package cryptox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivePinHash_Deterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	h1 := DerivePinHash([]byte("4321"), salt)
	h2 := DerivePinHash([]byte("4321"), salt)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 32)
}

func TestDerivePinHash_SaltChangesHash(t *testing.T) {
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)

	assert.NotEqual(t, DerivePinHash([]byte("4321"), s1), DerivePinHash([]byte("4321"), s2))
}

func TestVerifyPin(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	hash := DerivePinHash([]byte("0007"), salt)

	assert.True(t, VerifyPin([]byte("0007"), salt, hash))
	assert.False(t, VerifyPin([]byte("0008"), salt, hash))
	assert.False(t, VerifyPin([]byte(""), salt, hash))
}

func TestWipe(t *testing.T) {
	b := []byte("secret")
	Wipe(b)
	assert.Equal(t, make([]byte, 6), b)

	// must not panic on nil
	Wipe(nil)
}
