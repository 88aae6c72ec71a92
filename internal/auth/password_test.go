package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *PasswordHasher {
	t.Helper()
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	return hasher
}

func TestNewPasswordHasherCost(t *testing.T) {
	hasher, err := NewPasswordHasher(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, hasher.Cost())

	_, err = NewPasswordHasher(bcrypt.MaxCost + 1)
	require.Error(t, err)
	_, err = NewPasswordHasher(2)
	require.Error(t, err)
}

func TestHashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", hash)
	assert.True(t, strings.HasPrefix(hash, "$2"))

	assert.True(t, hasher.Verify("secret1", hash))
	assert.False(t, hasher.Verify("secret2", hash))
	assert.False(t, hasher.Verify("Secret1", hash))
}

func TestHashUsesFreshSalt(t *testing.T) {
	hasher := newTestHasher(t)

	first, err := hasher.Hash("same-password")
	require.NoError(t, err)
	second, err := hasher.Hash("same-password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, hasher.Verify("same-password", first))
	assert.True(t, hasher.Verify("same-password", second))
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher := newTestHasher(t)

	assert.False(t, hasher.Verify("anything", ""))
	assert.False(t, hasher.Verify("anything", "not-a-bcrypt-hash"))
	assert.False(t, hasher.Verify("", "$2a$04$tooshort"))
}

func TestHashRejectsOverlongPassword(t *testing.T) {
	hasher := newTestHasher(t)

	_, err := hasher.Hash(strings.Repeat("a", 73))
	require.ErrorIs(t, err, ErrValidation)

	hash, err := hasher.Hash(strings.Repeat("a", 72))
	require.NoError(t, err)
	assert.True(t, hasher.Verify(strings.Repeat("a", 72), hash))
}

func TestVerifyDummyDoesNotPanic(t *testing.T) {
	hasher := newTestHasher(t)
	hasher.VerifyDummy("whatever")
	hasher.VerifyDummy("")
}
