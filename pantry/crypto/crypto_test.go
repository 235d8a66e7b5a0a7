package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptorFromSecret_RoundTrip(t *testing.T) {
	enc, err := NewEncryptorFromSecret("a long operator secret", "discord-tokens")
	require.NoError(t, err)

	sealed, err := enc.EncryptString("access-token-value")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "access-token-value")

	opened, err := enc.DecryptString(sealed)
	require.NoError(t, err)
	assert.Equal(t, "access-token-value", opened)

	again, _ := enc.EncryptString("access-token-value")
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")
}

func TestEncryptorFromSecret_InfoSeparatesKeys(t *testing.T) {
	a, err := NewEncryptorFromSecret("shared", "tokens")
	require.NoError(t, err)
	b, err := NewEncryptorFromSecret("shared", "other")
	require.NoError(t, err)

	sealed, err := a.EncryptString("x")
	require.NoError(t, err)
	_, err = b.DecryptString(sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestEncryptor_Errors(t *testing.T) {
	_, err := NewEncryptorFromSecret("", "tokens")
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = NewEncryptor([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	enc, err := NewEncryptorFromSecret("s", "i")
	require.NoError(t, err)
	_, err = enc.DecryptString("!!!not-base64")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = enc.Decrypt([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	empty, err := enc.EncryptString("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestRandomString(t *testing.T) {
	s, err := RandomString(6, UpperAlphanumeric)
	require.NoError(t, err)
	assert.Len(t, s, 6)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(UpperAlphanumeric, r), "unexpected rune %q", r)
	}

	state, err := RandomBase64URL(32)
	require.NoError(t, err)
	assert.Len(t, state, 43)
}
