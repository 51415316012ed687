package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	sealed, err := Encrypt([]byte("oauth-token"), []byte(testKey))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "oauth-token")

	plain, err := Decrypt(sealed, []byte(testKey))
	require.NoError(t, err)
	assert.Equal(t, "oauth-token", plain)
}

func TestDecryptRejectsTamperedData(t *testing.T) {
	_, err := Decrypt("c2hvcnQ=", []byte(testKey))
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = Decrypt("not base64!", []byte(testKey))
	assert.ErrorContains(t, err, "decrypt token")

	sealed, err := Encrypt([]byte("oauth-token"), []byte(testKey))
	require.NoError(t, err)
	_, err = Decrypt(sealed, []byte("fedcba9876543210fedcba9876543210"))
	assert.Error(t, err)
}

func TestEncryptRejectsBadKey(t *testing.T) {
	_, err := Encrypt([]byte("oauth-token"), []byte("short"))
	assert.ErrorContains(t, err, "token cipher")
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("secret", "42", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "crosspost", claims.Issuer)

	_, err = ValidateToken("other", token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := GenerateToken("secret", "42", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken("secret", token)
	assert.Error(t, err)
}
