package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestEncryptDecrypt(t *testing.T) {
	sealed, err := Encrypt([]byte("ig-token"), []byte(testSecret))
	require.NoError(t, err)
	assert.NotContains(t, sealed, "ig-token")

	plain, err := Decrypt(sealed, []byte(testSecret))
	require.NoError(t, err)
	assert.Equal(t, "ig-token", plain)

	_, err = Decrypt(sealed, []byte(strings.Repeat("x", 32)))
	assert.Error(t, err)

	_, err = Decrypt("AAAA", []byte(testSecret))
	assert.Error(t, err)
}

func TestToken(t *testing.T) {
	token, err := GenerateToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Actor)

	_, err = ValidateToken("another-secret-another-secret-xx", token)
	assert.Error(t, err)

	expired, err := GenerateToken(testSecret, "alice", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateToken(testSecret, expired)
	assert.Error(t, err)

	_, err = GenerateToken(testSecret, "", time.Hour)
	assert.Error(t, err)
}

func TestGenerateRandomKey(t *testing.T) {
	a, err := GenerateRandomKey(16)
	require.NoError(t, err)
	b, err := GenerateRandomKey(16)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 25)
	assert.True(t, strings.HasPrefix(a, "pq_"))
}
