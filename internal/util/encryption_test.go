package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = strings.Repeat("0f", 32)

func TestEncryptDecrypt(t *testing.T) {
	t.Run("round trips plaintext", func(t *testing.T) {
		sealed, err := Encrypt(testKey, []byte("device-store"))
		require.NoError(t, err)
		assert.NotContains(t, string(sealed), "device-store")

		plain, err := Decrypt(testKey, sealed)
		require.NoError(t, err)
		assert.Equal(t, "device-store", string(plain))
	})

	t.Run("uses a fresh nonce per call", func(t *testing.T) {
		a, err := Encrypt(testKey, []byte("same"))
		require.NoError(t, err)
		b, err := Encrypt(testKey, []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		sealed, err := Encrypt(testKey, []byte("secret"))
		require.NoError(t, err)

		_, err = Decrypt(strings.Repeat("aa", 32), sealed)
		assert.Error(t, err)
	})

	t.Run("rejects short key", func(t *testing.T) {
		_, err := Encrypt("abcd", []byte("x"))
		assert.Error(t, err)
	})

	t.Run("rejects truncated ciphertext", func(t *testing.T) {
		_, err := Decrypt(testKey, []byte{1, 2, 3})
		assert.Error(t, err)
	})
}

func TestIsValidTenantID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"acme", true},
		{"loja-01_sp", true},
		{"A1", true},
		{"", false},
		{"-leading", false},
		{"../etc", false},
		{"has space", false},
		{strings.Repeat("a", 65), false},
	}

	for _, tc := range tests {
		t.Run(tc.id, func(t *testing.T) {
			assert.Equal(t, tc.want, IsValidTenantID(tc.id))
		})
	}
}
