package credstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("read of missing tenant returns ErrNotFound", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Read(ctx, "acme")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("write then read returns same bytes", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, "acme", []byte("blob-1")))
		require.NoError(t, store.Write(ctx, "acme", []byte("blob-2")))

		data, err := store.Read(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "blob-2", string(data))
	})

	t.Run("write leaves no temp files behind", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, "acme", []byte("x")))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "acme"+fileExt, entries[0].Name())
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		store, err := NewFileStore(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, "acme", []byte("x")))
		require.NoError(t, store.Delete(ctx, "acme"))
		require.NoError(t, store.Delete(ctx, "acme"))

		_, err = store.Read(ctx, "acme")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list returns tenants with credentials only", func(t *testing.T) {
		dir := t.TempDir()
		store, err := NewFileStore(dir)
		require.NoError(t, err)

		require.NoError(t, store.Write(ctx, "zeta", []byte("x")))
		require.NoError(t, store.Write(ctx, "acme", []byte("x")))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
		require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"+fileExt), 0o700))

		tenants, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"acme", "zeta"}, tenants)
	})
}

func TestEncrypted(t *testing.T) {
	ctx := context.Background()
	key := strings.Repeat("1f", 32)

	t.Run("stores ciphertext and reads plaintext", func(t *testing.T) {
		inner, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		store := NewEncrypted(inner, key)

		require.NoError(t, store.Write(ctx, "acme", []byte("device-keys")))

		raw, err := inner.Read(ctx, "acme")
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "device-keys")

		plain, err := store.Read(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "device-keys", string(plain))
	})

	t.Run("passes through not found", func(t *testing.T) {
		inner, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		store := NewEncrypted(inner, key)

		_, err = store.Read(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("fails on tampered data", func(t *testing.T) {
		inner, err := NewFileStore(t.TempDir())
		require.NoError(t, err)
		store := NewEncrypted(inner, key)

		require.NoError(t, inner.Write(ctx, "acme", []byte("not-encrypted-at-all")))

		_, err = store.Read(ctx, "acme")
		assert.Error(t, err)
	})
}

func TestTenantFromKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		key    string
		want   string
		ok     bool
	}{
		{"prefixed key", "credentials/", "credentials/acme.creds", "acme", true},
		{"prefix without slash", "credentials", "credentials/acme.creds", "acme", true},
		{"empty prefix", "", "acme.creds", "acme", true},
		{"nested key ignored", "credentials/", "credentials/old/acme.creds", "", false},
		{"other extension ignored", "credentials/", "credentials/acme.json", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tenantFromKey(tc.prefix, tc.key)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
