package credstore

import (
	"context"
	"fmt"

	"github.com/zapflow/bot-server-go/internal/util"
)

// Encrypted seals blobs with AES-256-GCM before handing them to the wrapped store.
type Encrypted struct {
	inner Store
	key   string
}

func NewEncrypted(inner Store, hexKey string) *Encrypted {
	return &Encrypted{inner: inner, key: hexKey}
}

func (s *Encrypted) Read(ctx context.Context, tenantID string) ([]byte, error) {
	sealed, err := s.inner.Read(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	plain, err := util.Decrypt(s.key, sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials for %s: %w", tenantID, err)
	}
	return plain, nil
}

func (s *Encrypted) Write(ctx context.Context, tenantID string, data []byte) error {
	sealed, err := util.Encrypt(s.key, data)
	if err != nil {
		return fmt.Errorf("encrypt credentials for %s: %w", tenantID, err)
	}
	return s.inner.Write(ctx, tenantID, sealed)
}

func (s *Encrypted) Delete(ctx context.Context, tenantID string) error {
	return s.inner.Delete(ctx, tenantID)
}

func (s *Encrypted) List(ctx context.Context) ([]string, error) {
	return s.inner.List(ctx)
}
