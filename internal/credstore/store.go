// Package credstore persists per-tenant pairing credentials as opaque blobs.
package credstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("credentials not found")

type Store interface {
	Read(ctx context.Context, tenantID string) ([]byte, error)
	Write(ctx context.Context, tenantID string, data []byte) error
	// Delete is idempotent: deleting missing credentials is not an error.
	Delete(ctx context.Context, tenantID string) error
	// List returns the tenants that currently have stored credentials.
	List(ctx context.Context) ([]string, error)
}
