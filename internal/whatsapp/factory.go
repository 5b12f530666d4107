// Package whatsapp implements the transport contract on top of whatsmeow.
// Each tenant gets its own sqlite device store in the work directory; the
// credential store holds the durable copy.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/zapflow/bot-server-go/internal/credstore"
	"github.com/zapflow/bot-server-go/internal/transport"
)

const (
	storeDialect   = "sqlite3"
	mediaTimeout   = 30 * time.Second
	maxMediaBytes  = 16 << 20
	storeFileMode  = 0o600
	workDirMode    = 0o700
	snapshotSuffix = ".snapshot"
)

type Factory struct {
	creds   credstore.Store
	workDir string
	http    *http.Client
}

func NewFactory(creds credstore.Store, workDir string) *Factory {
	return &Factory{
		creds:   creds,
		workDir: workDir,
		http:    &http.Client{Timeout: mediaTimeout},
	}
}

func (f *Factory) storePath(tenantID string) string {
	return filepath.Join(f.workDir, tenantID+".db")
}

func storeDSN(path string) string {
	return "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
}

// Open prepares the tenant's device store and returns an unconnected handle.
func (f *Factory) Open(ctx context.Context, tenantID string) (transport.Conn, error) {
	if err := os.MkdirAll(f.workDir, workDirMode); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	path := f.storePath(tenantID)
	if err := f.restore(ctx, tenantID, path); err != nil {
		return nil, err
	}

	db, err := sqlx.Open(storeDialect, storeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open device store: %w", err)
	}

	logger := log.With().Str("tenantId", tenantID).Logger()
	container := sqlstore.NewWithDB(db.DB, storeDialect, waLog.Zerolog(logger.With().Str("component", "store").Logger()))
	if err := container.Upgrade(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("upgrade device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, waLog.Zerolog(logger.With().Str("component", "client").Logger()))
	// Reconnects are scheduled by the session manager.
	client.EnableAutoReconnect = false

	c := &Conn{
		tenantID: tenantID,
		client:   client,
		db:       db,
		path:     path,
		creds:    f.creds,
		http:     f.http,
	}
	client.AddEventHandler(c.dispatch)
	return c, nil
}

// restore reconciles the local device store with the credential store.
// Missing credentials mean the tenant was reset or logged out, so any
// local leftover is discarded. A present local file is newer than the
// durable copy and is kept.
func (f *Factory) restore(ctx context.Context, tenantID, path string) error {
	data, err := f.creds.Read(ctx, tenantID)
	if errors.Is(err, credstore.ErrNotFound) {
		return removeStore(path)
	}
	if err != nil {
		return fmt.Errorf("read credentials: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	tmp := path + ".restore"
	if err := os.WriteFile(tmp, data, storeFileMode); err != nil {
		return fmt.Errorf("restore device store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("restore device store: %w", err)
	}

	log.Info().Str("tenantId", tenantID).Int("bytes", len(data)).Msg("device store restored from credentials")
	return nil
}

func removeStore(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale device store: %w", err)
		}
	}
	return nil
}
