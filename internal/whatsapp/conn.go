package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/zapflow/bot-server-go/internal/credstore"
	"github.com/zapflow/bot-server-go/internal/transport"
)

var errQRTimeout = errors.New("qr pairing round expired")

// Conn is one tenant's whatsmeow client plus the sqlite store behind it.
type Conn struct {
	tenantID string
	client   *whatsmeow.Client
	db       *sqlx.DB
	path     string
	creds    credstore.Store
	http     *http.Client

	mu       sync.Mutex
	handler  transport.Handler
	qrCancel context.CancelFunc
	closed   bool
}

var _ transport.Conn = (*Conn)(nil)

func (c *Conn) OnEvent(h transport.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrNotConnected
	}
	c.mu.Unlock()

	if c.client.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := c.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("open qr channel: %w", err)
		}
		c.mu.Lock()
		c.qrCancel = cancel
		c.mu.Unlock()
		go c.forwardQR(qrChan)
	}

	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Conn) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emit(transport.Event{Type: transport.EventQR, QR: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
		case whatsmeow.QRChannelTimeout.Event:
			c.emit(disconnected(transport.DisconnectRecoverable, errQRTimeout))
		case whatsmeow.QRChannelEventError:
			c.emit(disconnected(transport.DisconnectRecoverable, item.Error))
		default:
			c.emit(disconnected(transport.DisconnectRecoverable, fmt.Errorf("pairing failed: %s", item.Event)))
		}
	}
}

func (c *Conn) dispatch(evt any) {
	ev, ok := convertEvent(evt)
	if !ok {
		return
	}
	c.emit(ev)
}

func (c *Conn) emit(ev transport.Event) {
	c.mu.Lock()
	h := c.handler
	closed := c.closed
	c.mu.Unlock()

	if h != nil && !closed {
		h(ev)
	}
}

func (c *Conn) ready() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed || c.client.Store.ID == nil || !c.client.IsConnected() {
		return transport.ErrNotConnected
	}
	return nil
}

func (c *Conn) SendText(ctx context.Context, to, text string) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("parse address: %w", err)
	}

	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", mapSendError(err)
	}
	return string(resp.ID), nil
}

func (c *Conn) SendMedia(ctx context.Context, to string, media transport.Media) (string, error) {
	if err := c.ready(); err != nil {
		return "", err
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return "", fmt.Errorf("parse address: %w", err)
	}

	data, mimeType, err := c.fetchMedia(ctx, media.URI)
	if err != nil {
		return "", err
	}

	up, err := c.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return "", fmt.Errorf("upload media: %w", mapSendError(err))
	}

	img := &waE2E.ImageMessage{
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		Mimetype:      proto.String(mimeType),
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}
	if media.Caption != "" {
		img.Caption = proto.String(media.Caption)
	}

	resp, err := c.client.SendMessage(ctx, jid, &waE2E.Message{ImageMessage: img})
	if err != nil {
		return "", mapSendError(err)
	}
	return string(resp.ID), nil
}

func (c *Conn) fetchMedia(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch media: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media exceeds %d bytes", maxMediaBytes)
	}

	return data, mediaType(resp.Header.Get("Content-Type"), data), nil
}

func mediaType(header string, data []byte) string {
	if header != "" {
		if i := strings.Index(header, ";"); i >= 0 {
			header = header[:i]
		}
		header = strings.TrimSpace(header)
		if strings.HasPrefix(header, "image/") {
			return header
		}
	}
	return http.DetectContentType(data)
}

func mapSendError(err error) error {
	if errors.Is(err, whatsmeow.ErrNotConnected) || errors.Is(err, whatsmeow.ErrNotLoggedIn) {
		return transport.ErrNotConnected
	}
	return err
}

// Persist snapshots the device store and writes it to the credential store.
// Unpaired stores hold nothing worth keeping.
func (c *Conn) Persist(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.client.Store.ID == nil {
		return nil
	}

	snapshot := c.path + snapshotSuffix
	if err := os.Remove(snapshot); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	defer os.Remove(snapshot)

	if _, err := c.db.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("snapshot device store: %w", err)
	}

	data, err := os.ReadFile(snapshot)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	if err := c.creds.Write(ctx, c.tenantID, data); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}

	log.Debug().Str("tenantId", c.tenantID).Int("bytes", len(data)).Msg("credentials persisted")
	return nil
}

func (c *Conn) Logout(ctx context.Context) error {
	if c.client.Store.ID == nil {
		return nil
	}
	return c.client.Logout(ctx)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.qrCancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.client.Disconnect()
	return c.db.Close()
}
