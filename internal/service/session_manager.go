package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zapflow/bot-server-go/internal/credstore"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/sse"
	"github.com/zapflow/bot-server-go/internal/transport"
	"github.com/zapflow/bot-server-go/internal/util"
)

const sessionEventType = "session"

// autoStartConcurrency bounds parallel connection attempts at boot.
const autoStartConcurrency = 8

// InboundHandler receives messages from a tenant's worker.
type InboundHandler interface {
	Ingest(ctx context.Context, tenantID string, msg *transport.InboundMessage)
}

// EventPublisher fans session status changes out to operators.
type EventPublisher interface {
	Publish(ctx context.Context, tenantID string, event sse.Event) error
}

type SessionConfig struct {
	ReconnectDelay   time.Duration
	WatchdogInterval time.Duration
	PairingTimeout   time.Duration
	EventBuffer      int
	OpenTimeout      time.Duration
	NotifyTimeout    time.Duration
}

// SessionManager owns one transport connection per tenant. Each tenant gets
// a worker goroutine that drains the connection's events in order.
type SessionManager struct {
	factory   transport.Factory
	creds     credstore.Store
	inbound   InboundHandler
	publisher EventPublisher
	cfg       SessionConfig

	mu       sync.RWMutex
	sessions map[string]*tenantSession

	ctx    context.Context
	cancel context.CancelFunc

	done     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

type sessionEvent struct {
	gen   uint64
	event transport.Event
}

type tenantSession struct {
	tenantID string

	mu            sync.Mutex
	status        model.SessionStatus
	qr            string
	startedAt     time.Time
	updatedAt     time.Time
	everConnected bool
	conn          transport.Conn
	// gen identifies the current connection attempt. Events and timers
	// carrying an older gen are ignored.
	gen       uint64
	reconnect *time.Timer
	closed    bool

	events chan sessionEvent
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSessionManager(
	factory transport.Factory,
	creds credstore.Store,
	publisher EventPublisher,
	cfg SessionConfig,
) *SessionManager {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		factory:   factory,
		creds:     creds,
		publisher: publisher,
		cfg:       cfg,
		sessions:  make(map[string]*tenantSession),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// SetInboundHandler wires the ingestion pipeline. It must be called before
// the first Start.
func (m *SessionManager) SetInboundHandler(h InboundHandler) {
	m.inbound = h
}

// Start makes sure a connection attempt is underway or live and returns
// the current state without waiting for the attempt to finish.
func (m *SessionManager) Start(tenantID string) model.SessionSnapshot {
	ts := m.getOrCreate(tenantID)

	ts.mu.Lock()
	for ts.closed {
		ts.mu.Unlock()
		m.remove(ts)
		ts = m.getOrCreate(tenantID)
		ts.mu.Lock()
	}
	if ts.status != model.SessionStatusDisconnected {
		snap := ts.snapshot()
		ts.mu.Unlock()
		return snap
	}

	ts.stopReconnect()
	ts.gen++
	gen := ts.gen
	now := m.now()
	ts.status = model.SessionStatusConnecting
	ts.qr = ""
	ts.startedAt = now
	ts.updatedAt = now
	ts.everConnected = false
	snap := ts.snapshot()
	ts.mu.Unlock()

	log.Info().Str("tenantId", tenantID).Msg("session starting")
	m.publish(snap)

	go m.connect(ts, gen)
	return snap
}

// Status is a read-only snapshot. Unknown tenants are Disconnected.
func (m *SessionManager) Status(tenantID string) model.SessionSnapshot {
	m.mu.RLock()
	ts := m.sessions[tenantID]
	m.mu.RUnlock()

	if ts == nil {
		return model.SessionSnapshot{TenantID: tenantID, Status: model.SessionStatusDisconnected}
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.snapshot()
}

// List returns every known session ordered by tenant id.
func (m *SessionManager) List() []model.SessionSnapshot {
	sessions := m.all()

	snaps := make([]model.SessionSnapshot, 0, len(sessions))
	for _, ts := range sessions {
		ts.mu.Lock()
		snaps = append(snaps, ts.snapshot())
		ts.mu.Unlock()
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].TenantID < snaps[j].TenantID })
	return snaps
}

// Reset logs the tenant out, drops the connection and erases stored
// credentials. It succeeds when no session exists.
func (m *SessionManager) Reset(ctx context.Context, tenantID string) {
	m.mu.Lock()
	ts := m.sessions[tenantID]
	delete(m.sessions, tenantID)
	m.mu.Unlock()

	if ts != nil {
		conn := ts.shutdown()
		if conn != nil {
			if err := conn.Logout(ctx); err != nil {
				log.Warn().Err(err).Str("tenantId", tenantID).Msg("logout failed during reset")
			}
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Str("tenantId", tenantID).Msg("close failed during reset")
			}
		}
	}

	m.deleteCredentials(ctx, tenantID)

	log.Info().Str("tenantId", tenantID).Msg("session reset")
	m.publish(model.SessionSnapshot{TenantID: tenantID, Status: model.SessionStatusDisconnected})
}

// Conn returns the tenant's handle, or transport.ErrNotConnected unless the
// session is Connected.
func (m *SessionManager) Conn(tenantID string) (transport.Conn, error) {
	m.mu.RLock()
	ts := m.sessions[tenantID]
	m.mu.RUnlock()

	if ts == nil {
		return nil, transport.ErrNotConnected
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.status != model.SessionStatusConnected || ts.conn == nil {
		return nil, transport.ErrNotConnected
	}
	return ts.conn, nil
}

// AutoStart starts every tenant that has stored credentials.
func (m *SessionManager) AutoStart(ctx context.Context) error {
	tenants, err := m.creds.List(ctx)
	if err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(autoStartConcurrency)
	for _, tenantID := range tenants {
		if !util.IsValidTenantID(tenantID) {
			log.Warn().Str("tenantId", tenantID).Msg("skipping credentials with invalid tenant id")
			continue
		}
		g.Go(func() error {
			m.Start(tenantID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Int("count", len(tenants)).Msg("auto-started paired sessions")
	return nil
}

// PersistAll flushes the credentials of every connected session.
func (m *SessionManager) PersistAll(ctx context.Context) (int, error) {
	var (
		persisted int
		errs      []error
	)
	for _, ts := range m.all() {
		ts.mu.Lock()
		conn := ts.conn
		connected := ts.status == model.SessionStatusConnected
		ts.mu.Unlock()

		if !connected || conn == nil {
			continue
		}
		if err := conn.Persist(ctx); err != nil {
			errs = append(errs, err)
			log.Error().Err(err).Str("tenantId", ts.tenantID).Msg("failed to persist credentials")
			continue
		}
		persisted++
	}
	return persisted, errors.Join(errs...)
}

// StartWatchdog begins the periodic sweep for abandoned pairing attempts.
func (m *SessionManager) StartWatchdog() {
	go m.watch()
	log.Info().
		Dur("interval", m.cfg.WatchdogInterval).
		Dur("pairingTimeout", m.cfg.PairingTimeout).
		Msg("session watchdog started")
}

func (m *SessionManager) watch() {
	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep tears down sessions stuck in Connecting or QrReady for longer than
// the pairing timeout. Credentials are erased only for abandoned QR pairings.
func (m *SessionManager) sweep() {
	now := m.now()
	for _, ts := range m.all() {
		ts.mu.Lock()
		pending := ts.status == model.SessionStatusConnecting || ts.status == model.SessionStatusQrReady
		stuck := pending && now.Sub(ts.startedAt) > m.cfg.PairingTimeout
		pairing := ts.status == model.SessionStatusQrReady
		status := ts.status
		ts.mu.Unlock()

		if !stuck {
			continue
		}

		log.Warn().
			Str("tenantId", ts.tenantID).
			Str("status", string(status)).
			Msg("watchdog tearing down stale session")

		m.remove(ts)
		if conn := ts.shutdown(); conn != nil {
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Str("tenantId", ts.tenantID).Msg("close failed during watchdog teardown")
			}
		}
		if pairing {
			m.deleteCredentials(context.Background(), ts.tenantID)
		}
		m.publish(model.SessionSnapshot{TenantID: ts.tenantID, Status: model.SessionStatusDisconnected})
	}
}

// Close stops the watchdog and every worker. Credentials are flushed but
// kept, so the next boot reconnects without pairing.
func (m *SessionManager) Close(ctx context.Context) {
	m.stopOnce.Do(func() { close(m.done) })

	_, _ = m.PersistAll(ctx)

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*tenantSession)
	m.mu.Unlock()

	for _, ts := range sessions {
		if conn := ts.shutdown(); conn != nil {
			if err := conn.Close(); err != nil {
				log.Warn().Err(err).Str("tenantId", ts.tenantID).Msg("close failed during shutdown")
			}
		}
	}
	m.cancel()

	log.Info().Int("count", len(sessions)).Msg("session manager stopped")
}

func (m *SessionManager) getOrCreate(tenantID string) *tenantSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ts, ok := m.sessions[tenantID]; ok {
		return ts
	}

	ctx, cancel := context.WithCancel(m.ctx)
	ts := &tenantSession{
		tenantID:  tenantID,
		status:    model.SessionStatusDisconnected,
		updatedAt: m.now(),
		events:    make(chan sessionEvent, m.cfg.EventBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}
	m.sessions[tenantID] = ts
	go m.run(ts)
	return ts
}

func (m *SessionManager) all() []*tenantSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*tenantSession, 0, len(m.sessions))
	for _, ts := range m.sessions {
		out = append(out, ts)
	}
	return out
}

func (m *SessionManager) remove(ts *tenantSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[ts.tenantID] == ts {
		delete(m.sessions, ts.tenantID)
	}
}

func (m *SessionManager) connect(ts *tenantSession, gen uint64) {
	ctx, cancel := context.WithTimeout(ts.ctx, m.cfg.OpenTimeout)
	defer cancel()

	conn, err := m.factory.Open(ctx, ts.tenantID)
	if err != nil {
		m.handleDisconnect(ts, gen, transport.DisconnectRecoverable, err)
		return
	}

	conn.OnEvent(func(ev transport.Event) {
		m.enqueue(ts, gen, ev)
	})

	ts.mu.Lock()
	if ts.closed || ts.gen != gen {
		ts.mu.Unlock()
		_ = conn.Close()
		return
	}
	ts.conn = conn
	ts.mu.Unlock()

	if err := conn.Connect(ctx); err != nil {
		m.handleDisconnect(ts, gen, transport.DisconnectRecoverable, err)
	}
}

func (m *SessionManager) enqueue(ts *tenantSession, gen uint64, ev transport.Event) {
	select {
	case ts.events <- sessionEvent{gen: gen, event: ev}:
	case <-ts.ctx.Done():
	}
}

func (m *SessionManager) run(ts *tenantSession) {
	for {
		select {
		case <-ts.ctx.Done():
			return
		case se := <-ts.events:
			m.handleEvent(ts, se)
		}
	}
}

func (m *SessionManager) handleEvent(ts *tenantSession, se sessionEvent) {
	switch se.event.Type {
	case transport.EventMessage:
		if !ts.current(se.gen) || m.inbound == nil {
			return
		}
		m.inbound.Ingest(ts.ctx, ts.tenantID, se.event.Message)

	case transport.EventQR:
		ts.mu.Lock()
		if ts.closed || ts.gen != se.gen {
			ts.mu.Unlock()
			return
		}
		ts.status = model.SessionStatusQrReady
		ts.qr = se.event.QR
		ts.updatedAt = m.now()
		snap := ts.snapshot()
		ts.mu.Unlock()

		log.Info().Str("tenantId", ts.tenantID).Msg("pairing qr code ready")
		m.publish(snap)

	case transport.EventConnected:
		ts.mu.Lock()
		if ts.closed || ts.gen != se.gen {
			ts.mu.Unlock()
			return
		}
		now := m.now()
		ts.status = model.SessionStatusConnected
		ts.qr = ""
		ts.startedAt = now
		ts.updatedAt = now
		ts.everConnected = true
		conn := ts.conn
		snap := ts.snapshot()
		ts.mu.Unlock()

		log.Info().Str("tenantId", ts.tenantID).Msg("session connected")
		m.publish(snap)

		if conn != nil {
			if err := conn.Persist(ts.ctx); err != nil {
				log.Error().Err(err).Str("tenantId", ts.tenantID).Msg("failed to persist credentials")
			}
		}

	case transport.EventDisconnected:
		m.handleDisconnect(ts, se.gen, se.event.Reason, se.event.Err)
	}
}

// handleDisconnect releases the handle of attempt gen. Recoverable drops
// schedule a reconnect; a logout erases credentials and forgets the session.
func (m *SessionManager) handleDisconnect(ts *tenantSession, gen uint64, reason transport.DisconnectReason, cause error) {
	ts.mu.Lock()
	if ts.closed || ts.gen != gen {
		ts.mu.Unlock()
		return
	}

	ts.gen++
	if ts.conn != nil {
		if err := ts.conn.Close(); err != nil {
			log.Debug().Err(err).Str("tenantId", ts.tenantID).Msg("close after disconnect failed")
		}
		ts.conn = nil
	}
	ts.status = model.SessionStatusDisconnected
	ts.qr = ""
	ts.updatedAt = m.now()
	if reason == transport.DisconnectLoggedOut {
		ts.closed = true
	} else {
		next := ts.gen
		ts.reconnect = time.AfterFunc(m.cfg.ReconnectDelay, func() {
			m.reconnect(ts, next)
		})
	}
	snap := ts.snapshot()
	ts.mu.Unlock()

	logEvent := log.Warn().
		Str("tenantId", ts.tenantID).
		Str("reason", reason.String())
	if cause != nil {
		logEvent = logEvent.Err(cause)
	}
	logEvent.Msg("session disconnected")

	if reason == transport.DisconnectLoggedOut {
		m.remove(ts)
		ts.shutdown()
		m.deleteCredentials(context.Background(), ts.tenantID)
	}

	m.publish(snap)
}

func (m *SessionManager) reconnect(ts *tenantSession, gen uint64) {
	ts.mu.Lock()
	if ts.closed || ts.gen != gen || ts.status != model.SessionStatusDisconnected {
		ts.mu.Unlock()
		return
	}
	ts.gen++
	next := ts.gen
	now := m.now()
	ts.status = model.SessionStatusConnecting
	ts.reconnect = nil
	ts.updatedAt = now
	if ts.everConnected {
		ts.startedAt = now
	}
	snap := ts.snapshot()
	ts.mu.Unlock()

	log.Info().Str("tenantId", ts.tenantID).Msg("session reconnecting")
	m.publish(snap)

	m.connect(ts, next)
}

func (m *SessionManager) deleteCredentials(ctx context.Context, tenantID string) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.OpenTimeout)
	defer cancel()

	if err := m.creds.Delete(ctx, tenantID); err != nil {
		log.Error().Err(err).Str("tenantId", tenantID).Msg("failed to delete credentials")
	}
}

func (m *SessionManager) publish(snap model.SessionSnapshot) {
	if m.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.NotifyTimeout)
	defer cancel()

	event := sse.Event{Type: sessionEventType, Data: snap.ToSSEEventData()}
	if err := m.publisher.Publish(ctx, snap.TenantID, event); err != nil {
		log.Debug().Err(err).Str("tenantId", snap.TenantID).Msg("failed to publish session event")
	}
}

// shutdown marks the session dead, cancels its worker and timer, and hands
// back the live handle, if any, for the caller to release.
func (ts *tenantSession) shutdown() transport.Conn {
	ts.mu.Lock()
	ts.closed = true
	ts.gen++
	ts.stopReconnect()
	conn := ts.conn
	ts.conn = nil
	ts.status = model.SessionStatusDisconnected
	ts.qr = ""
	ts.mu.Unlock()

	ts.cancel()
	return conn
}

func (ts *tenantSession) current(gen uint64) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return !ts.closed && ts.gen == gen
}

func (ts *tenantSession) stopReconnect() {
	if ts.reconnect != nil {
		ts.reconnect.Stop()
		ts.reconnect = nil
	}
}

func (ts *tenantSession) snapshot() model.SessionSnapshot {
	snap := model.SessionSnapshot{
		TenantID: ts.tenantID,
		Status:   ts.status,
		QR:       ts.qr,
	}
	if !ts.startedAt.IsZero() && ts.status != model.SessionStatusDisconnected {
		startedAt := ts.startedAt
		snap.StartedAt = &startedAt
	}
	if !ts.updatedAt.IsZero() {
		updatedAt := ts.updatedAt
		snap.UpdatedAt = &updatedAt
	}
	return snap
}
