package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zapflow/bot-server-go/internal/credstore"
	"github.com/zapflow/bot-server-go/internal/model"
	"github.com/zapflow/bot-server-go/internal/transport"
)

type sentMessage struct {
	Kind      string
	TenantID  string
	ContactID string
	Text      string
	URI       string
	Direction model.Direction
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) record(msg sentMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSender) SendText(ctx context.Context, tenantID, contactID, text string, direction model.Direction) error {
	return s.record(sentMessage{Kind: "text", TenantID: tenantID, ContactID: contactID, Text: text, Direction: direction})
}

func (s *fakeSender) SendDetail(ctx context.Context, tenantID, contactID, text string, direction model.Direction) error {
	return s.record(sentMessage{Kind: "detail", TenantID: tenantID, ContactID: contactID, Text: text, Direction: direction})
}

func (s *fakeSender) SendMedia(ctx context.Context, tenantID, contactID, uri, caption string, direction model.Direction) error {
	return s.record(sentMessage{Kind: "media", TenantID: tenantID, ContactID: contactID, Text: caption, URI: uri, Direction: direction})
}

func (s *fakeSender) Sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

type fakeConn struct {
	mu         sync.Mutex
	tenantID   string
	handler    transport.Handler
	connectErr error
	sendErr    error
	logoutErr  error
	texts      []string
	media      []transport.Media
	connects   int
	persists   int
	logouts    int
	closes     int
	closed     bool
	nextID     int
}

func (c *fakeConn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	return c.connectErr
}

func (c *fakeConn) OnEvent(h transport.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

func (c *fakeConn) emit(ev transport.Event) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (c *fakeConn) SendText(ctx context.Context, to, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", transport.ErrNotConnected
	}
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.texts = append(c.texts, to+"|"+text)
	c.nextID++
	return fmt.Sprintf("out-%d", c.nextID), nil
}

func (c *fakeConn) SendMedia(ctx context.Context, to string, media transport.Media) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", transport.ErrNotConnected
	}
	if c.sendErr != nil {
		return "", c.sendErr
	}
	c.media = append(c.media, media)
	c.nextID++
	return fmt.Sprintf("out-%d", c.nextID), nil
}

func (c *fakeConn) Persist(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.persists++
	return nil
}

func (c *fakeConn) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logouts++
	return c.logoutErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.closed = true
	return nil
}

func (c *fakeConn) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

func (c *fakeConn) Counts() (connects, logouts, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects, c.logouts, c.closes
}

func (c *fakeConn) Persists() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persists
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeFactory struct {
	mu         sync.Mutex
	conns      []*fakeConn
	openErr    error
	connectErr error
}

func (f *fakeFactory) Open(ctx context.Context, tenantID string) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	conn := &fakeConn{tenantID: tenantID, connectErr: f.connectErr}
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeFactory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) Last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeConnProvider struct {
	conns map[string]transport.Conn
}

func (p *fakeConnProvider) Conn(tenantID string) (transport.Conn, error) {
	conn, ok := p.conns[tenantID]
	if !ok {
		return nil, transport.ErrNotConnected
	}
	return conn, nil
}

type fakeMessageRepo struct {
	mu        sync.Mutex
	msgs      []model.ChatMessage
	createErr error
}

func (r *fakeMessageRepo) Create(ctx context.Context, params model.CreateChatMessageParams) (*model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	msg := model.ChatMessage{
		ID:                uuid.NewString(),
		TenantID:          params.TenantID,
		ContactID:         params.ContactID,
		Direction:         params.Direction,
		Body:              params.Body,
		SenderName:        params.SenderName,
		ExternalMessageID: params.ExternalMessageID,
		CreatedAt:         time.Now().Add(time.Duration(len(r.msgs)) * time.Millisecond),
	}
	r.msgs = append(r.msgs, msg)
	return &msg, nil
}

func (r *fakeMessageRepo) FindByContact(ctx context.Context, tenantID, contactID string, limit int) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatMessage
	for _, m := range r.msgs {
		if m.TenantID == tenantID && m.ContactID == contactID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *fakeMessageRepo) FindRecentConversations(ctx context.Context, tenantID string, limit int) ([]model.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byContact := make(map[string]model.ConversationSummary)
	for _, m := range r.msgs {
		if m.TenantID != tenantID {
			continue
		}
		summary := byContact[m.ContactID]
		summary.ContactID = m.ContactID
		summary.LastTimestamp = m.CreatedAt
		summary.LastMessagePreview = m.Body
		if m.Direction == model.DirectionCustomer && m.SenderName != "" {
			summary.DisplayName = m.SenderName
		}
		byContact[m.ContactID] = summary
	}
	out := make([]model.ConversationSummary, 0, len(byContact))
	for _, s := range byContact {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTimestamp.After(out[j].LastTimestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMessageRepo) All() []model.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.ChatMessage, len(r.msgs))
	copy(out, r.msgs)
	return out
}

type fakeCredStore struct {
	mu        sync.Mutex
	data      map[string][]byte
	deleteErr error
	deletes   int
}

func newFakeCredStore(tenants ...string) *fakeCredStore {
	s := &fakeCredStore{data: make(map[string][]byte)}
	for _, t := range tenants {
		s.data[t] = []byte("creds-" + t)
	}
	return s
}

func (s *fakeCredStore) Read(ctx context.Context, tenantID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[tenantID]
	if !ok {
		return nil, credstore.ErrNotFound
	}
	return data, nil
}

func (s *fakeCredStore) Write(ctx context.Context, tenantID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[tenantID] = data
	return nil
}

func (s *fakeCredStore) Delete(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.data, tenantID)
	return nil
}

func (s *fakeCredStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data))
	for t := range s.data {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeCredStore) Has(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[tenantID]
	return ok
}
