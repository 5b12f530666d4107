package service

import (
	"sync"

	"github.com/zapflow/bot-server-go/internal/model"
)

type conversationKey struct {
	tenantID  string
	contactID string
}

// StateStore holds per-contact dialogue modes and the per-tenant pause set.
// Nothing here is persisted; a restart sends every contact back to the menu.
type StateStore struct {
	modesMu sync.RWMutex
	modes   map[conversationKey]model.ConversationMode

	pausedMu sync.RWMutex
	paused   map[string]struct{}
}

func NewStateStore() *StateStore {
	return &StateStore{
		modes:  make(map[conversationKey]model.ConversationMode),
		paused: make(map[string]struct{}),
	}
}

// Get returns the contact's mode. known is false for a first contact, in
// which case the mode is Menu.
func (s *StateStore) Get(tenantID, contactID string) (mode model.ConversationMode, known bool) {
	s.modesMu.RLock()
	defer s.modesMu.RUnlock()

	mode, known = s.modes[conversationKey{tenantID, contactID}]
	if !known {
		return model.ConversationModeMenu, false
	}
	return mode, true
}

func (s *StateStore) Set(tenantID, contactID string, mode model.ConversationMode) {
	s.modesMu.Lock()
	defer s.modesMu.Unlock()
	s.modes[conversationKey{tenantID, contactID}] = mode
}

// ForgetTenant drops every conversation state of the tenant.
func (s *StateStore) ForgetTenant(tenantID string) {
	s.modesMu.Lock()
	defer s.modesMu.Unlock()

	for key := range s.modes {
		if key.tenantID == tenantID {
			delete(s.modes, key)
		}
	}
}

func (s *StateStore) IsPaused(tenantID string) bool {
	s.pausedMu.RLock()
	defer s.pausedMu.RUnlock()
	_, ok := s.paused[tenantID]
	return ok
}

func (s *StateStore) SetPaused(tenantID string, paused bool) {
	s.pausedMu.Lock()
	defer s.pausedMu.Unlock()

	if paused {
		s.paused[tenantID] = struct{}{}
	} else {
		delete(s.paused, tenantID)
	}
}
