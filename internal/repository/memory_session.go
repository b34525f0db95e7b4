package repository

import (
	"context"
	"sync"
	"time"

	"github.com/sentigee/relay-auth/internal/domain/oauth"
)

// MemorySessionStore is the in-process SessionStore used when no Redis
// address is configured. Entries expire lazily on read.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]memorySessionEntry
}

type memorySessionEntry struct {
	authURL   string
	expiresAt time.Time
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: make(map[string]memorySessionEntry)}
}

// SaveAuthURL stashes the URL for the session.
func (s *MemorySessionStore) SaveAuthURL(_ context.Context, sessionID, authURL string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = memorySessionEntry{authURL: authURL, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetAuthURL returns the stashed URL or oauth.ErrNoPendingAuthorization.
func (s *MemorySessionStore) GetAuthURL(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok {
		return "", oauth.ErrNoPendingAuthorization
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, sessionID)
		return "", oauth.ErrNoPendingAuthorization
	}
	return entry.authURL, nil
}

// DeleteAuthURL removes the stash entry.
func (s *MemorySessionStore) DeleteAuthURL(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
