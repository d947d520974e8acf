package testutil

import (
	"context"
	"fmt"
	"sync"

	ierr "github.com/stackbill/stackbill/internal/errors"
)

// InMemorySettingsStore implements settings.Provider with explicit
// per-scope values. Resolution walks client, then group, then company,
// matching the persisted provider.
type InMemorySettingsStore struct {
	mu sync.RWMutex

	company map[string]string
	clients map[string]map[string]string
}

// NewInMemorySettingsStore creates a new in-memory settings provider
func NewInMemorySettingsStore() *InMemorySettingsStore {
	return &InMemorySettingsStore{
		company: make(map[string]string),
		clients: make(map[string]map[string]string),
	}
}

// SetCompany sets a company scoped value
func (s *InMemorySettingsStore) SetCompany(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.company[key] = value
}

// SetClient sets a client scoped value that shadows the company value
func (s *InMemorySettingsStore) SetClient(clientID, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients[clientID] == nil {
		s.clients[clientID] = make(map[string]string)
	}
	s.clients[clientID][key] = value
}

func (s *InMemorySettingsStore) Get(ctx context.Context, clientID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if clientID != "" {
		if v, ok := s.clients[clientID][key]; ok {
			return v, nil
		}
	}
	if v, ok := s.company[key]; ok {
		return v, nil
	}
	return "", ierr.NewError(fmt.Sprintf("setting %s not found", key)).
		Mark(ierr.ErrNotFound)
}

// Clear wipes all values
func (s *InMemorySettingsStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.company = make(map[string]string)
	s.clients = make(map[string]map[string]string)
}
