package config

import (
	"context"
	"sync"

	"toolbridge/internal/registry"
)

// FileStore serves server descriptors loaded from the config file and
// keeps invocation status in memory. It implements the registry store
// interface for single-process use; a multi-tenant deployment swaps in a
// database-backed store.
type FileStore struct {
	mu      sync.RWMutex
	servers []ServerEntry
	status  map[string]registry.StatusUpdate
}

// NewFileStore creates a store over the configured server entries.
func NewFileStore(servers []ServerEntry) *FileStore {
	return &FileStore{
		servers: servers,
		status:  make(map[string]registry.StatusUpdate),
	}
}

// GetServerByName returns the named server if it is visible to subject.
// Entries with an owner are scoped to that owner; a lookup by any other
// subject behaves exactly like a missing server. Ownerless entries are
// visible to everyone.
func (s *FileStore) GetServerByName(ctx context.Context, name, subject string) (*registry.ServerDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.servers {
		entry := &s.servers[i]
		if entry.Name != name {
			continue
		}
		if entry.Owner != "" && entry.Owner != subject {
			return nil, nil
		}
		desc := entry.ServerDescriptor
		return &desc, nil
	}
	return nil, nil
}

// UpdateServerStatus records the latest status transition for a server.
func (s *FileStore) UpdateServerStatus(ctx context.Context, name, subject string, update registry.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status[subject+"/"+name] = update
	return nil
}

// Status returns the last recorded status for a server, if any.
func (s *FileStore) Status(name, subject string) (registry.StatusUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	update, ok := s.status[subject+"/"+name]
	return update, ok
}

// ServerNames lists the servers visible to subject, for display.
func (s *FileStore) ServerNames(subject string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.servers))
	for i := range s.servers {
		entry := &s.servers[i]
		if entry.Owner == "" || entry.Owner == subject {
			names = append(names, entry.Name)
		}
	}
	return names
}
