package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
)

var _ kvstore.Store = (*Store)(nil)

// Store keeps entries in process memory. Every PutAll is applied under one
// lock, so it is atomic across keys.
type Store struct {
	mu      sync.Mutex
	entries map[string]kvstore.Entry
}

func New() *Store {
	return &Store{entries: make(map[string]kvstore.Entry)}
}

func (s *Store) Get(_ context.Context, key string) (kvstore.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return kvstore.Entry{}, kvstore.ErrNotFound
	}

	return kvstore.Entry{
		Key:     e.Key,
		Value:   append([]byte(nil), e.Value...),
		Version: e.Version,
	}, nil
}

func (s *Store) PutAll(_ context.Context, puts []kvstore.Put) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range puts {
		if s.entries[p.Key].Version != p.Version {
			return fmt.Errorf("put %q at version %d: %w", p.Key, p.Version, kvstore.ErrVersionConflict)
		}
	}

	for _, p := range puts {
		s.entries[p.Key] = kvstore.Entry{
			Key:     p.Key,
			Value:   append([]byte(nil), p.Value...),
			Version: p.Version + 1,
		}
	}

	return nil
}
