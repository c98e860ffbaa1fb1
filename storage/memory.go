package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryStore keeps objects in a map. Used when R2 is not configured in
// development and in tests.
type MemoryStore struct {
	mu            sync.RWMutex
	objects       map[string][]byte
	publicBaseURL string
}

func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte), publicBaseURL: publicBaseURL}
}

func (s *MemoryStore) Put(_ context.Context, key, _ string, body io.Reader) (*PutResult, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object body (key: %s): %w", key, err)
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return &PutResult{Key: key, Location: s.PublicURL(key)}, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) PublicURL(key string) string {
	return joinPublicURL(s.publicBaseURL, key)
}

// Get returns a stored object.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}

// Keys lists stored keys in no particular order.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
