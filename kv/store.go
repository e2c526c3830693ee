package kv

import "sync"

// Store is the key-value state machine. It is mutated only by
// applying committed put entries in log order, so its content is
// identical on every node up to the applied index.
type Store struct {
	mu   sync.RWMutex
	data map[string]string
}

// MakeStore returns an empty Store.
func MakeStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Get returns the value for key and whether it is present.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	return value, ok
}

// Put stores value under key.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
}

// Len returns the number of keys held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}
