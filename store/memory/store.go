// Package memory provides an in-memory Store, the default backend and the one
// used by unit tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xraph/paysim/object"
	"github.com/xraph/paysim/store"
)

// compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store keeps encoded objects in a map guarded by a RWMutex.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports ErrClosed after Close.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) Get(_ context.Context, key string) (object.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	raw, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return object.DecodeKey(key, raw)
}

func (s *Store) Set(_ context.Context, o object.Object) error {
	raw, err := object.Encode(o)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.data[object.KeyOf(o)] = raw
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	if _, ok := s.data[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.data, key)
	return nil
}

func (s *Store) Items(_ context.Context, prefix string) ([]store.Item, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrClosed
	}
	keys := make([]string, 0, len(s.data))
	raws := make(map[string][]byte)
	for k, v := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
			raws[k] = v
		}
	}
	s.mu.RUnlock()

	sort.Strings(keys)

	items := make([]store.Item, 0, len(keys))
	for _, k := range keys {
		it, err := store.DecodeItem(k, raws[k])
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.data = make(map[string][]byte)
	return nil
}
