package memstore

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value    string
	deadline time.Time
}

// Store is an in-process code store. Expired entries are dropped lazily on access.
type Store struct {
	mu    sync.Mutex
	items map[string]entry
	now   func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now, letting tests move time forward.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{items: make(map[string]entry), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// lookup must be called with mu held.
func (s *Store) lookup(key string) (entry, bool) {
	e, ok := s.items[key]
	if !ok {
		return entry{}, false
	}
	if !s.now().Before(e.deadline) {
		delete(s.items, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{value: value, deadline: s.now().Add(ttl)}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	return e.value, ok, nil
}

func (s *Store) GetAndDelete(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if ok {
		delete(s.items, key)
	}
	return e.value, ok, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key)
	return ok, nil
}

func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.lookup(key); ok {
		e.deadline = s.now().Add(ttl)
		s.items[key] = e
	}
	return nil
}

func (s *Store) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(s.items, key)
	return true, nil
}
