package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxEntries bounds a MemoryStore when no limit is given.
const DefaultMaxEntries = 10000

type memEntry struct {
	value     []byte
	expiresAt time.Time
	entities  []string
}

// MemoryStore is an in-process Store. Expired entries are dropped on read and by
// an optional janitor; when full, the entry closest to expiry is evicted.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memEntry
	byEntity   map[string]map[string]struct{}
	gens       map[string]uint64
	maxEntries int
	now        func() time.Time
	closed     bool
	stop       chan struct{}
	stopOnce   sync.Once
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxEntries bounds the number of entries. n <= 0 keeps the default.
func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

// WithClock replaces time.Now. For tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore returns an empty store. Call StartJanitor to sweep expired entries in the background.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries:    make(map[string]*memEntry),
		byEntity:   make(map[string]map[string]struct{}),
		gens:       make(map[string]uint64),
		maxEntries: DefaultMaxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartJanitor sweeps expired entries every interval until Close.
func (s *MemoryStore) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !s.now().Before(e.expiresAt) {
		s.removeLocked(key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Store. A non-positive ttl stores nothing.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration, entityIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.setLocked(key, value, ttl, entityIDs)
	return nil
}

// SetIfCurrent implements Store.
func (s *MemoryStore) SetIfCurrent(_ context.Context, key string, value []byte, ttl time.Duration, gens []uint64, entityIDs ...string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if len(gens) != len(entityIDs) {
		return false, nil
	}
	for i, id := range entityIDs {
		if s.gens[id] != gens[i] {
			return false, nil
		}
	}
	s.setLocked(key, value, ttl, entityIDs)
	return true, nil
}

// Generations implements Store.
func (s *MemoryStore) Generations(_ context.Context, entityIDs ...string) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]uint64, len(entityIDs))
	for i, id := range entityIDs {
		out[i] = s.gens[id]
	}
	return out, nil
}

func (s *MemoryStore) setLocked(key string, value []byte, ttl time.Duration, entityIDs []string) {
	s.removeLocked(key)
	if ttl <= 0 {
		return
	}
	if len(s.entries) >= s.maxEntries {
		s.evictLocked()
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	s.entries[key] = &memEntry{value: buf, expiresAt: s.now().Add(ttl), entities: entityIDs}
	for _, id := range entityIDs {
		keys, ok := s.byEntity[id]
		if !ok {
			keys = make(map[string]struct{})
			s.byEntity[id] = keys
		}
		keys[key] = struct{}{}
	}
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.removeLocked(key)
	return nil
}

// Invalidate implements Store.
func (s *MemoryStore) Invalidate(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for key := range s.byEntity[entityID] {
		s.removeLocked(key)
	}
	delete(s.byEntity, entityID)
	s.gens[entityID]++
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			s.removeLocked(key)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops the janitor and drops all entries.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = make(map[string]*memEntry)
	s.byEntity = make(map[string]map[string]struct{})
	s.gens = make(map[string]uint64)
	return nil
}

func (s *MemoryStore) removeLocked(key string) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	delete(s.entries, key)
	for _, id := range e.entities {
		if keys, ok := s.byEntity[id]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.byEntity, id)
			}
		}
	}
}

// evictLocked drops expired entries, or the one closest to expiry when none are.
func (s *MemoryStore) evictLocked() {
	now := s.now()
	var victim string
	var earliest time.Time
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			s.removeLocked(key)
			continue
		}
		if victim == "" || e.expiresAt.Before(earliest) {
			victim, earliest = key, e.expiresAt
		}
	}
	if len(s.entries) >= s.maxEntries && victim != "" {
		s.removeLocked(victim)
	}
}
