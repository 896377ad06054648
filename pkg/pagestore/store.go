package pagestore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store is closed")

// Config contains configuration for the page store
type Config struct {
	// TTL is how long an idle key is kept. Zero keeps keys forever.
	TTL time.Duration
	// CleanupInterval is how often expired keys are swept. Defaults to one minute.
	CleanupInterval time.Duration
}

type entry[T any] struct {
	items     []T
	expiresAt time.Time
}

func (e *entry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store keeps an append-only list of items per key in memory
type Store[T any] struct {
	config    Config
	entries   map[string]*entry[T]
	lock      sync.RWMutex
	closeChan chan struct{}
	closed    bool
	now       func() time.Time
}

// New creates a new page store and starts its cleanup routine
func New[T any](config *Config) *Store[T] {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	store := &Store[T]{
		config:    cfg,
		entries:   make(map[string]*entry[T]),
		closeChan: make(chan struct{}),
		now:       time.Now,
	}

	go store.cleanupRoutine()

	return store
}

// Append adds items to the end of the key's list and returns the new length.
// Appending refreshes the key's expiry.
func (s *Store[T]) Append(ctx context.Context, key string, items ...T) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	now := s.now()
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		e = &entry[T]{}
		s.entries[key] = e
	}
	e.items = append(e.items, items...)
	if s.config.TTL > 0 {
		e.expiresAt = now.Add(s.config.TTL)
	}

	return len(e.items), nil
}

// List returns a copy of up to limit items starting at offset, plus the
// total number of items stored for the key. A non-positive limit returns
// everything after offset.
func (s *Store[T]) List(ctx context.Context, key string, offset, limit int) ([]T, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return nil, 0, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return []T{}, 0, nil
	}

	total := len(e.items)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []T{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	out := make([]T, end-offset)
	copy(out, e.items[offset:end])
	return out, total, nil
}

// Len returns the number of items stored for the key
func (s *Store[T]) Len(ctx context.Context, key string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.closed {
		return 0, ErrClosed
	}

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return 0, nil
	}
	return len(e.items), nil
}

// Delete removes the key and all of its items
func (s *Store[T]) Delete(ctx context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return ErrClosed
	}

	delete(s.entries, key)

	return nil
}

// Close stops the cleanup routine and drops all items
func (s *Store[T]) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	close(s.closeChan)
	s.entries = nil

	return nil
}

// cleanupRoutine periodically removes expired keys
func (s *Store[T]) cleanupRoutine() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.closeChan:
			return
		}
	}
}

// cleanupExpired removes all expired keys
func (s *Store[T]) cleanupExpired() {
	s.lock.Lock()
	defer s.lock.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
		}
	}
}
