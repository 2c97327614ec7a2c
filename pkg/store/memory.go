// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often the background cleanup runs.
const DefaultCleanupInterval = 1 * time.Minute

// timedEntry wraps a value with its expiry time for TTL tracking.
type timedEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryStore implements Store with a mutex-guarded map. Entries expire
// lazily on read, with a background cleanup goroutine reclaiming the
// rest. Suitable for tests and single-node development.
type MemoryStore[T any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]timedEntry[T]

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// MemoryStoreOption configures a MemoryStore instance.
type MemoryStoreOption func(*memoryOptions)

type memoryOptions struct {
	cleanupInterval time.Duration
}

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStoreOption {
	return func(o *memoryOptions) {
		o.cleanupInterval = interval
	}
}

// NewMemoryStore creates a MemoryStore for one record kind and starts
// the background cleanup goroutine.
func NewMemoryStore[T any](kind string, opts ...MemoryStoreOption) *MemoryStore[T] {
	options := memoryOptions{cleanupInterval: DefaultCleanupInterval}
	for _, opt := range opts {
		opt(&options)
	}

	s := &MemoryStore[T]{
		kind:            kind,
		entries:         make(map[string]timedEntry[T]),
		cleanupInterval: options.cleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Ping is a no-op for in-memory storage since it is always available.
func (*MemoryStore[T]) Ping(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and waits for it to finish.
func (s *MemoryStore[T]) Close() error {
	close(s.stopCleanup)
	<-s.cleanupDone
	return nil
}

// cleanupLoop runs periodic cleanup of expired entries.
func (s *MemoryStore[T]) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes expired entries. Expired keys are collected
// under the read lock and deleted under the write lock to keep write
// lock hold time short.
func (s *MemoryStore[T]) cleanupExpired() {
	now := time.Now()

	s.mu.RLock()
	var expired []string
	for k, e := range s.entries {
		if e.expired(now) {
			expired = append(expired, k)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range expired {
		// Re-check: the entry may have been overwritten since the scan.
		if e, ok := s.entries[k]; ok && e.expired(now) {
			delete(s.entries, k)
		}
	}
}

// Key returns the namespaced storage key for an id.
func (s *MemoryStore[T]) Key(id string) string {
	return s.kind + ":" + id
}

// Add inserts or overwrites a record with the given TTL.
func (s *MemoryStore[T]) Add(_ context.Context, id string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired on arrival, nothing to store.
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[s.Key(id)] = timedEntry[T]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Get returns the record or ErrNotFound.
func (s *MemoryStore[T]) Get(_ context.Context, id string) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[s.Key(id)]
	if !ok || e.expired(time.Now()) {
		var zero T
		return zero, fmt.Errorf("%s: %w", s.kind, ErrNotFound)
	}
	return e.value, nil
}

// Exists reports whether the record is present.
func (s *MemoryStore[T]) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[s.Key(id)]
	return ok && !e.expired(time.Now()), nil
}

// Pop returns the record and deletes it.
func (s *MemoryStore[T]) Pop(_ context.Context, id string) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.Key(id)
	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		var zero T
		return zero, fmt.Errorf("%s: %w", s.kind, ErrNotFound)
	}
	delete(s.entries, key)
	return e.value, nil
}

// RefreshTTL sets a new TTL and returns the current record.
func (s *MemoryStore[T]) RefreshTTL(_ context.Context, id string, ttl time.Duration) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.Key(id)
	e, ok := s.entries[key]
	if !ok || e.expired(time.Now()) {
		var zero T
		return zero, fmt.Errorf("%s: %w", s.kind, ErrNotFound)
	}
	e.expiresAt = time.Now().Add(ttl)
	s.entries[key] = e
	return e.value, nil
}

// Delete removes the record and reports whether a live one was removed.
func (s *MemoryStore[T]) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.Key(id)
	e, ok := s.entries[key]
	delete(s.entries, key)
	return ok && !e.expired(time.Now()), nil
}
