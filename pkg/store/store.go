// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package store provides the TTL key-value store behind sessions and
// one-time PKCE codes, with Redis and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is absent or already expired.
var ErrNotFound = errors.New("record not found")

// Store is a TTL-bounded key-value store for one record kind. Keys are
// namespaced as <kind>:<id> so kinds never collide. Values are stored
// as JSON.
type Store[T any] interface {
	// Key returns the namespaced storage key for an id.
	Key(id string) string

	// Add inserts or overwrites a record with the given TTL. A zero or
	// negative TTL makes the insert a no-op.
	Add(ctx context.Context, id string, value T, ttl time.Duration) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (T, error)

	// Exists reports whether the record is present.
	Exists(ctx context.Context, id string) (bool, error)

	// Pop returns the record and deletes it. A missed read returns
	// ErrNotFound without deleting anything.
	Pop(ctx context.Context, id string) (T, error)

	// RefreshTTL sets a new TTL and returns the current record, or
	// ErrNotFound when it is absent.
	RefreshTTL(ctx context.Context, id string, ttl time.Duration) (T, error)

	// Delete removes the record. It is idempotent and reports whether
	// a record was removed.
	Delete(ctx context.Context, id string) (bool, error)
}
