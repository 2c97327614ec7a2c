// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stacklok/tessera/pkg/core"
)

// Record kinds kept in the store.
const (
	SessionKind = "session"
	CodesKind   = "codes"
)

// Session lifetime policy. A fresh session lives SessionTTL; when a
// refresh finds less than SessionRefreshThreshold remaining, the TTL is
// extended by SessionRefreshIn on top of what remains. Comparisons are
// in whole seconds.
const (
	SessionTTL              = 7 * 24 * time.Hour
	SessionRefreshThreshold = 5 * 24 * time.Hour
	SessionRefreshIn        = 2 * 24 * time.Hour
)

// CodesTTL bounds how long a PKCE login attempt may stay in flight.
const CodesTTL = 200 * time.Second

// SessionStore holds sessions under session:<uuid>.
type SessionStore = Store[core.Session]

// CodesStore holds PKCE codes under codes:<state>.
type CodesStore = Store[core.Codes]

// NewRedisSessionStore creates the session store over a shared client.
func NewRedisSessionStore(client redis.UniversalClient) *RedisStore[core.Session] {
	return NewRedisStore[core.Session](client, SessionKind)
}

// NewRedisCodesStore creates the codes store over a shared client.
func NewRedisCodesStore(client redis.UniversalClient) *RedisStore[core.Codes] {
	return NewRedisStore[core.Codes](client, CodesKind)
}

// NewMemorySessionStore creates an in-memory session store.
func NewMemorySessionStore(opts ...MemoryStoreOption) *MemoryStore[core.Session] {
	return NewMemoryStore[core.Session](SessionKind, opts...)
}

// NewMemoryCodesStore creates an in-memory codes store.
func NewMemoryCodesStore(opts ...MemoryStoreOption) *MemoryStore[core.Codes] {
	return NewMemoryStore[core.Codes](CodesKind, opts...)
}

var (
	_ SessionStore = (*RedisStore[core.Session])(nil)
	_ SessionStore = (*MemoryStore[core.Session])(nil)
	_ CodesStore   = (*RedisStore[core.Codes])(nil)
	_ CodesStore   = (*MemoryStore[core.Codes])(nil)
)
