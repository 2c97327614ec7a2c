// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/tessera/pkg/core"
)

type testRecord struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

// newStores builds one store per implementation so the contract tests
// run against both backends.
func newStores(t *testing.T) map[string]Store[testRecord] {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mem := NewMemoryStore[testRecord]("rec")
	t.Cleanup(func() { _ = mem.Close() })

	return map[string]Store[testRecord]{
		"redis":  NewRedisStore[testRecord](client, "rec"),
		"memory": mem,
	}
}

func TestStoreKey(t *testing.T) {
	t.Parallel()

	for name, s := range newStores(t) {
		assert.Equal(t, "rec:abc", s.Key("abc"), name)
	}
}

func TestStoreAddGet(t *testing.T) {
	t.Parallel()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testRecord{Name: "alpha", N: 7}

			require.NoError(t, s.Add(ctx, "a", want, time.Minute))

			got, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreAddZeroTTLIsNoop(t *testing.T) {
	t.Parallel()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, "z", testRecord{Name: "gone"}, 0))
			require.NoError(t, s.Add(ctx, "neg", testRecord{Name: "gone"}, -time.Second))

			ok, err := s.Exists(ctx, "z")
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = s.Exists(ctx, "neg")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreExists(t *testing.T) {
	t.Parallel()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := s.Exists(ctx, "a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Add(ctx, "a", testRecord{Name: "alpha"}, time.Minute))

			ok, err = s.Exists(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStorePopIsSingleUse(t *testing.T) {
	t.Parallel()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testRecord{Name: "once", N: 1}

			require.NoError(t, s.Add(ctx, "p", want, time.Minute))

			got, err := s.Pop(ctx, "p")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			_, err = s.Pop(ctx, "p")
			assert.ErrorIs(t, err, ErrNotFound)

			ok, err := s.Exists(ctx, "p")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStoreRefreshTTL(t *testing.T) {
	t.Parallel()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := testRecord{Name: "alive"}

			require.NoError(t, s.Add(ctx, "r", want, time.Minute))

			got, err := s.RefreshTTL(ctx, "r", time.Hour)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			_, err = s.RefreshTTL(ctx, "missing", time.Hour)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	for name, s := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, "d", testRecord{Name: "bye"}, time.Minute))

			removed, err := s.Delete(ctx, "d")
			require.NoError(t, err)
			assert.True(t, removed)

			removed, err = s.Delete(ctx, "d")
			require.NoError(t, err)
			assert.False(t, removed)
		})
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore[testRecord](client, "rec")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "e", testRecord{Name: "short"}, 30*time.Second))

	mr.FastForward(31 * time.Second)

	_, err := s.Get(ctx, "e")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "e")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRefreshTTLExtends(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore[testRecord](client, "rec")
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "r", testRecord{Name: "alive"}, 100*time.Second))

	_, err := s.RefreshTTL(ctx, "r", 200*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 200*time.Second, mr.TTL(s.Key("r")))
}

func TestRedisStorePing(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore[testRecord](client, "rec")
	assert.NoError(t, s.Ping(context.Background()))
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore[testRecord]("rec")
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "e", testRecord{Name: "short"}, 15*time.Millisecond))

	time.Sleep(30 * time.Millisecond)

	_, err := s.Get(ctx, "e")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := s.Exists(ctx, "e")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Pop(ctx, "e")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCleanupLoop(t *testing.T) {
	t.Parallel()

	t.Run("cleanup reclaims expired entries", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore[testRecord]("rec", WithCleanupInterval(20*time.Millisecond))
		defer s.Close()
		ctx := context.Background()

		require.NoError(t, s.Add(ctx, "e", testRecord{Name: "short"}, 10*time.Millisecond))

		time.Sleep(60 * time.Millisecond)

		s.mu.RLock()
		_, ok := s.entries[s.Key("e")]
		s.mu.RUnlock()
		assert.False(t, ok, "expired entry should be reclaimed")
	})

	t.Run("close stops cleanup goroutine", func(t *testing.T) {
		t.Parallel()
		s := NewMemoryStore[testRecord]("rec", WithCleanupInterval(10*time.Millisecond))

		done := make(chan struct{})
		go func() {
			_ = s.Close()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(1 * time.Second):
			t.Fatal("Close did not return in time")
		}
	})
}

func TestSessionAndCodesStores(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()

	sessions := NewRedisSessionStore(client)
	session := core.NewSession("user-1", SessionTTL)
	session.UserAgent = "curl/8"
	require.NoError(t, sessions.Add(ctx, session.SessionID, session, SessionTTL))

	assert.True(t, mr.Exists("session:"+session.SessionID), "sessions live under session:<uuid>")

	got, err := sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.UserID, got.UserID)
	assert.Equal(t, session.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, "curl/8", got.UserAgent)

	codes := NewRedisCodesStore(client)
	c := core.Codes{State: "st-1", CodeVerifier: "v", CodeChallenge: "c"}
	require.NoError(t, codes.Add(ctx, c.State, c, CodesTTL))

	assert.True(t, mr.Exists("codes:st-1"), "codes live under codes:<state>")
	assert.Equal(t, CodesTTL, mr.TTL("codes:st-1"))

	popped, err := codes.Pop(ctx, c.State)
	require.NoError(t, err)
	assert.Equal(t, c, popped)
	assert.False(t, mr.Exists("codes:st-1"))
}

func TestConnectValidation(t *testing.T) {
	t.Parallel()

	_, err := Connect(context.Background(), RedisConfig{Port: "6379"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host is required")

	_, err = Connect(context.Background(), RedisConfig{Host: "localhost"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is required")
}

func TestConnectWithMiniredis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	client, err := Connect(context.Background(), RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()).Err())
}
