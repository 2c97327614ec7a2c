// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Username string
	Password string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Connect dials Redis and verifies connectivity with a ping.
// The returned client is shared by every RedisStore built over it.
func Connect(ctx context.Context, cfg RedisConfig) (redis.UniversalClient, error) {
	if cfg.Host == "" {
		return nil, errors.New("redis host is required")
	}
	if cfg.Port == "" {
		return nil, errors.New("redis port is required")
	}

	// Apply defaults
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisStore implements Store over a shared Redis client. Records are
// serialized as JSON and expired by Redis itself.
type RedisStore[T any] struct {
	client redis.UniversalClient
	kind   string
}

// NewRedisStore creates a RedisStore for one record kind over a
// pre-connected client (see Connect; tests pass a miniredis client).
func NewRedisStore[T any](client redis.UniversalClient, kind string) *RedisStore[T] {
	return &RedisStore[T]{
		client: client,
		kind:   kind,
	}
}

// Key returns the namespaced storage key for an id.
func (s *RedisStore[T]) Key(id string) string {
	return s.kind + ":" + id
}

// Ping checks Redis connectivity (health check).
func (s *RedisStore[T]) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Add inserts or overwrites a record with the given TTL.
func (s *RedisStore[T]) Add(ctx context.Context, id string, value T, ttl time.Duration) error {
	if ttl <= 0 {
		// Already expired on arrival, nothing to store.
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s record: %w", s.kind, err)
	}

	if err := s.client.Set(ctx, s.Key(id), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to add %s record: %w", s.kind, err)
	}
	return nil
}

// Get returns the record or ErrNotFound.
func (s *RedisStore[T]) Get(ctx context.Context, id string) (T, error) {
	var value T

	data, err := s.client.Get(ctx, s.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return value, fmt.Errorf("%s: %w", s.kind, ErrNotFound)
		}
		return value, fmt.Errorf("failed to get %s record: %w", s.kind, err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to unmarshal %s record: %w", s.kind, err)
	}
	return value, nil
}

// Exists reports whether the record is present.
func (s *RedisStore[T]) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.Key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check %s record: %w", s.kind, err)
	}
	return n > 0, nil
}

// Pop returns the record and deletes it atomically (GETDEL).
func (s *RedisStore[T]) Pop(ctx context.Context, id string) (T, error) {
	var value T

	data, err := s.client.GetDel(ctx, s.Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return value, fmt.Errorf("%s: %w", s.kind, ErrNotFound)
		}
		return value, fmt.Errorf("failed to pop %s record: %w", s.kind, err)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to unmarshal %s record: %w", s.kind, err)
	}
	return value, nil
}

// RefreshTTL sets a new TTL and returns the current record.
func (s *RedisStore[T]) RefreshTTL(ctx context.Context, id string, ttl time.Duration) (T, error) {
	value, err := s.Get(ctx, id)
	if err != nil {
		return value, err
	}

	ok, err := s.client.Expire(ctx, s.Key(id), ttl).Result()
	if err != nil {
		return value, fmt.Errorf("failed to refresh %s record: %w", s.kind, err)
	}
	if !ok {
		// The record expired between the read and the EXPIRE.
		var zero T
		return zero, fmt.Errorf("%s: %w", s.kind, ErrNotFound)
	}
	return value, nil
}

// Delete removes the record and reports whether one was removed.
func (s *RedisStore[T]) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, s.Key(id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s record: %w", s.kind, err)
	}
	return n > 0, nil
}
