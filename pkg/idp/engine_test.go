// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/tessera/pkg/auth"
	"github.com/stacklok/tessera/pkg/core"
	"github.com/stacklok/tessera/pkg/crypto"
	"github.com/stacklok/tessera/pkg/errors"
	"github.com/stacklok/tessera/pkg/repository"
	"github.com/stacklok/tessera/pkg/store"
	"github.com/stacklok/tessera/pkg/token"
)

// stubProvider answers the adapter calls without any upstream, so the
// engine flows can be tested in isolation.
type stubProvider struct {
	name     string
	identity Identity
}

func (s *stubProvider) Name() string { return s.name }

func (*stubProvider) AuthorizationURL(context.Context) (string, error) {
	return "https://provider.test/authorize?state=s", nil
}

func (*stubProvider) Exchange(_ context.Context, callback Callback) (string, error) {
	if callback.State == "" {
		return "", errors.NewBadRequestError("Bad request", nil)
	}
	return "provider-access", nil
}

func (s *stubProvider) Userinfo(context.Context, string) (Identity, error) {
	return s.identity, nil
}

type engineFixture struct {
	engine   *Engine
	mem      *repository.Memory
	sessions *store.MemoryStore[core.Session]
}

func newEngineFixture(t *testing.T, provider Provider) *engineFixture {
	t.Helper()

	mem := repository.NewMemory()
	sessions := store.NewMemorySessionStore()
	t.Cleanup(func() { _ = sessions.Close() })

	signer := token.NewSigner([]byte("0123456789abcdef0123456789abcdef"), "https://sso.test")
	tokens := token.NewService(signer, sessions)
	authSvc := auth.NewService(mem.Repositories(), sessions, tokens, crypto.NewHasher())

	mem.AddRealm(core.Realm{ID: "realm-acme", Slug: "acme", Name: "Acme", Enabled: true})

	return &engineFixture{
		engine:   NewEngine(NewRegistry(provider), mem.Repositories(), authSvc),
		mem:      mem,
		sessions: sessions,
	}
}

func TestEngineRegister(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		name:     "yandex",
		identity: Identity{ProviderUserID: "42", Email: "u@x.y"},
	}
	f := newEngineFixture(t, provider)
	f.mem.AddProvider(core.IdentityProvider{
		ID: "provider-yandex", Name: "yandex", Protocol: core.ProtocolOAuth, Enabled: true,
	})

	pair, err := f.engine.Register(context.Background(), "acme", "yandex", Callback{Code: "c", State: "s"})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.SessionID)

	user, err := f.mem.Repositories().Users.GetByProvider(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "u@x.y", user.Email)
	assert.Equal(t, core.UserStatusActive, user.Status)

	exists, err := f.sessions.Exists(context.Background(), pair.SessionID)
	require.NoError(t, err)
	assert.True(t, exists)

	t.Run("second registration conflicts", func(t *testing.T) {
		_, err := f.engine.Register(context.Background(), "acme", "yandex", Callback{Code: "c", State: "s"})
		require.Error(t, err)
		assert.True(t, errors.IsAlreadyExists(err))
	})
}

func TestEngineAuthenticate(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{
		name:     "yandex",
		identity: Identity{ProviderUserID: "42", Email: "u@x.y"},
	}
	f := newEngineFixture(t, provider)
	f.mem.AddProvider(core.IdentityProvider{
		ID: "provider-yandex", Name: "yandex", Protocol: core.ProtocolOAuth, Enabled: true,
	})

	t.Run("unlinked account", func(t *testing.T) {
		_, err := f.engine.Authenticate(context.Background(), "acme", "yandex", Callback{Code: "c", State: "s"})
		require.Error(t, err)
		assert.True(t, errors.IsBadRequest(err))
		assert.Equal(t, "User not found", errors.Message(err))
	})

	t.Run("linked account logs in", func(t *testing.T) {
		_, err := f.engine.Register(context.Background(), "acme", "yandex", Callback{Code: "c", State: "s"})
		require.NoError(t, err)

		pair, err := f.engine.Authenticate(context.Background(), "acme", "yandex", Callback{Code: "c", State: "s"})
		require.NoError(t, err)
		assert.NotEmpty(t, pair.RefreshToken)
	})
}

func TestEngineProviderGating(t *testing.T) {
	t.Parallel()

	provider := &stubProvider{name: "yandex"}

	t.Run("unknown adapter", func(t *testing.T) {
		f := newEngineFixture(t, provider)
		_, err := f.engine.AuthorizationURL(context.Background(), "github")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("unregistered provider", func(t *testing.T) {
		f := newEngineFixture(t, provider)
		_, err := f.engine.AuthorizationURL(context.Background(), "yandex")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("disabled provider", func(t *testing.T) {
		f := newEngineFixture(t, provider)
		f.mem.AddProvider(core.IdentityProvider{
			ID: "provider-yandex", Name: "yandex", Protocol: core.ProtocolOAuth, Enabled: false,
		})
		_, err := f.engine.AuthorizationURL(context.Background(), "yandex")
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}
