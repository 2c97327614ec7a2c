// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	stderrors "errors"

	"github.com/stacklok/tessera/pkg/auth"
	"github.com/stacklok/tessera/pkg/core"
	"github.com/stacklok/tessera/pkg/errors"
	"github.com/stacklok/tessera/pkg/logger"
	"github.com/stacklok/tessera/pkg/repository"
	"github.com/stacklok/tessera/pkg/token"
)

// Engine drives the provider flows end to end: it gates on the
// identity_providers registration row, runs the adapter's exchange and
// userinfo calls, and hands the resulting user to the session
// machinery.
type Engine struct {
	registry *Registry
	repos    repository.Repositories
	auth     *auth.Service
}

// NewEngine creates the engine over a registry of adapters.
func NewEngine(registry *Registry, repos repository.Repositories, authSvc *auth.Service) *Engine {
	return &Engine{
		registry: registry,
		repos:    repos,
		auth:     authSvc,
	}
}

// AuthorizationURL starts a login attempt with the named provider and
// returns the URL to send the user to.
func (e *Engine) AuthorizationURL(ctx context.Context, providerName string) (string, error) {
	provider, _, err := e.provider(ctx, providerName)
	if err != nil {
		return "", err
	}
	return provider.AuthorizationURL(ctx)
}

// Register completes a provider callback by creating a new user with a
// linked provider identity, then opens a session in the realm. The new
// account is active immediately; the provider already verified the
// email.
func (e *Engine) Register(ctx context.Context, realmSlug, providerName string, callback Callback) (token.Pair, error) {
	provider, row, err := e.provider(ctx, providerName)
	if err != nil {
		return token.Pair{}, err
	}
	identity, err := e.identify(ctx, provider, callback)
	if err != nil {
		return token.Pair{}, err
	}

	user, err := e.repos.Users.CreateWithIdentity(ctx,
		core.User{
			Email:  identity.Email,
			Status: core.UserStatusActive,
		},
		core.UserIdentity{
			ProviderID:     row.ID,
			ProviderUserID: identity.ProviderUserID,
			Email:          identity.Email,
		},
	)
	if err != nil {
		if stderrors.Is(err, repository.ErrAlreadyExists) {
			return token.Pair{}, errors.NewAlreadyExistsError("User already exists", err)
		}
		return token.Pair{}, errors.NewInternalError("failed to create user", err)
	}

	logger.Infow("registered user via identity provider",
		"provider", provider.Name(), "user_id", user.ID, "realm", realmSlug)

	return e.login(ctx, user, realmSlug)
}

// Authenticate completes a provider callback for an already linked
// account and opens a session in the realm.
func (e *Engine) Authenticate(ctx context.Context, realmSlug, providerName string, callback Callback) (token.Pair, error) {
	provider, _, err := e.provider(ctx, providerName)
	if err != nil {
		return token.Pair{}, err
	}
	identity, err := e.identify(ctx, provider, callback)
	if err != nil {
		return token.Pair{}, err
	}

	user, err := e.repos.Users.GetByProvider(ctx, identity.ProviderUserID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return token.Pair{}, errors.NewBadRequestError("User not found", err)
		}
		return token.Pair{}, errors.NewInternalError("failed to load user", err)
	}

	return e.login(ctx, user, realmSlug)
}

// provider resolves the adapter and its registration row. Unknown and
// disabled providers are indistinguishable from the outside.
func (e *Engine) provider(ctx context.Context, name string) (Provider, core.IdentityProvider, error) {
	adapter, ok := e.registry.Get(name)
	if !ok {
		return nil, core.IdentityProvider{}, errors.NewNotFoundError("Provider not found", nil)
	}

	row, err := e.repos.Providers.GetByName(ctx, adapter.Name())
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			logger.Warnw("identity provider is not registered", "provider", adapter.Name())
			return nil, core.IdentityProvider{}, errors.NewNotFoundError("Provider not found", err)
		}
		return nil, core.IdentityProvider{}, errors.NewInternalError("failed to load provider", err)
	}
	if !row.Enabled {
		logger.Warnw("identity provider is disabled", "provider", adapter.Name())
		return nil, core.IdentityProvider{}, errors.NewNotFoundError("Provider not found", nil)
	}

	return adapter, row, nil
}

func (e *Engine) identify(ctx context.Context, provider Provider, callback Callback) (Identity, error) {
	accessToken, err := provider.Exchange(ctx, callback)
	if err != nil {
		return Identity{}, err
	}
	return provider.Userinfo(ctx, accessToken)
}

func (e *Engine) login(ctx context.Context, user core.User, realmSlug string) (token.Pair, error) {
	roles, err := e.auth.ResolveRoles(ctx, realmSlug, user.ID)
	if err != nil {
		return token.Pair{}, err
	}
	return e.auth.StartSession(ctx, user, realmSlug, roles)
}
