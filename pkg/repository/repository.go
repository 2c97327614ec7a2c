// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package repository defines the persistence contracts the services
// consume, with a Postgres implementation and an in-memory one for
// tests and single-node development.
package repository

import (
	"context"
	"errors"

	"github.com/stacklok/tessera/pkg/core"
)

var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when a resource already exists.
	ErrAlreadyExists = errors.New("resource already exists")
)

// RealmRepo reads realms.
type RealmRepo interface {
	// GetBySlug returns the realm with the given slug.
	GetBySlug(ctx context.Context, slug string) (core.Realm, error)

	// Get returns the realm with the given id.
	Get(ctx context.Context, id string) (core.Realm, error)
}

// ClientRepo reads OAuth2 clients.
type ClientRepo interface {
	// GetByClientID returns the client registered under clientID in the
	// realm. Clients of disabled realms are not visible.
	GetByClientID(ctx context.Context, realmSlug, clientID string) (core.Client, error)
}

// UserRepo reads and creates users, their identities and their group
// memberships.
type UserRepo interface {
	// Create persists a new user. The email is lowercased at storage.
	Create(ctx context.Context, user core.User) (core.User, error)

	// CreateWithIdentity persists a new user together with the identity
	// linking it to a third-party provider, in one logical unit.
	CreateWithIdentity(ctx context.Context, user core.User, identity core.UserIdentity) (core.User, error)

	// Get returns the user with the given id.
	Get(ctx context.Context, id string) (core.User, error)

	// GetByEmail returns the user with the given (lowercased) email.
	GetByEmail(ctx context.Context, email string) (core.User, error)

	// GetByProvider returns the user linked to the provider account.
	GetByProvider(ctx context.Context, providerUserID string) (core.User, error)

	// GetGroups returns the user's groups within the realm.
	GetGroups(ctx context.Context, realmSlug, userID string) ([]core.Group, error)
}

// IdentityProviderRepo reads identity provider registrations.
type IdentityProviderRepo interface {
	// GetByName returns the provider registered under the given name.
	GetByName(ctx context.Context, name string) (core.IdentityProvider, error)
}

// Repositories bundles every contract for wiring.
type Repositories struct {
	Realms    RealmRepo
	Clients   ClientRepo
	Users     UserRepo
	Providers IdentityProviderRepo
}
