// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/stacklok/tessera/pkg/core"
)

// Memory is an in-memory backing for the repository contracts. It is
// used in tests and in single-process deployments that do not need
// Postgres.
type Memory struct {
	mu sync.RWMutex

	realms     map[string]core.Realm // realm id -> realm
	realmSlugs map[string]string     // slug -> realm id

	clients map[string]core.Client // "realmID:clientID" -> client

	users      map[string]core.User         // user id -> user
	emails     map[string]string            // email -> user id
	identities map[string]core.UserIdentity // provider user id -> identity

	groups      map[string]core.Group // group id -> group
	memberships map[string][]string   // user id -> group ids

	providers map[string]core.IdentityProvider // provider name -> provider
}

// NewMemory returns an empty in-memory backing.
func NewMemory() *Memory {
	return &Memory{
		realms:      make(map[string]core.Realm),
		realmSlugs:  make(map[string]string),
		clients:     make(map[string]core.Client),
		users:       make(map[string]core.User),
		emails:      make(map[string]string),
		identities:  make(map[string]core.UserIdentity),
		groups:      make(map[string]core.Group),
		memberships: make(map[string][]string),
		providers:   make(map[string]core.IdentityProvider),
	}
}

// Repositories returns the repository set backed by this store.
func (m *Memory) Repositories() Repositories {
	return Repositories{
		Realms:    &memoryRealms{m},
		Clients:   &memoryClients{m},
		Users:     &memoryUsers{m},
		Providers: &memoryProviders{m},
	}
}

var (
	_ RealmRepo            = (*memoryRealms)(nil)
	_ ClientRepo           = (*memoryClients)(nil)
	_ UserRepo             = (*memoryUsers)(nil)
	_ IdentityProviderRepo = (*memoryProviders)(nil)
)

// AddRealm registers a realm fixture.
func (m *Memory) AddRealm(realm core.Realm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realms[realm.ID] = realm
	m.realmSlugs[realm.Slug] = realm.ID
}

// AddClient registers a client fixture under its realm.
func (m *Memory) AddClient(client core.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[client.RealmID+":"+client.ClientID] = client
}

// AddGroup registers a group fixture and enrolls the given users.
func (m *Memory) AddGroup(group core.Group, userIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group.ID] = group
	for _, id := range userIDs {
		m.memberships[id] = append(m.memberships[id], group.ID)
	}
}

// AddProvider registers an identity provider fixture.
func (m *Memory) AddProvider(provider core.IdentityProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[provider.Name] = provider
}

// SetUser overwrites a stored user, keyed by ID. The user must already
// exist; use it to flip status or credentials mid-test.
func (m *Memory) SetUser(user core.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	m.emails[user.Email] = user.ID
}

// memoryRealms implements RealmRepo over Memory.
type memoryRealms struct{ m *Memory }

// GetBySlug returns the realm with the given slug.
func (r *memoryRealms) GetBySlug(_ context.Context, slug string) (core.Realm, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	id, ok := r.m.realmSlugs[slug]
	if !ok {
		return core.Realm{}, ErrNotFound
	}
	return r.m.realms[id], nil
}

// Get returns the realm with the given id.
func (r *memoryRealms) Get(_ context.Context, id string) (core.Realm, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	realm, ok := r.m.realms[id]
	if !ok {
		return core.Realm{}, ErrNotFound
	}
	return realm, nil
}

// memoryClients implements ClientRepo over Memory.
type memoryClients struct{ m *Memory }

// GetByClientID returns the client registered under clientID in the
// realm. Clients of disabled realms are not visible.
func (c *memoryClients) GetByClientID(_ context.Context, realmSlug, clientID string) (core.Client, error) {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()

	realmID, ok := c.m.realmSlugs[realmSlug]
	if !ok || !c.m.realms[realmID].Enabled {
		return core.Client{}, ErrNotFound
	}
	client, ok := c.m.clients[realmID+":"+clientID]
	if !ok {
		return core.Client{}, ErrNotFound
	}
	return client, nil
}

// memoryUsers implements UserRepo over Memory.
type memoryUsers struct{ m *Memory }

// Create persists a new user. The email is lowercased at storage.
func (u *memoryUsers) Create(_ context.Context, user core.User) (core.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()
	return u.createLocked(user)
}

// CreateWithIdentity persists a new user together with its provider
// identity. Either both records land or neither does.
func (u *memoryUsers) CreateWithIdentity(_ context.Context, user core.User, identity core.UserIdentity) (core.User, error) {
	u.m.mu.Lock()
	defer u.m.mu.Unlock()

	if _, ok := u.m.identities[identity.ProviderUserID]; ok {
		return core.User{}, ErrAlreadyExists
	}
	created, err := u.createLocked(user)
	if err != nil {
		return core.User{}, err
	}
	identity.UserID = created.ID
	identity.Email = strings.ToLower(identity.Email)
	u.m.identities[identity.ProviderUserID] = identity
	return created, nil
}

// createLocked inserts the user. Callers hold the write lock.
func (u *memoryUsers) createLocked(user core.User) (core.User, error) {
	user = normalizeUser(user)
	if user.Email != "" {
		if _, ok := u.m.emails[user.Email]; ok {
			return core.User{}, ErrAlreadyExists
		}
	}
	u.m.users[user.ID] = user
	if user.Email != "" {
		u.m.emails[user.Email] = user.ID
	}
	return user, nil
}

// Get returns the user with the given id.
func (u *memoryUsers) Get(_ context.Context, id string) (core.User, error) {
	u.m.mu.RLock()
	defer u.m.mu.RUnlock()

	user, ok := u.m.users[id]
	if !ok {
		return core.User{}, ErrNotFound
	}
	return user, nil
}

// GetByEmail returns the user with the given email.
func (u *memoryUsers) GetByEmail(_ context.Context, email string) (core.User, error) {
	u.m.mu.RLock()
	defer u.m.mu.RUnlock()

	id, ok := u.m.emails[strings.ToLower(email)]
	if !ok {
		return core.User{}, ErrNotFound
	}
	return u.m.users[id], nil
}

// GetByProvider returns the user linked to the provider account.
func (u *memoryUsers) GetByProvider(_ context.Context, providerUserID string) (core.User, error) {
	u.m.mu.RLock()
	defer u.m.mu.RUnlock()

	identity, ok := u.m.identities[providerUserID]
	if !ok {
		return core.User{}, ErrNotFound
	}
	user, ok := u.m.users[identity.UserID]
	if !ok {
		return core.User{}, ErrNotFound
	}
	return user, nil
}

// GetGroups returns the user's groups within the realm.
func (u *memoryUsers) GetGroups(_ context.Context, realmSlug, userID string) ([]core.Group, error) {
	u.m.mu.RLock()
	defer u.m.mu.RUnlock()

	realmID, ok := u.m.realmSlugs[realmSlug]
	if !ok {
		return nil, nil
	}

	var groups []core.Group
	for _, groupID := range u.m.memberships[userID] {
		group, ok := u.m.groups[groupID]
		if !ok || group.RealmID != realmID {
			continue
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// memoryProviders implements IdentityProviderRepo over Memory.
type memoryProviders struct{ m *Memory }

// GetByName returns the provider registered under the given name.
func (p *memoryProviders) GetByName(_ context.Context, name string) (core.IdentityProvider, error) {
	p.m.mu.RLock()
	defer p.m.mu.RUnlock()

	provider, ok := p.m.providers[name]
	if !ok {
		return core.IdentityProvider{}, ErrNotFound
	}
	return provider, nil
}
