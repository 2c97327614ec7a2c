// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package idp implements third-party logins over the Authorization Code
// flow with PKCE. Each provider adapter speaks one upstream's wire
// dialect; the Engine composes an adapter with the user repository and
// the session machinery into register and authenticate flows.
package idp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/stacklok/tessera/pkg/core"
	"github.com/stacklok/tessera/pkg/crypto"
	"github.com/stacklok/tessera/pkg/errors"
	"github.com/stacklok/tessera/pkg/store"
)

// pkceChallengeMethodS256 is the only challenge method providers get.
const pkceChallengeMethodS256 = "S256"

// Callback carries the parameters a provider sends back to the redirect
// URI after the user approves the login.
type Callback struct {
	Code     string
	State    string
	DeviceID string // VK ID sends one; other providers leave it empty
}

// Identity is the provider's answer about who completed the login.
type Identity struct {
	ProviderUserID string
	Email          string
}

// Provider is a single third-party login integration.
//
// AuthorizationURL allocates fresh PKCE material and stores it under
// the generated state; Exchange consumes that state exactly once, so a
// replayed callback fails with a bad-request error.
type Provider interface {
	// Name returns the provider's registration key, a lowercase slug
	// matching its identity_providers row and its URL path segment.
	Name() string

	// AuthorizationURL builds the URL to send the user to.
	AuthorizationURL(ctx context.Context) (string, error)

	// Exchange trades the callback for the provider's access credential.
	Exchange(ctx context.Context, callback Callback) (string, error)

	// Userinfo resolves the credential into the provider-side identity.
	// The email is lowercased.
	Userinfo(ctx context.Context, accessToken string) (Identity, error)
}

// Registry resolves provider adapters by name, case-insensitively.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry over the given adapters.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[strings.ToLower(p.Name())] = p
	}
	return r
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// codesFlow owns the PKCE material shared by every adapter: starting a
// login generates and stores Codes under their state, the callback pops
// them exactly once.
type codesFlow struct {
	codes store.CodesStore
}

func (f codesFlow) newCodes(ctx context.Context) (core.Codes, error) {
	codes, err := crypto.NewCodes()
	if err != nil {
		return core.Codes{}, errors.NewInternalError("failed to generate authorization codes", err)
	}
	if err := f.codes.Add(ctx, codes.State, codes, store.CodesTTL); err != nil {
		return core.Codes{}, errors.NewInternalError("failed to store authorization codes", err)
	}
	return codes, nil
}

func (f codesFlow) popCodes(ctx context.Context, state string) (core.Codes, error) {
	codes, err := f.codes.Pop(ctx, state)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return core.Codes{}, errors.NewBadRequestError("Bad request", err)
		}
		return core.Codes{}, errors.NewInternalError("failed to load authorization codes", err)
	}
	return codes, nil
}

// providerID decodes provider account ids that arrive as JSON numbers
// from some providers and as strings from others, without losing digits
// on large numeric ids.
type providerID string

func (id *providerID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = providerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = providerID(n.String())
	return nil
}

func (id providerID) String() string {
	return string(id)
}
