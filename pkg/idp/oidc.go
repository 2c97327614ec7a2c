// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/stacklok/tessera/pkg/networking"
	"github.com/stacklok/tessera/pkg/store"
)

// OIDCConfig configures a generic OIDC-discoverable provider. VK and
// Yandex have dedicated adapters; everything that publishes a
// .well-known/openid-configuration document goes through this one.
type OIDCConfig struct {
	// Name is the registration key; empty means "oidc".
	Name string

	// Issuer is the provider's issuer URL used for discovery.
	Issuer string

	// ClientID is the OAuth client id registered with the provider.
	ClientID string

	// ClientSecret is the OAuth client secret.
	ClientSecret string

	// RedirectURI is where the provider sends the user back.
	RedirectURI string

	// Scopes defaults to "openid email".
	Scopes []string
}

// OIDC implements Provider for OIDC-discoverable issuers. The identity
// comes from the verified ID token rather than a userinfo endpoint:
// Exchange returns the raw ID token and Userinfo verifies it.
type OIDC struct {
	codesFlow
	name     string
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	client   *http.Client
}

var _ Provider = (*OIDC)(nil)

// NewOIDC discovers the issuer's endpoints and creates the adapter. A
// nil client falls back to the default timeout-bounded one.
func NewOIDC(ctx context.Context, cfg OIDCConfig, codes store.CodesStore, client *http.Client) (*OIDC, error) {
	if cfg.Name == "" {
		cfg.Name = "oidc"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{oidc.ScopeOpenID, "email"}
	}
	if client == nil {
		client = networking.NewHTTPClient()
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, client), cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", cfg.Issuer, err)
	}

	return &OIDC{
		codesFlow: codesFlow{codes: codes},
		name:      strings.ToLower(cfg.Name),
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       cfg.Scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		client:   client,
	}, nil
}

// Name returns the configured registration key.
func (p *OIDC) Name() string {
	return p.name
}

// AuthorizationURL builds the provider's authorize URL for a fresh
// login attempt.
func (p *OIDC) AuthorizationURL(ctx context.Context) (string, error) {
	codes, err := p.newCodes(ctx)
	if err != nil {
		return "", err
	}
	return p.oauth.AuthCodeURL(codes.State, oauth2.S256ChallengeOption(codes.CodeVerifier)), nil
}

// Exchange trades the callback code for the provider's raw ID token.
func (p *OIDC) Exchange(ctx context.Context, callback Callback) (string, error) {
	codes, err := p.popCodes(ctx, callback.State)
	if err != nil {
		return "", err
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := p.oauth.Exchange(ctx, callback.Code, oauth2.VerifierOption(codes.CodeVerifier))
	if err != nil {
		return "", fmt.Errorf("oidc code exchange: %w", err)
	}
	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", fmt.Errorf("oidc code exchange: token response carries no id_token")
	}
	return rawIDToken, nil
}

// Userinfo verifies the ID token and reads the identity claims from it.
func (p *OIDC) Userinfo(ctx context.Context, rawIDToken string) (Identity, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return Identity{}, fmt.Errorf("oidc id token verification: %w", err)
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("oidc id token claims: %w", err)
	}
	return Identity{
		ProviderUserID: idToken.Subject,
		Email:          strings.ToLower(claims.Email),
	}, nil
}
