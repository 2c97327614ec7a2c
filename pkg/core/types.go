// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package core defines the domain model shared by the tessera services:
// realms, their clients and users, group-based roles, third-party identity
// providers, and the session and PKCE material kept in the TTL store.
package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

// Accepted user statuses.
const (
	UserStatusRegistered    UserStatus = "registered"
	UserStatusEmailVerified UserStatus = "email_verified"
	UserStatusActive        UserStatus = "active"
	UserStatusInactive      UserStatus = "inactive"
	UserStatusBanned        UserStatus = "banned"
	UserStatusDeleted       UserStatus = "deleted"
)

// Blocked reports whether the status blocks every authentication.
func (s UserStatus) Blocked() bool {
	return s == UserStatusBanned || s == UserStatusDeleted
}

// ClientType distinguishes how a client holds and presents credentials.
type ClientType string

// Accepted client types.
const (
	ClientTypePublic         ClientType = "public"
	ClientTypeConfidential   ClientType = "confidential"
	ClientTypeServiceAccount ClientType = "service-account"
)

// GrantType determines how a client may obtain tokens.
type GrantType string

// Accepted grant types.
const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
)

// Role is an RBAC label granted to users through group membership.
type Role string

// Accepted roles.
const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleUser       Role = "user"
	RoleGuest      Role = "guest"
)

// Protocol is the wire protocol spoken by a third-party identity provider.
type Protocol string

// Accepted identity provider protocols.
const (
	ProtocolOAuth Protocol = "oauth"
	ProtocolOIDC  Protocol = "oidc"
)

// Realm is a tenant. Clients, groups and role grants scope to a realm;
// users are global and acquire roles per realm through group membership.
// A disabled realm rejects every authentication in it.
type Realm struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// Client is a machine principal authenticating with the client-credentials
// grant. SecretHash holds the hashed client secret and never serializes.
type Client struct {
	ID           string      `json:"id"`
	RealmID      string      `json:"realm_id"`
	ClientID     string      `json:"client_id"`
	SecretHash   string      `json:"-"`
	Name         string      `json:"name"`
	Type         ClientType  `json:"client_type"`
	GrantTypes   []GrantType `json:"grant_types"`
	RedirectURIs []string    `json:"redirect_uris,omitempty"`
	Scopes       []string    `json:"scopes"`
	Enabled      bool        `json:"enabled"`
	ExpiresAt    *time.Time  `json:"expires_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// SupportsGrant reports whether the client is allowed to use the grant type.
func (c *Client) SupportsGrant(grantType GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// Validate enforces the structural invariants of a client registration:
// at least one grant type, no client-credentials grant on public clients,
// and well-formed scope labels.
func (c *Client) Validate() error {
	if len(c.GrantTypes) == 0 {
		return fmt.Errorf("client %s: at least one grant type is required", c.ClientID)
	}
	if c.Type == ClientTypePublic && c.SupportsGrant(GrantClientCredentials) {
		return fmt.Errorf("client %s: public clients cannot use the client_credentials grant", c.ClientID)
	}
	for _, s := range c.Scopes {
		if !ValidScope(s) {
			return fmt.Errorf("client %s: malformed scope %q", c.ClientID, s)
		}
	}
	return nil
}

// Payload builds the JWT claim set for a client token, before the signer
// adds the timing claims.
func (c *Client) Payload(issuer, realmSlug string, scopes []string) map[string]any {
	return map[string]any{
		"iss":   issuer,
		"sub":   c.ClientID,
		"scope": JoinScopes(scopes),
		"realm": realmSlug,
	}
}

// User is a human principal. PasswordHash is empty for accounts created
// through a third-party identity provider and never serializes.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username,omitempty"`
	PasswordHash string     `json:"-"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Payload builds the JWT claim set for a user token, before the signer
// adds the timing claims.
func (u *User) Payload(issuer, realmSlug string, roles []Role) map[string]any {
	return map[string]any{
		"iss":    issuer,
		"sub":    u.ID,
		"email":  u.Email,
		"status": string(u.Status),
		"realm":  realmSlug,
		"roles":  JoinRoles(roles),
	}
}

// Group confers its role list on every member, within its realm.
type Group struct {
	ID          string `json:"id"`
	RealmID     string `json:"realm_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Roles       []Role `json:"roles"`
}

// IdentityProvider is the registration of a third-party login
// (vk, yandex, or an OIDC-discoverable issuer). Names are unique.
type IdentityProvider struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Protocol     Protocol `json:"protocol"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"-"`
	Scopes       []string `json:"scopes"`
	Enabled      bool     `json:"enabled"`
}

// UserIdentity links a user to an account at an identity provider.
// ProviderUserID is unique within a provider.
type UserIdentity struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	ProviderID     string `json:"provider_id"`
	ProviderUserID string `json:"provider_user_id"`
	Email          string `json:"email"`
}

// Session is the server-side record behind a user token pair. It lives in
// the TTL store under session:<id> with TTL max(0, expires_at-now);
// deleting it revokes the pair.
type Session struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	ExpiresAt    int64     `json:"expires_at"`
	UserAgent    string    `json:"user_agent,omitempty"`
	IPAddress    string    `json:"ip_address,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}

// NewSession allocates a fresh session for the user expiring after lifetime.
func NewSession(userID string, lifetime time.Duration) Session {
	now := time.Now()
	return Session{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		ExpiresAt:    now.Add(lifetime).Unix(),
		LastActivity: now,
	}
}

// Remaining returns the seconds until the session expires, negative once
// it has passed.
func (s *Session) Remaining(now time.Time) int64 {
	return s.ExpiresAt - now.Unix()
}

// Codes is the PKCE material generated for a third-party login attempt,
// kept in the TTL store under codes:<state> until the callback consumes it.
type Codes struct {
	State         string `json:"state"`
	CodeVerifier  string `json:"code_verifier"`
	CodeChallenge string `json:"code_challenge"`
}
