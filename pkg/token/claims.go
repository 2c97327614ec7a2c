// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/tessera/pkg/core"
)

// Type distinguishes the two halves of a user token pair. Client tokens
// only ever carry TypeAccess.
type Type string

// Issued token types.
const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Pair is the result of a user token issuance: a short-lived access token
// and a long-lived refresh token over the same claims, bound to a
// server-side session.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
	ExpiresAt    int64  `json:"expires_at"`
}

// ClientToken is the result of a client-credentials issuance. No refresh
// token is emitted for clients.
type ClientToken struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// ClientClaims is the introspection result for a client token. Active
// is false for tokens that verify but are past expiry; Cause then says
// why.
type ClientClaims struct {
	Active    bool   `json:"active"`
	Cause     string `json:"cause,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	ClientID  string `json:"sub,omitempty"`
	Scope     string `json:"scope,omitempty"`
	Realm     string `json:"realm,omitempty"`
	TokenType Type   `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	TokenID   string `json:"jti,omitempty"`
}

// UserClaims is the introspection result for a user token. Roles are
// parsed back out of the space-joined claim.
type UserClaims struct {
	Active    bool            `json:"active"`
	Cause     string          `json:"cause,omitempty"`
	Issuer    string          `json:"iss,omitempty"`
	Subject   string          `json:"sub,omitempty"`
	Email     string          `json:"email,omitempty"`
	Status    core.UserStatus `json:"status,omitempty"`
	Realm     string          `json:"realm,omitempty"`
	Roles     []core.Role     `json:"roles,omitempty"`
	TokenType Type            `json:"token_type,omitempty"`
	ExpiresAt int64           `json:"exp,omitempty"`
	IssuedAt  int64           `json:"iat,omitempty"`
	TokenID   string          `json:"jti,omitempty"`
}

// Payload rebuilds the signable claim set from introspected user claims,
// dropping the timing claims so a new pair can be issued over it.
func (c UserClaims) Payload() map[string]any {
	return map[string]any{
		"iss":    c.Issuer,
		"sub":    c.Subject,
		"email":  c.Email,
		"status": string(c.Status),
		"realm":  c.Realm,
		"roles":  core.JoinRoles(c.Roles),
	}
}

func clientClaimsFrom(claims jwt.MapClaims) ClientClaims {
	return ClientClaims{
		Active:    true,
		Issuer:    stringClaim(claims, "iss"),
		ClientID:  stringClaim(claims, "sub"),
		Scope:     stringClaim(claims, "scope"),
		Realm:     stringClaim(claims, "realm"),
		TokenType: Type(stringClaim(claims, "token_type")),
		ExpiresAt: unixClaim(claims, "exp"),
		IssuedAt:  unixClaim(claims, "iat"),
		TokenID:   stringClaim(claims, "jti"),
	}
}

func userClaimsFrom(claims jwt.MapClaims) UserClaims {
	return UserClaims{
		Active:    true,
		Issuer:    stringClaim(claims, "iss"),
		Subject:   stringClaim(claims, "sub"),
		Email:     stringClaim(claims, "email"),
		Status:    core.UserStatus(stringClaim(claims, "status")),
		Realm:     stringClaim(claims, "realm"),
		Roles:     core.SplitRoles(stringClaim(claims, "roles")),
		TokenType: Type(stringClaim(claims, "token_type")),
		ExpiresAt: unixClaim(claims, "exp"),
		IssuedAt:  unixClaim(claims, "iat"),
		TokenID:   stringClaim(claims, "jti"),
	}
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// unixClaim reads a numeric claim. encoding/json decodes JWT numbers as
// float64; freshly built claim sets may still hold int64.
func unixClaim(claims jwt.MapClaims, key string) int64 {
	switch v := claims[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
