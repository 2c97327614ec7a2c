// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"time"

	"github.com/stacklok/tessera/pkg/errors"
	"github.com/stacklok/tessera/pkg/store"
)

// Token lifetimes. Revocation rides on the short access lifetime plus
// the session check, so these stay small relative to the session TTL.
const (
	AccessTTL       = 15 * time.Minute
	RefreshTTL      = 7 * 24 * time.Hour
	ClientAccessTTL = 30 * time.Minute
)

// Service issues token pairs and answers introspection queries. User
// introspection consults the session store, which is what makes logout
// an effective revocation.
type Service struct {
	signer   *Signer
	sessions store.SessionStore
}

// NewService creates a token service over the signer and session store.
func NewService(signer *Signer, sessions store.SessionStore) *Service {
	return &Service{signer: signer, sessions: sessions}
}

// Issuer returns the iss claim value stamped into issued tokens.
func (s *Service) Issuer() string {
	return s.signer.Issuer()
}

// IssuePair signs an access/refresh pair over the same payload. The two
// tokens differ only in token_type, exp and jti. ExpiresAt on the pair
// is the access-token expiry.
func (s *Service) IssuePair(payload map[string]any, sessionID string) (Pair, error) {
	access, expiresAt, err := s.signer.Sign(payload, TypeAccess, AccessTTL)
	if err != nil {
		return Pair{}, errors.NewInternalError("signing access token", err)
	}
	refresh, _, err := s.signer.Sign(payload, TypeRefresh, RefreshTTL)
	if err != nil {
		return Pair{}, errors.NewInternalError("signing refresh token", err)
	}
	return Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		SessionID:    sessionID,
		ExpiresAt:    expiresAt,
	}, nil
}

// IssueClientAccess signs a single access token for a client principal.
func (s *Service) IssueClientAccess(payload map[string]any) (ClientToken, error) {
	access, expiresAt, err := s.signer.Sign(payload, TypeAccess, ClientAccessTTL)
	if err != nil {
		return ClientToken{}, errors.NewInternalError("signing client access token", err)
	}
	return ClientToken{AccessToken: access, ExpiresAt: expiresAt}, nil
}

// IntrospectClient verifies a client token against the realm it is
// presented in. A token that fails to verify, or that belongs to another
// realm, is rejected outright; a token that verifies but has expired is
// reported as inactive.
func (s *Service) IntrospectClient(tokenString, realmSlug string) (ClientClaims, error) {
	claims, err := s.signer.Decode(tokenString)
	if err != nil {
		return ClientClaims{}, errors.NewUnauthorizedError("Invalid token", err)
	}

	realm := stringClaim(claims, "realm")
	if realm == "" || realm != realmSlug {
		return ClientClaims{}, errors.NewUnauthorizedError("Invalid token in this realm", nil)
	}

	if expired(claims) {
		return ClientClaims{Cause: "Token expired"}, nil
	}
	return clientClaimsFrom(claims), nil
}

// IntrospectUser verifies a user token against the realm and the live
// session behind it. A missing session or an unverifiable token is
// rejected outright; a verifiable token in the wrong realm or past its
// expiry is reported as inactive with the cause.
func (s *Service) IntrospectUser(ctx context.Context, tokenString, realmSlug, sessionID string) (UserClaims, error) {
	if sessionID == "" {
		return UserClaims{}, errors.NewUnauthorizedError("Session not found", nil)
	}
	ok, err := s.sessions.Exists(ctx, sessionID)
	if err != nil {
		return UserClaims{}, errors.NewInternalError("checking session", err)
	}
	if !ok {
		return UserClaims{}, errors.NewUnauthorizedError("Session not found", nil)
	}

	claims, err := s.signer.Decode(tokenString)
	if err != nil {
		return UserClaims{}, errors.NewUnauthorizedError("Invalid token", err)
	}

	if stringClaim(claims, "realm") != realmSlug {
		return UserClaims{Cause: "Invalid token in this realm"}, nil
	}
	if expired(claims) {
		return UserClaims{Cause: "Token expired"}, nil
	}
	return userClaimsFrom(claims), nil
}

// expired reports whether the exp claim is missing, malformed or past.
func expired(claims map[string]any) bool {
	exp := unixClaim(claims, "exp")
	return exp == 0 || exp < time.Now().Unix()
}
