// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	stderrors "errors"

	"github.com/stacklok/tessera/pkg/core"
	"github.com/stacklok/tessera/pkg/errors"
	"github.com/stacklok/tessera/pkg/repository"
	"github.com/stacklok/tessera/pkg/token"
)

// AuthenticateClient performs the client-credentials grant within a
// realm. The effective scopes are the intersection of the requested and
// the registered scopes; a client whose request intersects to nothing
// gets no token at all.
func (s *Service) AuthenticateClient(ctx context.Context, realmSlug string, grantType core.GrantType, clientID, clientSecret, scope string) (token.ClientToken, error) {
	if grantType != core.GrantClientCredentials {
		return token.ClientToken{}, errors.NewUnsupportedGrantError("Unsupported grant type", nil)
	}

	client, err := s.repos.Clients.GetByClientID(ctx, realmSlug, clientID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return token.ClientToken{}, errors.NewUnauthorizedError("Client unauthorized in this realm", nil)
		}
		return token.ClientToken{}, errors.NewInternalError("loading client", err)
	}
	if !client.Enabled {
		return token.ClientToken{}, errors.NewNotEnabledError("Client not enabled yet", nil)
	}
	if err := client.Validate(); err != nil {
		return token.ClientToken{}, errors.NewInternalError("invalid client registration", err)
	}
	if !client.SupportsGrant(grantType) {
		return token.ClientToken{}, errors.NewUnsupportedGrantError("Unsupported grant type", nil)
	}

	ok, err := s.hasher.Verify(ctx, clientSecret, client.SecretHash)
	if err != nil {
		return token.ClientToken{}, errors.NewInternalError("verifying client secret", err)
	}
	if !ok {
		return token.ClientToken{}, errors.NewInvalidCredentialsError("Client credentials invalid", nil)
	}

	scopes := core.ValidateScopes(core.SplitScopes(scope), client.Scopes, false)
	if scopes == nil {
		return token.ClientToken{}, errors.NewPermissionDeniedError("Client permission denied", nil)
	}

	payload := client.Payload(s.tokens.Issuer(), realmSlug, scopes)
	return s.tokens.IssueClientAccess(payload)
}

// IntrospectClient reports whether a client token is valid and live in
// the realm it is presented in.
func (s *Service) IntrospectClient(tokenString, realmSlug string) (token.ClientClaims, error) {
	return s.tokens.IntrospectClient(tokenString, realmSlug)
}
