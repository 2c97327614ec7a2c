// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the credential verification flows: client
// credentials, local email/password login, token refresh, logout and
// realm switching. Third-party login composes with this package through
// StartSession and ResolveRoles.
package auth

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/stacklok/tessera/pkg/core"
	"github.com/stacklok/tessera/pkg/crypto"
	"github.com/stacklok/tessera/pkg/errors"
	"github.com/stacklok/tessera/pkg/logger"
	"github.com/stacklok/tessera/pkg/repository"
	"github.com/stacklok/tessera/pkg/store"
	"github.com/stacklok/tessera/pkg/token"
)

// Service drives the authentication flows over the repositories, the
// session store and the token service.
type Service struct {
	repos    repository.Repositories
	sessions store.SessionStore
	tokens   *token.Service
	hasher   *crypto.Hasher
}

// NewService creates the authentication service.
func NewService(repos repository.Repositories, sessions store.SessionStore, tokens *token.Service, hasher *crypto.Hasher) *Service {
	return &Service{
		repos:    repos,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
	}
}

// ResolveRoles returns the user's roles within the realm, derived from
// group membership. Users without any group get the default role set.
func (s *Service) ResolveRoles(ctx context.Context, realmSlug, userID string) ([]core.Role, error) {
	groups, err := s.repos.Users.GetGroups(ctx, realmSlug, userID)
	if err != nil {
		return nil, errors.NewInternalError("loading user groups", err)
	}
	return core.ResolveRoles(groups), nil
}

// StartSession allocates a server-side session for the user and issues
// a token pair bound to it. The session insert precedes issuance, so a
// failed insert never leaks usable tokens.
func (s *Service) StartSession(ctx context.Context, user core.User, realmSlug string, roles []core.Role) (token.Pair, error) {
	session := core.NewSession(user.ID, store.SessionTTL)
	if err := s.sessions.Add(ctx, session.SessionID, session, store.SessionTTL); err != nil {
		return token.Pair{}, errors.NewInternalError("storing session", err)
	}
	payload := user.Payload(s.tokens.Issuer(), realmSlug, roles)
	return s.tokens.IssuePair(payload, session.SessionID)
}

// Refresh issues a fresh token pair for a live session and refresh
// token, re-resolving roles so grants picked up since login take
// effect. Sessions nearing expiry are extended.
func (s *Service) Refresh(ctx context.Context, refreshToken, realmSlug, sessionID string) (token.Pair, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return token.Pair{}, errors.NewUnauthorizedError("Session not found or expired", nil)
		}
		return token.Pair{}, errors.NewInternalError("loading session", err)
	}

	claims, err := s.tokens.IntrospectUser(ctx, refreshToken, realmSlug, sessionID)
	if err != nil {
		return token.Pair{}, err
	}
	if !claims.Active {
		return token.Pair{}, errors.NewUnauthorizedError(claims.Cause, nil)
	}

	roles, err := s.ResolveRoles(ctx, realmSlug, claims.Subject)
	if err != nil {
		return token.Pair{}, err
	}
	claims.Roles = roles

	remaining := session.Remaining(time.Now())
	if remaining < int64(store.SessionRefreshThreshold/time.Second) {
		ttl := time.Duration(remaining)*time.Second + store.SessionRefreshIn
		if _, err := s.sessions.RefreshTTL(ctx, sessionID, ttl); err != nil && !stderrors.Is(err, store.ErrNotFound) {
			return token.Pair{}, errors.NewInternalError("extending session", err)
		}
	}

	// The old refresh token stays valid until its exp; revocation is
	// logout deleting the session.
	return s.tokens.IssuePair(claims.Payload(), sessionID)
}

// Logout deletes the session, revoking every token pair bound to it.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	removed, err := s.sessions.Delete(ctx, sessionID)
	if err != nil {
		return errors.NewInternalError("deleting session", err)
	}
	if !removed {
		return errors.NewUnauthorizedError("Session expired, maybe already logout", nil)
	}
	return nil
}

// SwitchRealm moves an authenticated user into another realm without
// re-authentication: the refresh token is introspected against the
// current realm and a new pair is issued for the target realm with the
// target realm's roles. The session is reused.
func (s *Service) SwitchRealm(ctx context.Context, currentRealm, targetRealm, refreshToken, sessionID string) (token.Pair, error) {
	if currentRealm == targetRealm {
		return token.Pair{}, errors.NewBadRequestError("Realms must be different!", nil)
	}

	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return token.Pair{}, errors.NewUnauthorizedError("Invalid session or session expired", nil)
		}
		return token.Pair{}, errors.NewInternalError("loading session", err)
	}

	claims, err := s.tokens.IntrospectUser(ctx, refreshToken, currentRealm, sessionID)
	if err != nil {
		return token.Pair{}, err
	}
	if !claims.Active {
		return token.Pair{}, errors.NewUnauthorizedError(claims.Cause, nil)
	}

	if !s.canSwitchRealm(ctx, targetRealm) {
		return token.Pair{}, errors.NewPermissionDeniedError("Realm switching not allowed", nil)
	}

	user, err := s.repos.Users.Get(ctx, claims.Subject)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			// A hard-deleted account behaves like status deleted.
			return token.Pair{}, errors.NewPermissionDeniedError("User is banned", nil)
		}
		return token.Pair{}, errors.NewInternalError("loading user", err)
	}
	if user.Status.Blocked() {
		return token.Pair{}, errors.NewPermissionDeniedError("User is banned", nil)
	}

	roles, err := s.ResolveRoles(ctx, targetRealm, user.ID)
	if err != nil {
		return token.Pair{}, err
	}
	payload := user.Payload(s.tokens.Issuer(), targetRealm, roles)
	return s.tokens.IssuePair(payload, sessionID)
}

func (s *Service) canSwitchRealm(ctx context.Context, targetRealm string) bool {
	realm, err := s.repos.Realms.GetBySlug(ctx, targetRealm)
	if err != nil {
		logger.Warnw("realm does not exist", "realm", targetRealm)
		return false
	}
	if !realm.Enabled {
		logger.Warnw("realm is not enabled for switching", "realm", targetRealm)
		return false
	}
	return true
}
