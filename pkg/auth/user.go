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

// RegisterUser creates a local account with a hashed password. The
// account starts in the registered status until activation.
func (s *Service) RegisterUser(ctx context.Context, email, username, password string) (core.User, error) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return core.User{}, errors.NewInternalError("hashing password", err)
	}

	user := core.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Status:       core.UserStatusRegistered,
	}
	created, err := s.repos.Users.Create(ctx, user)
	if err != nil {
		if stderrors.Is(err, repository.ErrAlreadyExists) {
			return core.User{}, errors.NewAlreadyExistsError("User already exists", nil)
		}
		return core.User{}, errors.NewInternalError("creating user", err)
	}
	return created, nil
}

// AuthenticateUser performs a local email/password login within a realm
// and starts a session. Whether the email is unknown or has no local
// password, the caller sees the same invalid-credentials answer.
func (s *Service) AuthenticateUser(ctx context.Context, realmSlug, email, password string) (token.Pair, error) {
	user, err := s.repos.Users.GetByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return token.Pair{}, errors.NewInvalidCredentialsError("Invalid email", nil)
		}
		return token.Pair{}, errors.NewInternalError("loading user", err)
	}
	if user.PasswordHash == "" {
		return token.Pair{}, errors.NewInvalidCredentialsError("Invalid email", nil)
	}
	if user.Status.Blocked() {
		return token.Pair{}, errors.NewNotEnabledError("User is banned", nil)
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return token.Pair{}, errors.NewInternalError("verifying password", err)
	}
	if !ok {
		return token.Pair{}, errors.NewInvalidCredentialsError("Invalid password", nil)
	}

	roles, err := s.ResolveRoles(ctx, realmSlug, user.ID)
	if err != nil {
		return token.Pair{}, err
	}
	return s.StartSession(ctx, user, realmSlug, roles)
}

// IntrospectUser reports whether a user token is valid and live in the
// realm it is presented in, bound to the given session.
func (s *Service) IntrospectUser(ctx context.Context, tokenString, realmSlug, sessionID string) (token.UserClaims, error) {
	return s.tokens.IntrospectUser(ctx, tokenString, realmSlug, sessionID)
}
