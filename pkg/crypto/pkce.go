// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto provides the credential hashing and PKCE primitives used by
// the authentication flows.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/stacklok/tessera/pkg/core"
)

// ChallengeMethodS256 is the PKCE challenge method using SHA-256 (RFC 7636).
const ChallengeMethodS256 = "S256"

// verifierLength is the number of random bytes behind a code_verifier.
// 64 bytes encode to 86 base64url characters, within the RFC 7636 bounds.
const verifierLength = 64

// NewCodes generates the PKCE material for a third-party login attempt:
// a random state (the storage key for the attempt), a code_verifier per
// RFC 7636 Section 4.1 and its S256 code_challenge.
//
// The challenge computation delegates to oauth2.S256ChallengeFromVerifier()
// from golang.org/x/oauth2.
func NewCodes() (core.Codes, error) {
	buf := make([]byte, verifierLength)
	if _, err := rand.Read(buf); err != nil {
		return core.Codes{}, fmt.Errorf("generating code verifier: %w", err)
	}

	verifier := base64.RawURLEncoding.EncodeToString(buf)
	return core.Codes{
		State:         uuid.NewString(),
		CodeVerifier:  verifier,
		CodeChallenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}

// ComputeChallenge computes the code_challenge from a code_verifier using
// the S256 method per RFC 7636 Section 4.2.
// code_challenge = BASE64URL(SHA256(code_verifier))
func ComputeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}
