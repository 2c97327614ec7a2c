// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package token issues and introspects the service's JWTs. Tokens are
// HS256-signed with a static shared secret; realm binding and expiry are
// checked at introspection time, not at decode time, so an expired token
// can still be reported as inactive instead of failing to parse.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stacklok/tessera/pkg/errors"
)

// signingMethod is the only accepted JWS algorithm. Decode rejects
// tokens signed with anything else, including "none".
var signingMethod = jwt.SigningMethodHS256

// Signer signs and verifies tokens with a static HS256 secret.
type Signer struct {
	secret []byte
	issuer string
}

// NewSigner creates a Signer over the shared secret. The issuer is
// stamped into every payload built through Issuer().
func NewSigner(secret []byte, issuer string) *Signer {
	return &Signer{secret: secret, issuer: issuer}
}

// Issuer returns the iss claim value this signer stamps into payloads.
func (s *Signer) Issuer() string {
	return s.issuer
}

// Sign produces a signed token over payload with the timing claims
// injected: iat (now), exp (now + expiresIn), a fresh jti and the
// token_type. The returned expiry is exp in unix seconds.
func (s *Signer) Sign(payload map[string]any, tokenType Type, expiresIn time.Duration) (string, int64, error) {
	now := time.Now()
	expiresAt := now.Add(expiresIn).Unix()

	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	claims["iat"] = now.Unix()
	claims["exp"] = expiresAt
	claims["jti"] = uuid.NewString()
	claims["token_type"] = string(tokenType)

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", 0, fmt.Errorf("signing %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

// Decode verifies the token signature and returns its claims. Expiry is
// deliberately not validated here; introspection reports expired tokens
// as inactive rather than failing the decode.
func (s *Signer) Decode(tokenString string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(tokenString,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, errors.NewInvalidTokenError("Invalid token", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.NewInvalidTokenError("Invalid token", nil)
	}
	return claims, nil
}
