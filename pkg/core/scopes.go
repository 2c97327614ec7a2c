// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"regexp"
	"strings"
)

// scopePattern matches colon-separated alphanumeric segments,
// e.g. "email" or "orders:read".
var scopePattern = regexp.MustCompile(`^[A-Za-z0-9]+(:[A-Za-z0-9]+)*$`)

// ValidScope reports whether s is a well-formed scope label.
func ValidScope(s string) bool {
	return scopePattern.MatchString(s)
}

// ValidateScopes narrows the requested scopes to those the client is
// permitted, preserving request order and dropping duplicates. It returns
// nil when nothing survives, or in strict mode when any requested scope is
// not permitted. A nil result means the request must be refused.
func ValidateScopes(requested, permitted []string, strict bool) []string {
	allowed := make(map[string]struct{}, len(permitted))
	for _, s := range permitted {
		allowed[s] = struct{}{}
	}

	var valid []string
	seen := make(map[string]struct{}, len(requested))
	for _, s := range requested {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if _, ok := allowed[s]; ok {
			valid = append(valid, s)
		} else if strict {
			return nil
		}
	}
	if len(valid) == 0 {
		return nil
	}
	return valid
}

// JoinScopes renders scopes as the space-separated form carried in the
// "scope" claim.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// SplitScopes parses a space-separated scope claim. Empty input yields nil.
func SplitScopes(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
