// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"slices"
	"strings"
)

// DefaultRoles is granted when a user belongs to no group in the realm.
var DefaultRoles = []Role{RoleUser}

// ResolveRoles returns the union of the roles carried by the groups,
// sorted and deduplicated. An empty membership falls back to DefaultRoles.
func ResolveRoles(groups []Group) []Role {
	if len(groups) == 0 {
		return slices.Clone(DefaultRoles)
	}

	var roles []Role
	seen := make(map[Role]struct{})
	for _, g := range groups {
		for _, r := range g.Roles {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			roles = append(roles, r)
		}
	}
	if len(roles) == 0 {
		return slices.Clone(DefaultRoles)
	}
	slices.Sort(roles)
	return roles
}

// JoinRoles renders roles as the space-separated form carried in the
// "roles" claim.
func JoinRoles(roles []Role) string {
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

// SplitRoles parses a space-separated roles claim. Empty input yields nil.
func SplitRoles(s string) []Role {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	roles := make([]Role, len(fields))
	for i, f := range fields {
		roles[i] = Role(f)
	}
	return roles
}
