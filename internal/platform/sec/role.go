// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # Identity Roles

// Role represents the authorization level granted to an identity.
type Role string

const (
	// Unrestricted system access
	RoleAdmin Role = "admin"

	// Can record behavior flags, launch outcomes and trigger recalculations
	RoleOperator Role = "operator"

	// Default role for authenticated token issuers
	RoleIssuer Role = "issuer"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r Role) AtLeast(target Role) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r Role) level() int {

	// Linear scale (10-30) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 30
	case RoleOperator:
		return 20
	case RoleIssuer:
		return 10
	default:
		return 0
	}
}
