// Copyright (c) 2026 Pixveil. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

// # Operator Roles

// OperatorRole represents the authorization level granted to an operator account.
type OperatorRole string

const (
	// Unrestricted system access
	RoleAdmin OperatorRole = "admin"

	// Can inspect security telemetry and moderate flagged activity
	RoleSecurity OperatorRole = "security"

	// Can manage galleries they own
	RoleHost OperatorRole = "host"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r OperatorRole) AtLeast(target OperatorRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r OperatorRole) level() int {

	// Linear scale (10-30) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 30
	case RoleSecurity:
		return 20
	case RoleHost:
		return 10
	default:
		return 0
	}
}
