// Package principal models the authenticated actor for one request: a closed
// role ladder, an optional staff permission set, and the immutable per-request
// context the authorization engine evaluates against.
package principal

import (
	"github.com/google/uuid"
)

// Role is one of a closed, ranked set. The ladder is a strict total order;
// comparisons go through Rank, never string comparison.
type Role string

const (
	RolePatient    Role = "patient"
	RolePartner    Role = "partner"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

var roleRanks = map[Role]int{
	RolePatient:    1,
	RolePartner:    2,
	RoleStaff:      3,
	RoleAdmin:      4,
	RoleSuperAdmin: 5,
}

// Rank returns the role's position in the ladder. Unknown roles rank 0,
// below every valid role.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() >= min.Rank() && r.Valid()
}

// Privileged reports whether the role bypasses permission checks entirely.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Principal is the authenticated actor making a request. It is built once per
// request from an already-verified credential and never mutated afterwards.
type Principal struct {
	ID     uuid.UUID
	Role   Role
	Active bool
}

// Anonymous is the zero principal used when no credential was presented.
var Anonymous = Principal{}

// Authenticated reports whether p represents a real, active actor.
func (p Principal) Authenticated() bool {
	return p.ID != uuid.Nil && p.Role.Valid() && p.Active
}
