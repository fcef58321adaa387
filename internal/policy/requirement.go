// Package policy is the single authorization choke-point: every protected
// operation describes what it demands as a Requirement and asks the Engine
// for a decision before mutating anything.
package policy

import (
	"strings"

	"github.com/google/uuid"

	"caretrail/internal/principal"
)

type kind int

const (
	kindMinimumRole kind = iota + 1
	kindOneOfRoles
	kindOneOfPermissions
	kindOwner
	kindAllOf
	kindAnyOf
)

// Requirement is a closed tagged variant describing what a protected
// operation demands. Values are built with the constructors below and are
// immutable; composing requirements copies, never aliases.
type Requirement struct {
	kind     kind
	minRole  principal.Role
	roles    []principal.Role
	perms    []string
	ownerID  uuid.UUID
	denySelf bool
	children []Requirement
}

// MinimumRole demands a role ranking at or above min.
func MinimumRole(min principal.Role) Requirement {
	return Requirement{kind: kindMinimumRole, minRole: min}
}

// OneOfRoles demands exact membership in the given role set.
func OneOfRoles(roles ...principal.Role) Requirement {
	return Requirement{kind: kindOneOfRoles, roles: append([]principal.Role(nil), roles...)}
}

// OneOfPermissions demands at least one of the given staff permissions.
// Admin tier roles bypass this check entirely.
func OneOfPermissions(perms ...string) Requirement {
	return Requirement{kind: kindOneOfPermissions, perms: append([]string(nil), perms...)}
}

// OwnedBy allows the actor that owns the target resource.
func OwnedBy(ownerID uuid.UUID) Requirement {
	return Requirement{kind: kindOwner, ownerID: ownerID}
}

// NoSelf marks the requirement so the operation is refused when the actor is
// the target, regardless of role. Used for actions like account deactivation
// where acting on yourself is never allowed.
func (r Requirement) NoSelf() Requirement {
	r.denySelf = true
	return r
}

// AllOf demands that every child requirement allows.
func AllOf(reqs ...Requirement) Requirement {
	return Requirement{kind: kindAllOf, children: append([]Requirement(nil), reqs...)}
}

// AnyOf demands that at least one child requirement allows.
func AnyOf(reqs ...Requirement) Requirement {
	return Requirement{kind: kindAnyOf, children: append([]Requirement(nil), reqs...)}
}

// String renders the requirement for diagnostics and deny reasons. It names
// the shape of the demand, never the actor's standing against it.
func (r Requirement) String() string {
	switch r.kind {
	case kindMinimumRole:
		return "minimum_role=" + string(r.minRole)
	case kindOneOfRoles:
		names := make([]string, len(r.roles))
		for i, role := range r.roles {
			names[i] = string(role)
		}
		return "one_of_roles=" + strings.Join(names, ",")
	case kindOneOfPermissions:
		return "one_of_permissions=" + strings.Join(r.perms, ",")
	case kindOwner:
		if r.denySelf {
			return "owner(no_self)"
		}
		return "owner"
	case kindAllOf:
		return "all_of(" + joinChildren(r.children) + ")"
	case kindAnyOf:
		return "any_of(" + joinChildren(r.children) + ")"
	default:
		return "none"
	}
}

func joinChildren(children []Requirement) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return strings.Join(parts, "; ")
}
