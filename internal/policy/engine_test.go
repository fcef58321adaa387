package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caretrail/internal/principal"
	dErrors "caretrail/pkg/domain-errors"
)

type failingSource struct{}

func (failingSource) Permissions(context.Context, uuid.UUID) ([]string, error) {
	return nil, errors.New("permission store unavailable")
}

// countingSource counts lookups so tests can assert on the single round trip.
type countingSource struct {
	inner principal.PermissionSource
	calls int
}

func (c *countingSource) Permissions(ctx context.Context, actorID uuid.UUID) ([]string, error) {
	c.calls++
	return c.inner.Permissions(ctx, actorID)
}

type EngineSuite struct {
	suite.Suite
	engine *Engine
	source *principal.InMemorySource
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.engine = NewEngine()
	s.source = principal.NewInMemorySource()
}

func (s *EngineSuite) ctx(role principal.Role) (*principal.Context, uuid.UUID) {
	id := uuid.New()
	return principal.NewContext(principal.Principal{ID: id, Role: role, Active: true}, s.source), id
}

func (s *EngineSuite) TestUnauthenticated() {
	anon := principal.NewContext(principal.Anonymous, s.source)
	decision, err := s.engine.Authorize(context.Background(), anon, MinimumRole(principal.RolePatient))
	s.False(decision.Allowed)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *EngineSuite) TestMinimumRoleLadder() {
	req := MinimumRole(principal.RoleStaff)

	for _, role := range []principal.Role{principal.RoleStaff, principal.RoleAdmin, principal.RoleSuperAdmin} {
		pc, _ := s.ctx(role)
		decision, err := s.engine.Authorize(context.Background(), pc, req)
		s.NoError(err, "role %s", role)
		s.True(decision.Allowed)
	}
	for _, role := range []principal.Role{principal.RolePatient, principal.RolePartner} {
		pc, _ := s.ctx(role)
		decision, err := s.engine.Authorize(context.Background(), pc, req)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "role %s", role)
		s.False(decision.Allowed)
	}
}

func (s *EngineSuite) TestOneOfRoles() {
	req := OneOfRoles(principal.RolePartner, principal.RoleStaff)

	pc, _ := s.ctx(principal.RolePartner)
	decision, err := s.engine.Authorize(context.Background(), pc, req)
	s.NoError(err)
	s.True(decision.Allowed)

	// Exact set: admin is not in it even though it outranks staff.
	pc, _ = s.ctx(principal.RoleAdmin)
	_, err = s.engine.Authorize(context.Background(), pc, req)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	// The top of the ladder is never locked out.
	pc, _ = s.ctx(principal.RoleSuperAdmin)
	decision, err = s.engine.Authorize(context.Background(), pc, req)
	s.NoError(err)
	s.True(decision.Allowed)
}

func (s *EngineSuite) TestOneOfPermissions() {
	req := OneOfPermissions("patients:read", "patients:write")

	s.Run("staff with one matching permission is allowed", func() {
		pc, id := s.ctx(principal.RoleStaff)
		s.source.Grant(id, "patients:read", "schedule:read")
		decision, err := s.engine.Authorize(context.Background(), pc, req)
		s.NoError(err)
		s.True(decision.Allowed)
	})

	s.Run("staff with disjoint permissions is denied", func() {
		pc, id := s.ctx(principal.RoleStaff)
		s.source.Grant(id, "schedule:read")
		_, err := s.engine.Authorize(context.Background(), pc, req)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin tier bypasses the permission check", func() {
		for _, role := range []principal.Role{principal.RoleAdmin, principal.RoleSuperAdmin} {
			counting := &countingSource{inner: s.source}
			pc := principal.NewContext(principal.Principal{ID: uuid.New(), Role: role, Active: true}, counting)
			decision, err := s.engine.Authorize(context.Background(), pc, req)
			s.NoError(err)
			s.True(decision.Allowed)
			s.Zero(counting.calls, "no lookup for %s", role)
		}
	})

	s.Run("patient never triggers a permission lookup", func() {
		counting := &countingSource{inner: s.source}
		pc := principal.NewContext(principal.Principal{ID: uuid.New(), Role: principal.RolePatient, Active: true}, counting)
		_, err := s.engine.Authorize(context.Background(), pc, req)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Zero(counting.calls)
	})

	s.Run("lookup failure surfaces as internal, not forbidden", func() {
		pc := principal.NewContext(principal.Principal{ID: uuid.New(), Role: principal.RoleStaff, Active: true}, failingSource{})
		decision, err := s.engine.Authorize(context.Background(), pc, req)
		s.False(decision.Allowed)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *EngineSuite) TestPermissionLookupHappensOnce() {
	counting := &countingSource{inner: s.source}
	id := uuid.New()
	s.source.Grant(id, "patients:read")
	pc := principal.NewContext(principal.Principal{ID: id, Role: principal.RoleStaff, Active: true}, counting)

	req := AllOf(
		OneOfPermissions("patients:read"),
		OneOfPermissions("patients:read", "patients:write"),
	)
	decision, err := s.engine.Authorize(context.Background(), pc, req)
	s.NoError(err)
	s.True(decision.Allowed)
	s.Equal(1, counting.calls, "permissions are fetched once per request")
}

func (s *EngineSuite) TestOwner() {
	pc, id := s.ctx(principal.RolePatient)

	decision, err := s.engine.Authorize(context.Background(), pc, OwnedBy(id))
	s.NoError(err)
	s.True(decision.Allowed)

	_, err = s.engine.Authorize(context.Background(), pc, OwnedBy(uuid.New()))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.engine.Authorize(context.Background(), pc, OwnedBy(uuid.Nil))
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden), "unknown owner never allows")
}

func (s *EngineSuite) TestNoSelfVeto() {
	req := func(target uuid.UUID) Requirement {
		return AnyOf(
			MinimumRole(principal.RoleAdmin),
			OwnedBy(target).NoSelf(),
		)
	}

	s.Run("admin acting on another account is allowed", func() {
		pc, _ := s.ctx(principal.RoleAdmin)
		decision, err := s.engine.Authorize(context.Background(), pc, req(uuid.New()))
		s.NoError(err)
		s.True(decision.Allowed)
	})

	s.Run("admin acting on own account is vetoed despite role", func() {
		pc, id := s.ctx(principal.RoleAdmin)
		decision, err := s.engine.Authorize(context.Background(), pc, req(id))
		s.False(decision.Allowed)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal("actor may not perform this action on themselves", decision.Reason)
	})

	s.Run("veto binds even for the highest tier", func() {
		pc, id := s.ctx(principal.RoleSuperAdmin)
		decision, err := s.engine.Authorize(context.Background(), pc, req(id))
		s.False(decision.Allowed)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *EngineSuite) TestConjunctionAndDisjunction() {
	s.Run("all_of requires every clause", func() {
		pc, id := s.ctx(principal.RoleStaff)
		s.source.Grant(id, "patients:write")

		decision, err := s.engine.Authorize(context.Background(), pc, AllOf(
			MinimumRole(principal.RoleStaff),
			OneOfPermissions("patients:write"),
		))
		s.NoError(err)
		s.True(decision.Allowed)

		_, err = s.engine.Authorize(context.Background(), pc, AllOf(
			MinimumRole(principal.RoleAdmin),
			OneOfPermissions("patients:write"),
		))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("any_of requires one clause", func() {
		pc, _ := s.ctx(principal.RolePartner)
		decision, err := s.engine.Authorize(context.Background(), pc, AnyOf(
			MinimumRole(principal.RoleAdmin),
			OneOfRoles(principal.RolePartner),
		))
		s.NoError(err)
		s.True(decision.Allowed)
	})

	s.Run("empty conjunction denies", func() {
		pc, _ := s.ctx(principal.RoleSuperAdmin)
		_, err := s.engine.Authorize(context.Background(), pc, AllOf())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *EngineSuite) TestDenyReasonNamesRequirement() {
	pc, _ := s.ctx(principal.RolePatient)
	decision, err := s.engine.Authorize(context.Background(), pc, MinimumRole(principal.RoleStaff))
	s.Require().Error(err)
	s.Contains(decision.Reason, "minimum_role=staff")

	var de *dErrors.Error
	s.Require().ErrorAs(err, &de)
	s.Equal("you do not have permission to perform this action", de.Message,
		"clients see the generic message, not the requirement")
}
