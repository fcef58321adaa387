package principal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// PermissionSource resolves the granular permission set for a staff actor.
// Implementations may layer caches; the Context below guarantees at most one
// round trip per request regardless.
type PermissionSource interface {
	Permissions(ctx context.Context, actorID uuid.UUID) ([]string, error)
}

// Context carries one request's principal together with its lazily fetched
// permission set. The principal itself is immutable; the permission set is
// fetched once on first use and cached for the request's lifetime.
type Context struct {
	principal Principal
	source    PermissionSource

	once  sync.Once
	perms map[string]struct{}
	err   error
}

// NewContext builds a request context for the given principal. source may be
// nil for roles whose permission set is never consulted.
func NewContext(p Principal, source PermissionSource) *Context {
	return &Context{principal: p, source: source}
}

// Principal returns the immutable principal value.
func (c *Context) Principal() Principal {
	if c == nil {
		return Anonymous
	}
	return c.principal
}

// Permissions returns the actor's permission set, fetching it on first call.
// Only staff principals have a meaningful permission set; for everyone else
// the result is empty without touching the source.
func (c *Context) Permissions(ctx context.Context) (map[string]struct{}, error) {
	if c == nil {
		return nil, nil
	}
	c.once.Do(func() {
		if c.principal.Role != RoleStaff || c.source == nil {
			c.perms = map[string]struct{}{}
			return
		}
		perms, err := c.source.Permissions(ctx, c.principal.ID)
		if err != nil {
			c.err = err
			return
		}
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		c.perms = set
	})
	return c.perms, c.err
}

// HasAnyPermission reports whether the actor holds at least one of the given
// permissions. Empty input never matches.
func (c *Context) HasAnyPermission(ctx context.Context, required []string) (bool, error) {
	if len(required) == 0 {
		return false, nil
	}
	perms, err := c.Permissions(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range required {
		if _, ok := perms[p]; ok {
			return true, nil
		}
	}
	return false, nil
}

type contextKeyPrincipal struct{}

// Into attaches the request principal context to ctx.
func Into(ctx context.Context, pc *Context) context.Context {
	return context.WithValue(ctx, contextKeyPrincipal{}, pc)
}

// From retrieves the request principal context, or nil when the request was
// not authenticated.
func From(ctx context.Context) *Context {
	pc, _ := ctx.Value(contextKeyPrincipal{}).(*Context)
	return pc
}
