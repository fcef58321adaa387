package policy

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"caretrail/internal/principal"
	dErrors "caretrail/pkg/domain-errors"
)

var tracer = otel.Tracer("caretrail/internal/policy")

// Decision is the outcome of one authorization check. Reason carries the
// unmet requirement for logs and audit; clients only ever see the generic
// error message.
type Decision struct {
	Allowed bool
	Reason  string
}

// effect is the tri-state result of evaluating one requirement clause.
// A veto (explicit no-self refusal) overrides any sibling allow.
type effect int

const (
	effectNeutral effect = iota
	effectAllow
	effectVeto
)

// Engine evaluates requirements against a request's principal context. It is
// stateless; all per-request state lives on the principal.Context.
type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

// Authorize checks the requirement against the principal context. It returns
// an allow decision and nil error, or a deny decision together with a typed
// error: CodeUnauthorized when no active principal is present, CodeForbidden
// otherwise. Checks short-circuit cheapest first; at most one permission
// lookup round trip happens, cached on pc for the request's lifetime.
func (e *Engine) Authorize(ctx context.Context, pc *principal.Context, req Requirement) (Decision, error) {
	ctx, span := tracer.Start(ctx, "policy.Authorize")
	defer span.End()

	p := pc.Principal()
	span.SetAttributes(
		attribute.String("principal.role", string(p.Role)),
		attribute.String("requirement", req.String()),
	)

	if !p.Authenticated() {
		span.SetAttributes(attribute.Bool("allowed", false))
		return Decision{Allowed: false, Reason: "no active principal"},
			dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}

	eff, err := e.evaluate(ctx, pc, req)
	if err != nil {
		return Decision{Allowed: false, Reason: "permission lookup failed"},
			dErrors.Wrap(err, dErrors.CodeInternal, "failed to evaluate authorization")
	}

	if eff == effectAllow {
		span.SetAttributes(attribute.Bool("allowed", true))
		return Decision{Allowed: true}, nil
	}

	span.SetAttributes(attribute.Bool("allowed", false))
	reason := "unmet requirement: " + req.String()
	if eff == effectVeto {
		reason = "actor may not perform this action on themselves"
	}
	return Decision{Allowed: false, Reason: reason},
		dErrors.New(dErrors.CodeForbidden, "you do not have permission to perform this action")
}

func (e *Engine) evaluate(ctx context.Context, pc *principal.Context, req Requirement) (effect, error) {
	p := pc.Principal()

	switch req.kind {
	case kindOneOfRoles:
		for _, role := range req.roles {
			if p.Role == role {
				return effectAllow, nil
			}
		}
		// The top of the ladder is never locked out by an exact-set check.
		if p.Role == principal.RoleSuperAdmin {
			return effectAllow, nil
		}
		return effectNeutral, nil

	case kindMinimumRole:
		if p.Role.AtLeast(req.minRole) {
			return effectAllow, nil
		}
		return effectNeutral, nil

	case kindOwner:
		if req.ownerID == uuid.Nil {
			return effectNeutral, nil
		}
		if req.ownerID != p.ID {
			return effectNeutral, nil
		}
		if req.denySelf {
			return effectVeto, nil
		}
		return effectAllow, nil

	case kindOneOfPermissions:
		if p.Role.Privileged() {
			return effectAllow, nil
		}
		if p.Role != principal.RoleStaff {
			return effectNeutral, nil
		}
		ok, err := pc.HasAnyPermission(ctx, req.perms)
		if err != nil {
			return effectNeutral, err
		}
		if ok {
			return effectAllow, nil
		}
		return effectNeutral, nil

	case kindAllOf:
		if len(req.children) == 0 {
			return effectNeutral, nil
		}
		for _, child := range req.children {
			eff, err := e.evaluate(ctx, pc, child)
			if err != nil {
				return effectNeutral, err
			}
			if eff == effectVeto {
				return effectVeto, nil
			}
			if eff != effectAllow {
				return effectNeutral, nil
			}
		}
		return effectAllow, nil

	case kindAnyOf:
		// No-self vetoes bind regardless of which sibling would allow, and
		// they cost no I/O, so resolve them before any permission lookup.
		if vetoed(req, p) {
			return effectVeto, nil
		}
		for _, child := range req.children {
			eff, err := e.evaluate(ctx, pc, child)
			if err != nil {
				return effectNeutral, err
			}
			if eff == effectAllow {
				return effectAllow, nil
			}
		}
		return effectNeutral, nil

	default:
		return effectNeutral, nil
	}
}

// vetoed walks the requirement tree for no-self owner clauses matching the
// principal. It never performs I/O.
func vetoed(req Requirement, p principal.Principal) bool {
	switch req.kind {
	case kindOwner:
		return req.denySelf && req.ownerID != uuid.Nil && req.ownerID == p.ID
	case kindAllOf, kindAnyOf:
		for _, child := range req.children {
			if vetoed(child, p) {
				return true
			}
		}
	}
	return false
}
