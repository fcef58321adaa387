// Package identity is the upstream identity extractor: it turns an
// already-issued bearer token into the trusted, immutable principal context
// the rest of the request runs against. Credential issuance lives elsewhere;
// this package only verifies and extracts.
package identity

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"caretrail/internal/principal"
)

// Claims are the token claims this platform issues for its actors.
type Claims struct {
	Role   string `json:"role"`
	Active bool   `json:"active"`
	jwt.RegisteredClaims
}

// Extractor validates bearer tokens and builds the per-request principal
// context, wiring in the permission source for lazy staff lookups.
type Extractor struct {
	signingKey []byte
	issuer     string
	source     principal.PermissionSource
	logger     *slog.Logger
}

func NewExtractor(signingKey, issuer string, source principal.PermissionSource, logger *slog.Logger) *Extractor {
	return &Extractor{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		source:     source,
		logger:     logger,
	}
}

// PrincipalFromToken validates the token and builds the principal. The
// returned principal may still be inactive; the policy engine denies those.
func (e *Extractor) PrincipalFromToken(tokenString string) (principal.Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return e.signingKey, nil
	}, jwt.WithIssuer(e.issuer))
	if err != nil || !parsed.Valid {
		return principal.Anonymous, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return principal.Anonymous, fmt.Errorf("unexpected claims type")
	}

	actorID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return principal.Anonymous, fmt.Errorf("invalid subject: %w", err)
	}

	role := principal.Role(claims.Role)
	if !role.Valid() {
		return principal.Anonymous, fmt.Errorf("unknown role %q", claims.Role)
	}

	return principal.Principal{ID: actorID, Role: role, Active: claims.Active}, nil
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// principal context for everything downstream.
func (e *Extractor) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		const bearerPrefix = "Bearer "
		token, ok := strings.CutPrefix(authHeader, bearerPrefix)
		if !ok {
			e.logger.WarnContext(r.Context(), "unauthorized access - missing token",
				"request_id", middleware.GetReqID(r.Context()),
			)
			writeUnauthorized(w, "Missing or invalid Authorization header")
			return
		}

		p, err := e.PrincipalFromToken(token)
		if err != nil {
			e.logger.WarnContext(r.Context(), "unauthorized access - invalid token",
				"error", err,
				"request_id", middleware.GetReqID(r.Context()),
			)
			writeUnauthorized(w, "Invalid or expired token")
			return
		}

		pc := principal.NewContext(p, e.source)
		next.ServeHTTP(w, r.WithContext(principal.Into(r.Context(), pc)))
	})
}

func writeUnauthorized(w http.ResponseWriter, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, `{"error":"unauthorized","error_description":"%s"}`, desc)
}
