package identity

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caretrail/internal/principal"
)

const (
	testKey    = "unit-test-signing-key"
	testIssuer = "caretrail-test"
)

func newExtractor() *Extractor {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewExtractor(testKey, testIssuer, principal.NewInMemorySource(), logger)
}

func signToken(t *testing.T, claims Claims, key string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(key))
	require.NoError(t, err)
	return signed
}

func validClaims(subject string, role string) Claims {
	return Claims{
		Role:   role,
		Active: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestPrincipalFromToken(t *testing.T) {
	e := newExtractor()
	actorID := uuid.New()

	t.Run("valid token yields principal", func(t *testing.T) {
		token := signToken(t, validClaims(actorID.String(), "staff"), testKey)
		p, err := e.PrincipalFromToken(token)
		require.NoError(t, err)
		assert.Equal(t, actorID, p.ID)
		assert.Equal(t, principal.RoleStaff, p.Role)
		assert.True(t, p.Active)
	})

	t.Run("wrong signing key is rejected", func(t *testing.T) {
		token := signToken(t, validClaims(actorID.String(), "staff"), "other-key")
		_, err := e.PrincipalFromToken(token)
		assert.Error(t, err)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		claims := validClaims(actorID.String(), "staff")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		_, err := e.PrincipalFromToken(signToken(t, claims, testKey))
		assert.Error(t, err)
	})

	t.Run("wrong issuer is rejected", func(t *testing.T) {
		claims := validClaims(actorID.String(), "staff")
		claims.Issuer = "someone-else"
		_, err := e.PrincipalFromToken(signToken(t, claims, testKey))
		assert.Error(t, err)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		_, err := e.PrincipalFromToken(signToken(t, validClaims(actorID.String(), "owner"), testKey))
		assert.Error(t, err)
	})

	t.Run("non-uuid subject is rejected", func(t *testing.T) {
		_, err := e.PrincipalFromToken(signToken(t, validClaims("bob", "staff"), testKey))
		assert.Error(t, err)
	})

	t.Run("inactive principal parses but is not authenticated", func(t *testing.T) {
		claims := validClaims(actorID.String(), "staff")
		claims.Active = false
		p, err := e.PrincipalFromToken(signToken(t, claims, testKey))
		require.NoError(t, err)
		assert.False(t, p.Authenticated())
	})
}

func TestRequireAuth(t *testing.T) {
	e := newExtractor()
	actorID := uuid.New()

	var captured *principal.Context
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = principal.From(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	protected := e.RequireAuth(next)

	t.Run("missing header is unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t,
			`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`,
			w.Body.String())
	})

	t.Run("garbage token is unauthorized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid token attaches the principal context", func(t *testing.T) {
		captured = nil
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims(actorID.String(), "admin"), testKey))
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		require.NotNil(t, captured)
		assert.Equal(t, actorID, captured.Principal().ID)
		assert.Equal(t, principal.RoleAdmin, captured.Principal().Role)
	})
}
