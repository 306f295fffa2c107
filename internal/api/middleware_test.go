package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/teleconsult/internal/identity"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	// Generated when absent.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	// Propagated when the caller supplies one.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestAuthMiddleware(t *testing.T) {
	const secret = "auth-test-secret"
	userID := uuid.New()

	var gotIdentity *identity.Identity
	handler := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity, _ = identity.FromContext(r.Context())
	}))

	do := func(authorization string) *httptest.ResponseRecorder {
		gotIdentity = nil
		req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid token", func(t *testing.T) {
		exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
		token, err := identity.Issue(secret, userID, "patient", *exp)
		require.NoError(t, err)

		rec := do("Bearer " + token)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotIdentity)
		assert.Equal(t, userID, gotIdentity.UserID)
		assert.Equal(t, "patient", gotIdentity.Role)
	})

	t.Run("missing header", func(t *testing.T) {
		rec := do("")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Nil(t, gotIdentity)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		rec := do("Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad token", func(t *testing.T) {
		rec := do("Bearer not.a.jwt")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
		token, err := identity.Issue("other-secret", userID, "patient", *exp)
		require.NoError(t, err)

		rec := do("Bearer " + token)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
