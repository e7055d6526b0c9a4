package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crisos/crisos-core/internal/operators"
)

func signedOperatorToken(t *testing.T, secret string, role operators.Role) string {
	t.Helper()
	token, _, err := operators.NewTokenIssuer(secret, time.Hour).Issue(operators.Operator{ID: 4, Username: "alice", Role: role})
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestOperatorJWTMissingParser(t *testing.T) {
	mw := OperatorJWT(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestOperatorJWTMissingHeader(t *testing.T) {
	mw := OperatorJWT(operators.NewTokenIssuer("secret", time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestOperatorJWTWrongSecret(t *testing.T) {
	mw := OperatorJWT(operators.NewTokenIssuer("secret", time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/api/admin/me", nil)
	req.Header.Set("Authorization", "Bearer "+signedOperatorToken(t, "wrong", operators.RoleAdmin))
	rec := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestOperatorJWTValidTokenAndRoles(t *testing.T) {
	issuer := operators.NewTokenIssuer("secret", time.Hour)
	chain := func(h http.Handler) http.Handler {
		return OperatorJWT(issuer)(RequireRole(operators.RoleAdmin)(h))
	}

	called := false
	handler := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := operators.ClaimsFromContext(r.Context())
		if !ok || claims.Username != "alice" {
			t.Fatalf("expected operator claims in context")
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer "+signedOperatorToken(t, "secret", operators.RoleOperator))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden || called {
		t.Fatalf("expected operator role to be forbidden, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
	req.Header.Set("Authorization", "Bearer "+signedOperatorToken(t, "secret", operators.RoleAdmin))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("expected admin to pass, got %d", rec.Code)
	}
}

func TestRequireRoleWithoutClaims(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireRole(operators.RoleOperator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}
