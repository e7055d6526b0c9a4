package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crisos/crisos-core/internal/operators"
)

// TokenParser verifies an operator bearer token.
type TokenParser interface {
	Parse(raw string) (*operators.Claims, error)
}

// OperatorJWT requires a valid operator token and stores its claims on the
// request context (see operators.ClaimsFromContext).
func OperatorJWT(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokens == nil {
				writeError(w, http.StatusUnauthorized, "operator auth disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			claims, err := tokens.Parse(strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(operators.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireRole answers 403 unless the authenticated operator has one of roles.
// It must run after OperatorJWT.
func RequireRole(roles ...operators.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := operators.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
