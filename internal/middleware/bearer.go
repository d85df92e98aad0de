package middleware

import (
	"context"
	"net/http"
	"strings"

	"go-auth-core/internal/service"
	"go-auth-core/internal/token"
)

type bearerChecker interface {
	Check(tokenString string) (*token.BearerClaims, error)
}

const bearerClaimsContextKey contextKey = "bearer_claims"

// BearerAuth guards a route with a scoped bearer token. The token must verify,
// must not be revoked, and must grant every listed scope.
func BearerAuth(checker bearerChecker, requiredScopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
				writeUnauthorized(w, "UNAUTHORIZED", "missing or invalid authorization header")
				return
			}

			claims, err := checker.Check(strings.TrimSpace(header[7:]))
			if err != nil {
				writeUnauthorized(w, "UNAUTHORIZED", "Invalid or expired token")
				return
			}

			for _, required := range requiredScopes {
				if !service.GrantsScope(claims, required) {
					writeUnauthorized(w, "FORBIDDEN", "insufficient scope")
					return
				}
			}

			ctx := context.WithValue(r.Context(), bearerClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func BearerClaimsFromContext(ctx context.Context) (*token.BearerClaims, bool) {
	claims, ok := ctx.Value(bearerClaimsContextKey).(*token.BearerClaims)
	return claims, ok
}
