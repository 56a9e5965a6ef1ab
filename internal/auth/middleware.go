package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by service-issued bearer tokens.
type Claims struct {
	TenantID  string `json:"tenantId"`
	ActorKind string `json:"actorKind"`
	jwt.RegisteredClaims
}

type tenantContextKey struct{}

func withTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

// TenantFromContext returns the tenant id resolved by Middleware.
func TenantFromContext(ctx context.Context) (string, bool) {
	tenant, ok := ctx.Value(tenantContextKey{}).(string)
	return tenant, ok
}

// Middleware parses the bearer token with the given HMAC secret and stores
// the resolved Actor and tenant id on the request context. Requests without
// a valid token are rejected with 401.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.TenantID == "" || claims.Subject == "" {
				http.Error(w, "token missing tenant or subject", http.StatusUnauthorized)
				return
			}

			kind := claims.ActorKind
			if kind == "" {
				kind = ActorKindHuman
			}

			ctx := WithActor(r.Context(), Actor{ID: claims.Subject, Kind: kind})
			ctx = withTenant(ctx, claims.TenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
