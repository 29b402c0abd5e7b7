package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/prudhvinik1/episync/internal/models"
	"github.com/prudhvinik1/episync/internal/services"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
	TokenContextKey  contextKey = "token"
)

// Authenticator resolves a bearer token to the worker behind it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*services.TokenClaims, error)
}

// ClaimsFromContext returns the authenticated worker, or nil.
func ClaimsFromContext(ctx context.Context) *services.TokenClaims {
	if claims, ok := ctx.Value(ClaimsContextKey).(*services.TokenClaims); ok {
		return claims
	}
	return nil
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(TokenContextKey).(string)
	return token
}

// WithClaims stores claims in ctx. Handlers read them back with
// ClaimsFromContext.
func WithClaims(ctx context.Context, claims *services.TokenClaims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" token.
func RequireAuth(auth Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "Authorization token is required.")
				return
			}

			claims, err := auth.Authenticate(r.Context(), token)
			if errors.Is(err, services.ErrInvalidToken) {
				writeUnauthorized(w, "Invalid or expired token.")
				return
			}
			if err != nil {
				logger.Error("failed to authenticate request", "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				json.NewEncoder(w).Encode(map[string]string{"error": "session_store_unavailable"})
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = context.WithValue(ctx, TokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...models.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil || !slices.Contains(roles, claims.Role) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
