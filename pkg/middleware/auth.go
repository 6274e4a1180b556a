package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/prekclip/server/pkg/response"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user ID
	UserIDKey ContextKey = "user_id"
)

// TokenValidator resolves a bearer token to a user ID
type TokenValidator interface {
	Validate(token string) (string, error)
}

// RequireAuth rejects requests without a valid bearer token
func RequireAuth(v TokenValidator) func(http.Handler) http.Handler {
	return authenticate(v, true)
}

// OptionalAuth attaches the user ID when a valid bearer token is present
// and lets anonymous requests through. A present but invalid token is still rejected.
func OptionalAuth(v TokenValidator) func(http.Handler) http.Handler {
	return authenticate(v, false)
}

func authenticate(v TokenValidator, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					response.Unauthorized(w, "Authorization header required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			userID, err := v.Validate(parts[1])
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID extracts the user ID from the request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// WithUserID returns a context carrying userID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}
