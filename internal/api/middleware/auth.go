// Package middleware contains HTTP middleware for the API server.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ciforge/internal/auth"
	"ciforge/internal/store"
	"ciforge/pkg/api"
)

// userIDKey is the context key for the authenticated user's id.
type userIDKey struct{}

// apiKeyIDKey is the context key for the authenticated API key's id.
type apiKeyIDKey struct{}

// AuthStore is the slice of the store authentication needs.
type AuthStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*store.APIKey, error)
	GetUser(ctx context.Context, id string) (*store.User, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// Auth validates the bearer credential on every request and attaches the
// resolved user id to the context. The plaintext key is hashed and looked
// up by index; it is never logged or stored.
func Auth(s AuthStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r)
			if !ok {
				authError(w, http.StatusUnauthorized, "Missing bearer credential")
				return
			}

			key, err := s.GetAPIKeyByHash(ctx, auth.HashKey(token))
			if err != nil {
				authError(w, http.StatusInternalServerError, "Internal error")
				return
			}
			if key == nil || !key.IsActive {
				authError(w, http.StatusUnauthorized, "Invalid or revoked credential")
				return
			}

			user, err := s.GetUser(ctx, key.UserID)
			if err != nil {
				authError(w, http.StatusInternalServerError, "Internal error")
				return
			}
			if user == nil || !user.IsActive {
				authError(w, http.StatusForbidden, "User is inactive")
				return
			}

			// Best-effort: a failed touch never fails the request.
			_ = s.TouchAPIKey(ctx, key.ID, time.Now().UTC())

			ctx = context.WithValue(ctx, userIDKey{}, user.ID)
			ctx = context.WithValue(ctx, apiKeyIDKey{}, key.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

// WithUserID returns a context carrying an authenticated user id, the
// same way Auth attaches it. Handler tests use this to stand in for the
// middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext extracts the authenticated user's id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey{}).(string)
	return v, ok
}

// APIKeyIDFromContext extracts the authenticated key's id.
func APIKeyIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(apiKeyIDKey{}).(string)
	return v, ok
}

func authError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(status),
	})
}
