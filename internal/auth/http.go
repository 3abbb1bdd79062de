// ABOUTME: HTTP middleware for bearer-token authentication on API endpoints
// ABOUTME: Resolves the token to a user and adds the caller to the request context

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/2389/roster/internal/store"
)

// Authenticator resolves bearer tokens to users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*store.User, error)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// HTTPAuthMiddleware rejects requests without a valid, unexpired token for an
// active user and stores the caller in the request context.
func HTTPAuthMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				writeError(w, http.StatusUnauthorized, errMsg)
				return
			}

			user, err := authn.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, ErrExpiredToken):
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			case errors.Is(err, ErrInactiveUser):
				writeError(w, http.StatusUnauthorized, "inactive user")
				return
			case errors.Is(err, store.ErrStorageCorrupt):
				writeError(w, http.StatusInternalServerError, "storage corrupt")
				return
			case errors.Is(err, store.ErrStorageUnavailable):
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			default:
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			authCtx := &AuthContext{
				UserID:   user.ID,
				Username: user.Username,
				Role:     user.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}

// RequireAdminHTTP creates an HTTP middleware that requires the admin role.
// Must be used after HTTPAuthMiddleware.
func RequireAdminHTTP() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := FromContext(r.Context())
			if authCtx == nil {
				writeError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			if !authCtx.IsAdmin() {
				writeError(w, http.StatusForbidden, "admin role required")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
