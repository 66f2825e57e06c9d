package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/meshchat-protocol/meshchat/internal/models"
	"github.com/meshchat-protocol/meshchat/internal/session"
)

type contextKey string

const SessionContextKey contextKey = "session"

// AuthMiddleware resolves session tokens for authenticated endpoints.
type AuthMiddleware struct {
	validator *session.Validator
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(validator *session.Validator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// RequireSession validates the caller's session token and stores the session
// record in the request context. Tokens are accepted from the Authorization
// header, the access_token cookie, or the token query parameter, in that
// order, matching what browser and native clients can each send.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := TokenFromRequest(r)
		if token == "" {
			jsonError(w, http.StatusUnauthorized, "missing session token")
			return
		}

		rec, err := m.validator.Validate(r.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrInvalid) {
				jsonError(w, http.StatusUnauthorized, "session expired or invalid")
				return
			}
			jsonError(w, http.StatusServiceUnavailable, "session store unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, rec)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TokenFromRequest extracts the session token from the request.
func TokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if c, err := r.Cookie("access_token"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// GetSessionFromContext retrieves the authenticated session from the request
// context.
func GetSessionFromContext(ctx context.Context) *models.SessionRecord {
	rec, ok := ctx.Value(SessionContextKey).(*models.SessionRecord)
	if !ok {
		return nil
	}
	return rec
}

// RequireInternalKey gates the trusted session-management endpoints that only
// the auth service may call.
func RequireInternalKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("X-Internal-Key")
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				jsonError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
