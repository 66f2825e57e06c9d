package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meshchat-protocol/meshchat/internal/models"
	"github.com/meshchat-protocol/meshchat/internal/session"
)

type fakeSessionStore struct {
	sessions map[string]*models.SessionRecord
}

func (f *fakeSessionStore) GetSession(_ context.Context, token string) (*models.SessionRecord, error) {
	return f.sessions[token], nil
}

func TestTokenFromRequest(t *testing.T) {
	t.Run("authorization header wins", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/me?token=from-query", nil)
		r.Header.Set("Authorization", "Bearer from-header")
		r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})

		if got := TokenFromRequest(r); got != "from-header" {
			t.Errorf("got %q, want header token", got)
		}
	})

	t.Run("cookie before query", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/me?token=from-query", nil)
		r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})

		if got := TokenFromRequest(r); got != "from-cookie" {
			t.Errorf("got %q, want cookie token", got)
		}
	})

	t.Run("query as last resort", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/ws?token=from-query", nil)

		if got := TokenFromRequest(r); got != "from-query" {
			t.Errorf("got %q, want query token", got)
		}
	})
}

func TestRequireSession(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*models.SessionRecord{
		"good-token": {UserID: "alice", Username: "Alice", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	auth := NewAuthMiddleware(session.NewValidator(store))

	var gotUser string
	handler := auth.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rec := GetSessionFromContext(r.Context()); rec != nil {
			gotUser = rec.UserID
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		gotUser = ""
		r := httptest.NewRequest("GET", "/me", nil)
		r.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusOK || gotUser != "alice" {
			t.Errorf("status=%d user=%q", w.Code, gotUser)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/me", nil)
		r.Header.Set("Authorization", "Bearer bad-token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/me", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})
}

func TestRequireInternalKey(t *testing.T) {
	handler := RequireInternalKey("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name string
		key  string
		want int
	}{
		{"correct key", "secret", http.StatusOK},
		{"wrong key", "guess", http.StatusForbidden},
		{"missing key", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("PUT", "/sessions", nil)
			if tt.key != "" {
				r.Header.Set("X-Internal-Key", tt.key)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireInternalKeyUnconfigured(t *testing.T) {
	// An empty configured key must reject everything, never allow everything.
	handler := RequireInternalKey("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("PUT", "/sessions", nil)
	r.Header.Set("X-Internal-Key", "")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}
