package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meshchat-protocol/meshchat/internal/models"
)

const (
	minSessionTTL = time.Minute
	maxSessionTTL = 30 * 24 * time.Hour
)

// PutSessionRequest represents the session registration body sent by the
// auth service after a login.
type PutSessionRequest struct {
	Token      string `json:"token"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// PutSession registers a session token so chat nodes can validate it.
func (h *Handler) PutSession(w http.ResponseWriter, r *http.Request) {
	var req PutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Token == "" || req.UserID == "" {
		h.Error(w, http.StatusBadRequest, "token and user_id are required")
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl < minSessionTTL || ttl > maxSessionTTL {
		h.Error(w, http.StatusBadRequest, "ttl_seconds out of range")
		return
	}

	rec := &models.SessionRecord{
		UserID:    req.UserID,
		Username:  req.Username,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := h.Redis.PutSession(r.Context(), req.Token, rec, ttl); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store session")
		return
	}

	h.JSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

// DeleteSession revokes a session token (logout or forced invalidation).
// Live WebSocket connections notice on their next frame.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		h.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.Redis.DeleteSession(r.Context(), token); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
