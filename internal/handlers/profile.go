package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/meshchat-protocol/meshchat/internal/api/middleware"
	"github.com/meshchat-protocol/meshchat/internal/models"
)

// UpdateProfileRequest represents the profile update request body.
type UpdateProfileRequest struct {
	Username string `json:"username"`
}

// ProfileResponse represents a profile in API responses.
type ProfileResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Tier     string `json:"tier"`
}

// GetProfile returns the caller's profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	rec := middleware.GetSessionFromContext(r.Context())
	if rec == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	profile, err := h.Store.GetProfile(r.Context(), rec.UserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if profile == nil {
		// Session exists but no profile row yet: report session identity.
		profile = &models.Profile{ID: rec.UserID, Username: rec.Username}
	}

	h.JSON(w, http.StatusOK, ProfileResponse{
		ID:       profile.ID,
		Username: profile.Username,
		Tier:     profile.Tier(),
	})
}

// UpdateProfile changes the caller's display name. Tier changes come from the
// billing service through the profile store, never from this endpoint.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	rec := middleware.GetSessionFromContext(r.Context())
	if rec == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	username := sanitizeName(req.Username)
	if username == "" {
		h.Error(w, http.StatusBadRequest, "username is required")
		return
	}

	existing, err := h.Store.GetProfile(r.Context(), rec.UserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	profile := &models.Profile{ID: rec.UserID, Username: username}
	if existing != nil {
		profile.Premium = existing.Premium
		profile.CreatedAt = existing.CreatedAt
	}

	updated, err := h.Store.UpsertProfile(r.Context(), profile)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	h.JSON(w, http.StatusOK, ProfileResponse{
		ID:       updated.ID,
		Username: updated.Username,
		Tier:     updated.Tier(),
	})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 100 {
		name = name[:100]
	}

	return name
}
