package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meshchat-protocol/meshchat/internal/api/middleware"
	"github.com/meshchat-protocol/meshchat/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ConversationListResponse represents the chat-list response.
type ConversationListResponse struct {
	Conversations []models.Conversation `json:"conversations"`
}

// HistoryResponse represents a page of conversation history in canonical
// order, oldest first.
type HistoryResponse struct {
	Messages []models.Envelope `json:"messages"`
}

// ListConversations returns the caller's chat list with previews.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	rec := middleware.GetSessionFromContext(r.Context())
	if rec == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convs, err := h.Store.UserConversations(r.Context(), rec.UserID, maxHistoryLimit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch conversations")
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}

	h.JSON(w, http.StatusOK, ConversationListResponse{Conversations: convs})
}

// ConversationHistory returns a page of messages for one conversation. The
// caller must be a participant. Pagination walks backwards with the before
// parameter (exclusive, microsecond timestamp).
func (h *Handler) ConversationHistory(w http.ResponseWriter, r *http.Request) {
	rec := middleware.GetSessionFromContext(r.Context())
	if rec == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	convID := chi.URLParam(r, "id")
	if !models.HasParticipant(convID, rec.UserID) {
		// Not found rather than forbidden: no probing for conversation IDs.
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if n > maxHistoryLimit {
			n = maxHistoryLimit
		}
		limit = n
	}

	var before int64
	if v := r.URL.Query().Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			h.Error(w, http.StatusBadRequest, "invalid before cursor")
			return
		}
		before = n
	}

	msgs, err := h.Store.ConversationMessages(r.Context(), convID, limit, before)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if msgs == nil {
		msgs = []models.Envelope{}
	}

	h.JSON(w, http.StatusOK, HistoryResponse{Messages: msgs})
}
