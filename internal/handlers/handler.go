package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/meshchat-protocol/meshchat/internal/config"
	"github.com/meshchat-protocol/meshchat/internal/hub"
	"github.com/meshchat-protocol/meshchat/internal/objstore"
	"github.com/meshchat-protocol/meshchat/internal/quota"
	"github.com/meshchat-protocol/meshchat/internal/router"
	"github.com/meshchat-protocol/meshchat/internal/session"
	"github.com/meshchat-protocol/meshchat/internal/store"
)

// Handler contains shared dependencies for all HTTP and WebSocket handlers.
type Handler struct {
	Cfg       *config.Config
	Store     store.DataStore
	Redis     *store.RedisStore
	Validator *session.Validator
	Gate      *quota.Gate
	Router    *router.Router
	Registry  *hub.Registry
	Presigner objstore.Presigner // nil when no bucket is configured
	Logger    zerolog.Logger
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
