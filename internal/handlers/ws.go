package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshchat-protocol/meshchat/internal/api/middleware"
	"github.com/meshchat-protocol/meshchat/internal/hub"
	"github.com/meshchat-protocol/meshchat/internal/metrics"
	"github.com/meshchat-protocol/meshchat/internal/models"
	"github.com/meshchat-protocol/meshchat/internal/router"
	"github.com/meshchat-protocol/meshchat/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Cross-origin browser clients are expected; session tokens gate access.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frameTimeout bounds the downstream work for one inbound frame.
const frameTimeout = 10 * time.Second

// ServeWS upgrades the connection and runs the chat session until the client
// disconnects or the node shuts down.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := middleware.TokenFromRequest(r)
	if token == "" {
		metrics.ConnectionsRejected.WithLabelValues("no_token").Inc()
		h.Error(w, http.StatusUnauthorized, "missing session token")
		return
	}

	rec, err := h.Validator.Validate(r.Context(), token)
	if err != nil {
		if errors.Is(err, session.ErrInvalid) {
			metrics.ConnectionsRejected.WithLabelValues("bad_token").Inc()
			h.Error(w, http.StatusUnauthorized, "session expired or invalid")
			return
		}
		metrics.ConnectionsRejected.WithLabelValues("store_error").Inc()
		h.Error(w, http.StatusServiceUnavailable, "session store unavailable")
		return
	}

	profile := h.loadProfile(r.Context(), rec)

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.Logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := hub.NewConn(rec.UserID, ws)
	if err := h.Registry.Register(conn); err != nil {
		metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		h.Logger.Warn().Str("user", rec.UserID).Msg("connection rejected, registry full")
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server at capacity"),
			time.Now().Add(time.Second))
		ws.Close()
		return
	}

	h.Logger.Info().
		Str("user", rec.UserID).
		Str("conn", conn.ID().String()).
		Str("tier", profile.Tier()).
		Msg("websocket connected")

	// Start bus subscriptions for the user's known conversations.
	h.Router.BindConn(r.Context(), conn.ID(), rec.UserID)

	sess := &wsSession{h: h, conn: conn, token: token, rec: rec, profile: profile, lastCheck: time.Now()}

	go conn.WritePump()
	conn.ReadPump(sess.handleFrame)

	h.Registry.Unregister(rec.UserID, conn.ID())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	h.Router.ReleaseConn(ctx, conn.ID())
	cancel()

	h.Logger.Info().
		Str("user", rec.UserID).
		Str("conn", conn.ID().String()).
		Msg("websocket disconnected")
}

// loadProfile resolves the sender's tier. A missing or unreadable profile
// degrades to the free tier rather than refusing the connection.
func (h *Handler) loadProfile(ctx context.Context, rec *models.SessionRecord) *models.Profile {
	if h.Store != nil {
		if p, err := h.Store.GetProfile(ctx, rec.UserID); err != nil {
			h.Logger.Warn().Err(err).Str("user", rec.UserID).Msg("profile load failed, assuming free tier")
		} else if p != nil {
			return p
		}
	}
	return &models.Profile{ID: rec.UserID, Username: rec.Username}
}

// sessionRecheck is how often a live connection re-validates its token
// against the session store, so revocations take effect without waiting for
// the natural expiry.
const sessionRecheck = 30 * time.Second

// wsSession is the per-connection state for frame dispatch. Fields are only
// touched from the read pump goroutine.
type wsSession struct {
	h         *Handler
	conn      *hub.Conn
	token     string
	rec       *models.SessionRecord
	profile   *models.Profile
	lastCheck time.Time
}

// handleFrame processes one inbound frame. Rejections are reported as error
// frames on the same socket; the connection stays open except on session
// expiry.
func (s *wsSession) handleFrame(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()

	if !s.sessionAlive(ctx) {
		s.sendError(codeSessionExpired, "session expired, reconnect with a fresh token")
		s.conn.Close()
		return
	}

	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.sendError(codeBadRequest, "malformed frame")
		return
	}
	if err := frame.validate(s.rec.UserID); err != nil {
		s.sendError(codeBadRequest, err.Error())
		return
	}

	switch frame.Type {
	case frameChat:
		s.handleChat(ctx, &frame)
	case frameFileRequest:
		s.handleFileRequest(ctx, &frame)
	case frameFileUploaded:
		s.handleFileUploaded(ctx, &frame)
	}
}

// sessionAlive checks expiry locally every frame and against the store every
// sessionRecheck. A store outage keeps the session alive; revocation is
// enforced on a best-effort basis.
func (s *wsSession) sessionAlive(ctx context.Context) bool {
	if !s.rec.ExpiresAt.IsZero() && time.Now().After(s.rec.ExpiresAt) {
		return false
	}
	if time.Since(s.lastCheck) < sessionRecheck {
		return true
	}
	s.lastCheck = time.Now()

	rec, err := s.h.Validator.Validate(ctx, s.token)
	if err != nil {
		if errors.Is(err, session.ErrInvalid) {
			return false
		}
		s.h.Logger.Warn().Err(err).Str("user", s.rec.UserID).Msg("session recheck failed, keeping connection")
		return true
	}
	s.rec = rec
	return true
}

func (s *wsSession) handleChat(ctx context.Context, frame *inboundFrame) {
	if err := s.h.Gate.Admit(ctx, s.profile, models.KindText, 0); err != nil {
		s.sendError(codeQuotaDenied, err.Error())
		return
	}
	s.route(ctx, frame.To, models.KindText, frame.Content)
}

// handleFileRequest mints a presigned upload URL. The quota charge happens on
// the follow-up file_uploaded frame, after the bytes actually moved.
func (s *wsSession) handleFileRequest(ctx context.Context, frame *inboundFrame) {
	if s.h.Presigner == nil {
		s.sendError(codeUnavailable, "file uploads are not enabled")
		return
	}
	if err := s.h.Gate.CheckFile(s.profile, frame.Size); err != nil {
		s.sendError(codeQuotaDenied, err.Error())
		return
	}

	upload, err := s.h.Presigner.PresignPut(ctx, s.rec.UserID, frame.Filename, frame.Size)
	if err != nil {
		s.h.Logger.Error().Err(err).Str("user", s.rec.UserID).Msg("presign failed")
		s.sendError(codeUnavailable, "could not prepare upload")
		return
	}

	b, _ := json.Marshal(uploadFrame{
		Type:      frameUploadURL,
		URL:       upload.URL,
		Key:       upload.Key,
		Filename:  frame.Filename,
		ExpiresAt: upload.ExpiresAt,
	})
	s.conn.Send(b)
}

func (s *wsSession) handleFileUploaded(ctx context.Context, frame *inboundFrame) {
	if err := s.h.Gate.Admit(ctx, s.profile, models.KindFile, 0); err != nil {
		s.sendError(codeQuotaDenied, err.Error())
		return
	}
	// The object key is the message content; recipients resolve it to a
	// download URL out of band.
	s.route(ctx, frame.To, models.KindFile, frame.Key)
}

// route builds the envelope and hands it to the router. The sender's node
// subscribes to the conversation lazily so replies from other nodes reach it.
func (s *wsSession) route(ctx context.Context, to, kind, content string) {
	convID := models.ConversationID(s.rec.UserID, to)
	s.h.Router.EnsureSubscribed(ctx, s.conn.ID(), convID)

	env := &models.Envelope{
		ConversationID: convID,
		SenderID:       s.rec.UserID,
		SenderName:     s.rec.Username,
		Kind:           kind,
		Content:        content,
	}
	if err := s.h.Router.Send(ctx, env); err != nil {
		if errors.Is(err, router.ErrDraining) {
			s.sendError(codeUnavailable, "node shutting down, reconnect")
			return
		}
		s.h.Logger.Error().Err(err).Str("conversation", convID).Msg("send failed")
		s.sendError(codeUnavailable, "message not sent")
	}
}

func (s *wsSession) sendError(code, message string) {
	s.conn.Send(encodeErrorFrame(code, message))
}
