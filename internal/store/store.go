package store

import (
	"context"

	"github.com/meshchat-protocol/meshchat/internal/models"
)

// DataStore defines the interface for durable storage of messages,
// conversation previews, and user profiles.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message history. PutMessage is idempotent on (conversation_id, id) so
	// at-least-once handoff from the router is harmless.
	PutMessage(ctx context.Context, env *models.Envelope) error
	// ConversationMessages returns up to limit messages in canonical order,
	// timestamp ascending with ties broken by (origin, seq). A non-zero
	// before is a timestamp-only cursor: strictly older messages are
	// returned, so rows sharing the boundary timestamp are not revisited
	// on the next page. Timestamps are microsecond-granular, which keeps
	// such ties rare enough that a composite cursor is not worth the
	// wider query surface.
	ConversationMessages(ctx context.Context, conversationID string, limit int, before int64) ([]models.Envelope, error)

	// Conversation previews (the chat-list surface)
	UpsertConversationPreview(ctx context.Context, conv *models.Conversation) error
	UserConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error)

	// User profiles
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error)
}
