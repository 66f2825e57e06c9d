package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meshchat-protocol/meshchat/internal/models"
)

// SQLiteStore is the development fallback for the durable store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/meshchat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/meshchat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		premium INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participants TEXT NOT NULL,
		last_content TEXT NOT NULL DEFAULT '',
		last_kind TEXT NOT NULL DEFAULT '',
		last_ts INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL,
		id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		ts INTEGER NOT NULL,
		seq INTEGER NOT NULL DEFAULT 0,
		origin TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (conversation_id, id)
	);
	CREATE INDEX IF NOT EXISTS messages_order_idx
		ON messages (conversation_id, ts, origin, seq);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// PutMessage appends a message, ignoring replays of the same envelope.
func (s *SQLiteStore) PutMessage(ctx context.Context, env *models.Envelope) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (conversation_id, id, sender_id, sender_name, kind, content, ts, seq, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, env.ConversationID, env.ID, env.SenderID, env.SenderName, env.Kind, env.Content,
		env.Timestamp, int64(env.Seq), env.OriginNode)
	return err
}

// ConversationMessages retrieves messages in canonical order. The before
// cursor cuts on ts alone, same tradeoff as the Postgres store.
func (s *SQLiteStore) ConversationMessages(ctx context.Context, conversationID string, limit int, before int64) ([]models.Envelope, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, id, sender_id, sender_name, kind, content, ts, seq, origin
		FROM messages
		WHERE conversation_id = ? AND (? = 0 OR ts < ?)
		ORDER BY ts DESC, origin DESC, seq DESC
		LIMIT ?
	`, conversationID, before, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Envelope
	for rows.Next() {
		var env models.Envelope
		var seq int64
		if err := rows.Scan(&env.ConversationID, &env.ID, &env.SenderID, &env.SenderName,
			&env.Kind, &env.Content, &env.Timestamp, &seq, &env.OriginNode); err != nil {
			return nil, err
		}
		env.Seq = uint64(seq)
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpsertConversationPreview updates the chat-list record for a conversation.
func (s *SQLiteStore) UpsertConversationPreview(ctx context.Context, conv *models.Conversation) error {
	participants, err := json.Marshal(conv.Participants)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, participants, last_content, last_kind, last_ts, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET last_content = excluded.last_content,
		    last_kind = excluded.last_kind,
		    last_ts = excluded.last_ts,
		    updated_at = CURRENT_TIMESTAMP
		WHERE conversations.last_ts <= excluded.last_ts
	`, conv.ID, string(participants), conv.LastContent, conv.LastKind, conv.LastTS)
	return err
}

// UserConversations lists conversations the user participates in.
// Participants are stored as a JSON array; the LIKE match on the quoted ID is
// good enough for the development store.
func (s *SQLiteStore) UserConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, participants, last_content, last_kind, last_ts
		FROM conversations
		WHERE participants LIKE '%"' || ? || '"%'
		ORDER BY last_ts DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var participants string
		if err := rows.Scan(&conv.ID, &participants, &conv.LastContent, &conv.LastKind, &conv.LastTS); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(participants), &conv.Participants); err != nil {
			continue
		}
		// The LIKE filter can match substrings of longer IDs.
		if !containsString(conv.Participants, userID) {
			continue
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// GetProfile retrieves a user profile, nil if absent.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile := &models.Profile{}
	var premium int
	var createdAt, updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, premium, created_at, updated_at
		FROM users WHERE id = ?
	`, userID).Scan(&profile.ID, &profile.Username, &premium, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	profile.Premium = premium != 0
	profile.CreatedAt = createdAt
	profile.UpdatedAt = updatedAt
	return profile, nil
}

// UpsertProfile creates or updates a user profile.
func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	premium := 0
	if profile.Premium {
		premium = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, premium)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET username = excluded.username,
		    premium = excluded.premium,
		    updated_at = CURRENT_TIMESTAMP
	`, profile.ID, profile.Username, premium)
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, profile.ID)
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
