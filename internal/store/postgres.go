package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meshchat-protocol/meshchat/internal/metrics"
	"github.com/meshchat-protocol/meshchat/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureSchema creates tables if they don't exist.
func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		premium BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		participants TEXT[] NOT NULL,
		last_content TEXT NOT NULL DEFAULT '',
		last_kind TEXT NOT NULL DEFAULT '',
		last_ts BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS conversations_participants_idx
		ON conversations USING GIN (participants);

	CREATE TABLE IF NOT EXISTS messages (
		conversation_id TEXT NOT NULL,
		id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		ts BIGINT NOT NULL,
		seq BIGINT NOT NULL DEFAULT 0,
		origin TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (conversation_id, id)
	);
	CREATE INDEX IF NOT EXISTS messages_order_idx
		ON messages (conversation_id, ts, origin, seq);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutMessage appends a message. Replays of the same envelope are no-ops.
func (s *PostgresStore) PutMessage(ctx context.Context, env *models.Envelope) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (conversation_id, id, sender_id, sender_name, kind, content, ts, seq, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (conversation_id, id) DO NOTHING
	`, env.ConversationID, env.ID, env.SenderID, env.SenderName, env.Kind, env.Content,
		env.Timestamp, int64(env.Seq), env.OriginNode)
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	return err
}

// ConversationMessages retrieves messages in canonical order: timestamp
// ascending, ties broken by (origin, seq). A non-zero before cuts on
// ts alone, so rows tying the boundary timestamp fall out of the next
// page. With microsecond timestamps that only affects same-conversation
// messages stamped in the same microsecond.
func (s *PostgresStore) ConversationMessages(ctx context.Context, conversationID string, limit int, before int64) ([]models.Envelope, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT conversation_id, id, sender_id, sender_name, kind, content, ts, seq, origin
		FROM messages
		WHERE conversation_id = $1 AND ($2::BIGINT = 0 OR ts < $2)
		ORDER BY ts DESC, origin DESC, seq DESC
		LIMIT $3
	`, conversationID, before, limit)
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

	// Query walks newest-first for the LIMIT; callers get ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// UpsertConversationPreview updates the chat-list record for a conversation.
// A stale preview (older last_ts) never overwrites a newer one.
func (s *PostgresStore) UpsertConversationPreview(ctx context.Context, conv *models.Conversation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, participants, last_content, last_kind, last_ts, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE
		SET last_content = EXCLUDED.last_content,
		    last_kind = EXCLUDED.last_kind,
		    last_ts = EXCLUDED.last_ts,
		    updated_at = NOW()
		WHERE conversations.last_ts <= EXCLUDED.last_ts
	`, conv.ID, conv.Participants, conv.LastContent, conv.LastKind, conv.LastTS)
	return err
}

// UserConversations lists conversations the user participates in, most
// recently active first.
func (s *PostgresStore) UserConversations(ctx context.Context, userID string, limit int) ([]models.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, participants, last_content, last_kind, last_ts
		FROM conversations
		WHERE $1 = ANY(participants)
		ORDER BY last_ts DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.Participants, &conv.LastContent, &conv.LastKind, &conv.LastTS); err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// GetProfile retrieves a user profile, nil if absent.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	profile := &models.Profile{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, premium, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(
		&profile.ID,
		&profile.Username,
		&profile.Premium,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return profile, nil
}

// UpsertProfile creates or updates a user profile.
func (s *PostgresStore) UpsertProfile(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	out := &models.Profile{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, premium)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username,
		    premium = EXCLUDED.premium,
		    updated_at = NOW()
		RETURNING id, username, premium, created_at, updated_at
	`, profile.ID, profile.Username, profile.Premium).Scan(
		&out.ID,
		&out.Username,
		&out.Premium,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}
