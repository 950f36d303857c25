package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	conversationColumns = `id, user_id, agent_id, title, is_active, created_at, updated_at`
	messageColumns      = `id, conversation_id, role, content, model, tokens_used, created_at`
)

// PostgresStore persists conversations and messages in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init chat schema failed on %q: %w", stmt, err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetOrCreateConversation(ctx context.Context, userID, agentID string) (Conversation, bool, error) {
	newID := uuid.NewString()
	now := time.Now().UTC()

	// The no-op DO UPDATE makes RETURNING yield the existing row on
	// conflict; a returned id matching newID means we created it.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (`+conversationColumns+`)
		 VALUES ($1, $2, $3, $4, TRUE, $5, $5)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = conversations.user_id
		 RETURNING `+conversationColumns,
		newID, userID, agentID, DefaultConversationTitle, now,
	)
	conv, err := scanConversation(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Conversation{}, false, ErrUserNotFound
		}
		return Conversation{}, false, fmt.Errorf("get or create conversation: %w", err)
	}
	return conv, conv.ID == newID, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, userID string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE user_id = $1`, userID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}
	return conv, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	m := msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO messages (`+messageColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.Model, m.TokensUsed, m.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Message{}, ErrConversationNotFound
		}
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = $2 WHERE id = $1`, m.ConversationID, m.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, fmt.Errorf("append message commit: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages
		 WHERE conversation_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Model, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	reverse(out)
	return out, nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete conversation by user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.UserID, &c.AgentID, &c.Title, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func reverse(msgs []Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
