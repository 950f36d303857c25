package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore persists conversations and messages in the shared SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
			agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			model TEXT NOT NULL DEFAULT '',
			tokens_used INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init chat schema failed on %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetOrCreateConversation(ctx context.Context, userID, agentID string) (Conversation, bool, error) {
	newID := uuid.NewString()
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO conversations (id, user_id, agent_id, title, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = conversations.user_id
		 RETURNING id, user_id, agent_id, title, is_active, created_at, updated_at`,
		newID, userID, agentID, DefaultConversationTitle, now.UnixNano(), now.UnixNano(),
	)
	conv, err := scanSQLiteConversation(row)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return Conversation{}, false, ErrUserNotFound
		}
		return Conversation{}, false, fmt.Errorf("get or create conversation: %w", err)
	}
	return conv, conv.ID == newID, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, userID string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, agent_id, title, is_active, created_at, updated_at
		   FROM conversations WHERE user_id = ?`, userID)
	conv, err := scanSQLiteConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrConversationNotFound
		}
		return Conversation{}, err
	}
	return conv, nil
}

func (s *SQLiteStore) AppendMessage(ctx context.Context, msg Message) (Message, error) {
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	m := msg
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, model, tokens_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Role, m.Content, m.Model, m.TokensUsed, m.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return Message{}, ErrConversationNotFound
		}
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, m.CreatedAt.UnixNano(), m.ConversationID); err != nil {
		return Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("append message commit: %w", err)
	}
	return m, nil
}

func (s *SQLiteStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	query := `SELECT id, conversation_id, role, content, model, tokens_used, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at DESC, id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var (
			m         Message
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Model, &m.TokensUsed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	reverse(out)
	return out, nil
}

func (s *SQLiteStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete conversation by user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteConversation(row rowScanner) (Conversation, error) {
	var (
		c         Conversation
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&c.ID, &c.UserID, &c.AgentID, &c.Title, &c.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return Conversation{}, err
	}
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return c, nil
}
