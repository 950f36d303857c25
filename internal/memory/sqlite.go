package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore persists memories in a local SQLite file. Intended for
// single-node deployments; Postgres is the production backend.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			memory_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 1.0,
			importance INTEGER NOT NULL DEFAULT 5,
			first_mentioned INTEGER NOT NULL,
			last_accessed INTEGER NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			source_message_id TEXT NOT NULL DEFAULT '',
			UNIQUE (user_id, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_memories_user_type ON user_memories (user_id, memory_type);`,
		`CREATE INDEX IF NOT EXISTS idx_user_memories_user_rank ON user_memories (user_id, importance DESC, last_accessed DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init memory schema failed on %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, userID, key string, fields Fields) (Memory, bool, error) {
	if err := validateKey(key); err != nil {
		return Memory{}, false, err
	}
	if err := fields.Validate(); err != nil {
		return Memory{}, false, err
	}

	newID := uuid.NewString()
	now := time.Now().UTC()

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO user_memories (
			id, user_id, memory_type, key, value, confidence, importance,
			first_mentioned, last_accessed, access_count, source_message_id
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT (user_id, key) DO UPDATE SET
			memory_type=excluded.memory_type,
			value=excluded.value,
			confidence=excluded.confidence,
			importance=excluded.importance,
			source_message_id=excluded.source_message_id,
			last_accessed=excluded.last_accessed,
			access_count=user_memories.access_count + 1
		 RETURNING id, user_id, memory_type, key, value, confidence, importance,
			first_mentioned, last_accessed, access_count, source_message_id`,
		newID,
		userID,
		string(fields.Type),
		key,
		fields.Value,
		fields.Confidence,
		fields.Importance,
		now.UnixNano(),
		now.UnixNano(),
		fields.SourceMessageID,
	)

	m, err := scanSQLiteMemory(row)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return Memory{}, false, ErrUserNotFound
		}
		return Memory{}, false, fmt.Errorf("upsert memory: %w", err)
	}
	return m, m.ID == newID, nil
}

func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]Memory, error) {
	sqlText := `SELECT id, user_id, memory_type, key, value, confidence, importance,
		first_mentioned, last_accessed, access_count, source_message_id
		FROM user_memories WHERE user_id = ?`
	args := []any{q.UserID}
	if len(q.Types) > 0 {
		marks := make([]string, len(q.Types))
		for i, t := range q.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		sqlText += ` AND memory_type IN (` + strings.Join(marks, ", ") + `)`
	}
	sqlText += ` ORDER BY importance DESC, last_accessed DESC, id ASC`
	if q.Limit > 0 {
		sqlText += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	out := make([]Memory, 0, q.Limit)
	for rows.Next() {
		m, err := scanSQLiteMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		at.UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("touch memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch memory rows affected: %w", err)
	}
	if n == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_memories WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete memory rows affected: %w", err)
	}
	if n == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteByUser(ctx context.Context, userID string, types ...Type) (int, error) {
	sqlText := `DELETE FROM user_memories WHERE user_id = ?`
	args := []any{userID}
	if len(types) > 0 {
		marks := make([]string, len(types))
		for i, t := range types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		sqlText += ` AND memory_type IN (` + strings.Join(marks, ", ") + `)`
	}

	res, err := s.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete memories rows affected: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the handle is shared and owned by the storage backends.
func (s *SQLiteStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteMemory(row rowScanner) (Memory, error) {
	var (
		m              Memory
		memType        string
		firstMentioned int64
		lastAccessed   int64
	)
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&memType,
		&m.Key,
		&m.Value,
		&m.Confidence,
		&m.Importance,
		&firstMentioned,
		&lastAccessed,
		&m.AccessCount,
		&m.SourceMessageID,
	); err != nil {
		return Memory{}, err
	}
	m.Type = Type(memType)
	m.FirstMentioned = time.Unix(0, firstMentioned).UTC()
	m.LastAccessed = time.Unix(0, lastAccessed).UTC()
	return m, nil
}
