package memory

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

// PostgresStore persists memories in PostgreSQL. The users table must exist
// before the schema init runs, so the accounts store is always built first.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if err := initMemorySchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initMemorySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			memory_type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			importance INTEGER NOT NULL DEFAULT 5,
			first_mentioned TIMESTAMPTZ NOT NULL,
			last_accessed TIMESTAMPTZ NOT NULL,
			access_count INTEGER NOT NULL DEFAULT 0,
			source_message_id TEXT NOT NULL DEFAULT '',
			UNIQUE (user_id, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_memories_user_type ON user_memories (user_id, memory_type);`,
		`CREATE INDEX IF NOT EXISTS idx_user_memories_user_rank ON user_memories (user_id, importance DESC, last_accessed DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init memory schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

const memoryColumns = `id, user_id, memory_type, key, value, confidence, importance,
	first_mentioned, last_accessed, access_count, source_message_id`

func (s *PostgresStore) Upsert(ctx context.Context, userID, key string, fields Fields) (Memory, bool, error) {
	if err := validateKey(key); err != nil {
		return Memory{}, false, err
	}
	if err := fields.Validate(); err != nil {
		return Memory{}, false, err
	}

	newID := uuid.NewString()
	now := time.Now().UTC()

	row := s.pool.QueryRow(ctx,
		`INSERT INTO user_memories (`+memoryColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,$10)
		 ON CONFLICT (user_id, key) DO UPDATE SET
			memory_type=EXCLUDED.memory_type,
			value=EXCLUDED.value,
			confidence=EXCLUDED.confidence,
			importance=EXCLUDED.importance,
			source_message_id=EXCLUDED.source_message_id,
			last_accessed=EXCLUDED.last_accessed,
			access_count=user_memories.access_count + 1
		 RETURNING `+memoryColumns,
		newID,
		userID,
		string(fields.Type),
		key,
		fields.Value,
		fields.Confidence,
		fields.Importance,
		now,
		now,
		fields.SourceMessageID,
	)

	m, err := scanMemory(row)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Memory{}, false, ErrUserNotFound
		}
		return Memory{}, false, fmt.Errorf("upsert memory: %w", err)
	}
	// A fresh row keeps the ID we generated; an update keeps the old one.
	return m, m.ID == newID, nil
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Memory, error) {
	sql := `SELECT ` + memoryColumns + ` FROM user_memories WHERE user_id=$1`
	args := []any{q.UserID}
	if len(q.Types) > 0 {
		types := make([]string, 0, len(q.Types))
		for _, t := range q.Types {
			types = append(types, string(t))
		}
		sql += ` AND memory_type = ANY($2)`
		args = append(args, types)
	}
	sql += ` ORDER BY importance DESC, last_accessed DESC, id ASC`
	if q.Limit > 0 {
		sql += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	out := make([]Memory, 0, q.Limit)
	for rows.Next() {
		m, err := scanMemory(rows)
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

func (s *PostgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE user_memories SET access_count = access_count + 1, last_accessed = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("touch memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM user_memories WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemoryNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string, types ...Type) (int, error) {
	sql := `DELETE FROM user_memories WHERE user_id = $1`
	args := []any{userID}
	if len(types) > 0 {
		names := make([]string, 0, len(types))
		for _, t := range types {
			names = append(names, string(t))
		}
		sql += ` AND memory_type = ANY($2)`
		args = append(args, names)
	}

	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("delete memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close is a no-op; the pool is shared and owned by the storage backends.
func (s *PostgresStore) Close() error { return nil }

func scanMemory(row pgx.Row) (Memory, error) {
	var (
		m       Memory
		memType string
	)
	if err := row.Scan(
		&m.ID,
		&m.UserID,
		&memType,
		&m.Key,
		&m.Value,
		&m.Confidence,
		&m.Importance,
		&m.FirstMentioned,
		&m.LastAccessed,
		&m.AccessCount,
		&m.SourceMessageID,
	); err != nil {
		return Memory{}, err
	}
	m.Type = Type(memType)
	return m, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
