package agents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore persists agents in the shared SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			llm_provider TEXT NOT NULL,
			model TEXT NOT NULL,
			temperature REAL NOT NULL,
			max_tokens INTEGER NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			is_default INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_user ON agents (user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init agents schema failed on %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, agent Agent) (Agent, error) {
	if err := agent.Validate(); err != nil {
		return Agent{}, err
	}
	a := agent
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	defer tx.Rollback()

	if a.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET is_default = 0 WHERE user_id = ? AND is_default = 1`, a.UserID); err != nil {
			return Agent{}, fmt.Errorf("clear default agent: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO agents (id, user_id, name, description, llm_provider, model,
			temperature, max_tokens, system_prompt, is_default, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Description, a.Provider, a.Model,
		a.Temperature, a.MaxTokens, a.SystemPrompt, a.IsDefault, a.IsActive,
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint") {
			return Agent{}, ErrUserNotFound
		}
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Agent{}, fmt.Errorf("create agent commit: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, userID, id string) (Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, llm_provider, model,
			temperature, max_tokens, system_prompt, is_default, is_active, created_at, updated_at
		   FROM agents WHERE user_id = ? AND id = ?`, userID, id)
	return scanSQLiteAgent(row)
}

func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, description, llm_provider, model,
			temperature, max_tokens, system_prompt, is_default, is_active, created_at, updated_at
		   FROM agents WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	out := make([]Agent, 0)
	for rows.Next() {
		a, err := scanSQLiteAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetDefault(ctx context.Context, userID string) (Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, description, llm_provider, model,
			temperature, max_tokens, system_prompt, is_default, is_active, created_at, updated_at
		   FROM agents WHERE user_id = ?
		  ORDER BY is_default DESC, created_at, id LIMIT 1`, userID)
	return scanSQLiteAgent(row)
}

func (s *SQLiteStore) Update(ctx context.Context, agent Agent) (Agent, error) {
	if err := agent.Validate(); err != nil {
		return Agent{}, err
	}
	a := agent
	a.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	defer tx.Rollback()

	if a.IsDefault {
		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET is_default = 0 WHERE user_id = ? AND id <> ? AND is_default = 1`,
			a.UserID, a.ID); err != nil {
			return Agent{}, fmt.Errorf("clear default agent: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE agents SET
			name = ?, description = ?, llm_provider = ?, model = ?,
			temperature = ?, max_tokens = ?, system_prompt = ?,
			is_default = ?, is_active = ?, updated_at = ?
		 WHERE user_id = ? AND id = ?`,
		a.Name, a.Description, a.Provider, a.Model,
		a.Temperature, a.MaxTokens, a.SystemPrompt,
		a.IsDefault, a.IsActive, a.UpdatedAt.UnixNano(),
		a.UserID, a.ID,
	)
	if err != nil {
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Agent{}, fmt.Errorf("update agent rows affected: %w", err)
	}
	if n == 0 {
		return Agent{}, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return Agent{}, fmt.Errorf("update agent commit: %w", err)
	}
	return s.GetByID(ctx, a.UserID, a.ID)
}

func (s *SQLiteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete agent rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete agents by user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteAgent(row rowScanner) (Agent, error) {
	var (
		a         Agent
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.Provider, &a.Model,
		&a.Temperature, &a.MaxTokens, &a.SystemPrompt, &a.IsDefault, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return a, nil
}
