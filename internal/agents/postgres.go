package agents

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

const agentColumns = `id, user_id, name, description, llm_provider, model,
	temperature, max_tokens, system_prompt, is_default, is_active, created_at, updated_at`

// PostgresStore persists agents in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			llm_provider TEXT NOT NULL,
			model TEXT NOT NULL,
			temperature DOUBLE PRECISION NOT NULL,
			max_tokens INTEGER NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_user ON agents (user_id, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("init agents schema failed on %q: %w", stmt, err)
		}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, agent Agent) (Agent, error) {
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	defer tx.Rollback(ctx)

	if a.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE agents SET is_default = FALSE WHERE user_id = $1 AND is_default`, a.UserID); err != nil {
			return Agent{}, fmt.Errorf("clear default agent: %w", err)
		}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO agents (`+agentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.UserID, a.Name, a.Description, a.Provider, a.Model,
		a.Temperature, a.MaxTokens, a.SystemPrompt, a.IsDefault, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return Agent{}, ErrUserNotFound
		}
		return Agent{}, fmt.Errorf("create agent: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Agent{}, fmt.Errorf("create agent commit: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, userID, id string) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE user_id = $1 AND id = $2`, userID, id)
	return scanAgent(row)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	out := make([]Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetDefault(ctx context.Context, userID string) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE user_id = $1
		 ORDER BY is_default DESC, created_at, id LIMIT 1`, userID)
	return scanAgent(row)
}

func (s *PostgresStore) Update(ctx context.Context, agent Agent) (Agent, error) {
	if err := agent.Validate(); err != nil {
		return Agent{}, err
	}
	a := agent
	a.UpdatedAt = time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Agent{}, fmt.Errorf("update agent: %w", err)
	}
	defer tx.Rollback(ctx)

	if a.IsDefault {
		if _, err := tx.Exec(ctx,
			`UPDATE agents SET is_default = FALSE WHERE user_id = $1 AND id <> $2 AND is_default`,
			a.UserID, a.ID); err != nil {
			return Agent{}, fmt.Errorf("clear default agent: %w", err)
		}
	}
	row := tx.QueryRow(ctx,
		`UPDATE agents SET
			name = $3, description = $4, llm_provider = $5, model = $6,
			temperature = $7, max_tokens = $8, system_prompt = $9,
			is_default = $10, is_active = $11, updated_at = $12
		 WHERE user_id = $1 AND id = $2
		 RETURNING `+agentColumns,
		a.UserID, a.ID, a.Name, a.Description, a.Provider, a.Model,
		a.Temperature, a.MaxTokens, a.SystemPrompt, a.IsDefault, a.IsActive, a.UpdatedAt,
	)
	updated, err := scanAgent(row)
	if err != nil {
		return Agent{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Agent{}, fmt.Errorf("update agent commit: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete agents by user: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return nil }

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.Provider, &a.Model,
		&a.Temperature, &a.MaxTokens, &a.SystemPrompt, &a.IsDefault, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, fmt.Errorf("scan agent: %w", err)
	}
	return a, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
