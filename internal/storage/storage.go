// Package storage opens the shared database handles the per-domain stores
// build on. Exactly one pool (or sqlite handle) exists per process; schema
// init stays with each domain store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "modernc.org/sqlite"
)

// Backends carries whichever durable backend is configured. Both nil means
// the in-memory stores are used.
type Backends struct {
	Postgres *pgxpool.Pool
	SQLite   *sql.DB
}

// Open connects the configured backend. Postgres wins when both are set;
// with neither set the zero value is returned and stores fall back to
// in-memory implementations.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Backends, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	sqlitePath = strings.TrimSpace(sqlitePath)

	if databaseURL != "" {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err != nil {
			return Backends{}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return Backends{}, fmt.Errorf("ping postgres: %w", err)
		}
		return Backends{Postgres: pool}, nil
	}

	if sqlitePath != "" {
		dsn := sqlitePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			return Backends{}, fmt.Errorf("open sqlite: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return Backends{}, fmt.Errorf("ping sqlite: %w", err)
		}
		return Backends{SQLite: db}, nil
	}

	return Backends{}, nil
}

// Mode names the active backend for health reporting.
func (b Backends) Mode() string {
	switch {
	case b.Postgres != nil:
		return "postgres"
	case b.SQLite != nil:
		return "sqlite"
	default:
		return "in-memory"
	}
}

// Close releases whichever handle is open.
func (b Backends) Close() error {
	if b.Postgres != nil {
		b.Postgres.Close()
	}
	if b.SQLite != nil {
		return b.SQLite.Close()
	}
	return nil
}
