package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const defaultTimeout = 5 * time.Second

// Config captures the settings for a PostgreSQL connection pool.
type Config struct {
	DSN      string
	MaxConns int
	Timeout  time.Duration
}

// Connect opens a pool and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 5
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the accounts table if it does not exist. Login ids
// are unique per kind among non-removed rows only.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS accounts (
  kind TEXT NOT NULL,
  id BIGINT NOT NULL,
  login_id TEXT NOT NULL,
  password_digest TEXT NOT NULL,
  refresh_token TEXT NOT NULL DEFAULT '',
  name TEXT NOT NULL,
  use_flag BOOLEAN NOT NULL DEFAULT true,
  manager_flag BOOLEAN NOT NULL DEFAULT false,
  authorities TEXT[] NOT NULL DEFAULT '{}',
  joined_at TIMESTAMPTZ NOT NULL,
  change_password_at TIMESTAMPTZ,
  latest_active_at TIMESTAMPTZ,
  removed_flag BOOLEAN NOT NULL DEFAULT false,
  removed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL,
  created_by_kind TEXT NOT NULL,
  created_by_id BIGINT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  updated_by_kind TEXT NOT NULL,
  updated_by_id BIGINT NOT NULL,
  PRIMARY KEY (kind, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_accounts_kind_login_id_active
  ON accounts (kind, login_id) WHERE NOT removed_flag;
`
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := db.ExecContext(ctx, ddl)
	return err
}

// Pinger returns a readiness probe for the pool.
func Pinger(db *sqlx.DB) func(context.Context) error {
	return db.PingContext
}
