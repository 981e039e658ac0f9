package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// OpenPostgres opens a pooled connection to PostgreSQL and verifies it with a ping.
func OpenPostgres(ctx context.Context, config Config) (*sql.DB, error) {
	if config.PostgresURL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	db, err := sql.Open("postgres", config.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(config.PostgresMaxConns)
	db.SetMaxIdleConns(config.PostgresMinConns)
	db.SetConnMaxLifetime(config.PostgresMaxLifetime)
	db.SetConnMaxIdleTime(config.PostgresMaxIdleTime)

	timeout := config.PostgresTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PostgresTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}
