// Package repository provides persistence for identities and tenant-scoped
// CRM data on top of the storage tiers, plus a PostgreSQL-backed tier.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresTier implements storage.Tier against the kv_entries table.
type PostgresTier struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresTier creates a PostgresTier with the given database connection.
// db must be a valid *sql.DB connected to a PostgreSQL instance with the
// schema created by db.InitPostgres.
func NewPostgresTier(db *sql.DB) *PostgresTier {
	return &PostgresTier{DB: db}
}

// Get fetches the value stored under key. A missing row is reported with ok=false.
func (p *PostgresTier) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.DB.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = $1`,
		key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value for key as a single row write.
func (p *PostgresTier) Set(ctx context.Context, key, value string) error {
	_, err := p.DB.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes the row for key. Missing rows are not an error.
func (p *PostgresTier) Delete(ctx context.Context, key string) error {
	if _, err := p.DB.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
