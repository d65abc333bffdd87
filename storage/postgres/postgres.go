// Package postgres provides a PostgreSQL implementation of the
// accountsync.ProfileStore interface. Preferences are stored as jsonb and
// upserts are keyed by identity ID via INSERT ... ON CONFLICT.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowreach/accountsync/pkg/accountsync"
)

// Store implements accountsync.ProfileStore using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Table is the profiles table name (default: "profiles")
	Table string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:           "profiles",
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL profile store.
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Table == "" {
		config.Table = "profiles"
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// NewWithPool creates a store around an existing pool. The caller owns the
// pool's lifecycle.
func NewWithPool(pool *pgxpool.Pool, config Config) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if config.Table == "" {
		config.Table = "profiles"
	}
	return &Store{pool: pool, config: config}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the profiles table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                TEXT PRIMARY KEY,
			role              TEXT NOT NULL DEFAULT 'user',
			active            BOOLEAN NOT NULL DEFAULT TRUE,
			full_name         TEXT NOT NULL DEFAULT '',
			preferences       JSONB NOT NULL DEFAULT '{}'::jsonb,
			status_updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.config.Table)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetProfile implements accountsync.ProfileStore.
func (s *Store) GetProfile(ctx context.Context, id string) (*accountsync.Profile, error) {
	query := fmt.Sprintf(
		`SELECT id, role, active, full_name, preferences, status_updated_at
			FROM %s WHERE id = $1`, s.config.Table)

	var profile accountsync.Profile
	var role string
	var preferences []byte

	err := s.pool.QueryRow(ctx, query, id).Scan(
		&profile.ID,
		&role,
		&profile.Active,
		&profile.FullName,
		&preferences,
		&profile.StatusUpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, accountsync.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.Role = accountsync.ParseRole(role)
	if err := json.Unmarshal(preferences, &profile.Preferences); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return &profile, nil
}

// UpsertProfile implements accountsync.ProfileStore.
func (s *Store) UpsertProfile(ctx context.Context, profile *accountsync.Profile) error {
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("invalid profile")
	}

	preferences, err := json.Marshal(profile.Preferences)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, role, active, full_name, preferences, status_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			role              = EXCLUDED.role,
			active            = EXCLUDED.active,
			full_name         = EXCLUDED.full_name,
			preferences       = EXCLUDED.preferences,
			status_updated_at = EXCLUDED.status_updated_at`, s.config.Table)

	_, err = s.pool.Exec(ctx, query,
		profile.ID,
		string(profile.Role),
		profile.Active,
		profile.FullName,
		preferences,
		profile.StatusUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
