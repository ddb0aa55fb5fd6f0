package state

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"

	"github.com/whackrock/fund/internal/logger"
)

// Config holds database connection parameters.
type Config struct {
	Host     string
	Port     uint64
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// Store persists the fund's event journal, NAV snapshots, parameter history and the agent cycle counter.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  zerolog.Logger
}

// Open connects to PostgreSQL and checks the connection. Every query is bounded by timeout.
func Open(ctx context.Context, cfg Config, timeout time.Duration) (*Store, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := NewStore(db, timeout)
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info().Str("host", cfg.Host).Str("database", cfg.DBName).Msg("Connected to PostgreSQL")
	return s, nil
}

// NewStore wraps an existing connection pool.
func NewStore(db *sqlx.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Store{db: db, timeout: timeout, logger: logger.GetForComponent("state")}
}

func (s *Store) Close() error {
	s.logger.Info().Msg("Closing database connection...")
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS fund_events (
		event_id UUID PRIMARY KEY,
		operation_id UUID NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		event_timestamp TIMESTAMPTZ NOT NULL,
		payload JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fund_events_timestamp ON fund_events(event_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_fund_events_type ON fund_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_fund_events_operation ON fund_events(operation_id);

	CREATE TABLE IF NOT EXISTS nav_snapshots (
		snapshot_id BIGSERIAL PRIMARY KEY,
		cycle_id UUID NOT NULL,
		cycle_number BIGINT NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL,

		-- Raw integer amounts, 18 decimals
		nav NUMERIC(78, 0) NOT NULL,
		nav_display NUMERIC(78, 0),
		total_supply NUMERIC(78, 0) NOT NULL,
		share_price NUMERIC(78, 0) NOT NULL,

		holdings JSONB,
		max_deviation_bps INTEGER NOT NULL DEFAULT 0,
		rebalanced BOOLEAN NOT NULL DEFAULT FALSE,
		errors TEXT[]
	);
	CREATE INDEX IF NOT EXISTS idx_nav_snapshots_timestamp ON nav_snapshots(snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_nav_snapshots_cycle ON nav_snapshots(cycle_number DESC);

	CREATE TABLE IF NOT EXISTS fund_parameters (
		params_id SERIAL PRIMARY KEY,
		fund_symbol VARCHAR(64) NOT NULL,
		version INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		params JSONB NOT NULL,
		target_weights JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uq_fund_parameters_symbol_version UNIQUE (fund_symbol, version)
	);
	CREATE INDEX IF NOT EXISTS idx_fund_parameters_active ON fund_parameters(fund_symbol, is_active);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);
	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema creates the tables if they don't exist. Safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	s.logger.Info().Msg("Database schema ensured")
	return nil
}

// Reset drops every table and recreates the schema. All history is lost.
func (s *Store) Reset(ctx context.Context) error {
	dropCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dropSQL := `
		DROP TABLE IF EXISTS fund_events CASCADE;
		DROP TABLE IF EXISTS nav_snapshots CASCADE;
		DROP TABLE IF EXISTS fund_parameters CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := s.db.ExecContext(dropCtx, dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	s.logger.Warn().Msg("All fund tables dropped")
	return s.EnsureSchema(ctx)
}
