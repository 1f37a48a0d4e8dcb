package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultPostgresTable is used when no table is configured.
const DefaultPostgresTable = "measurements"

const (
	defaultPostgresMaxConns = 4
	postgresPingTimeout     = 5 * time.Second
)

// PostgresConfig configures a [PostgresSink].
type PostgresConfig struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string

	// Table may be schema-qualified ("metrics.measurements").
	// Defaults to [DefaultPostgresTable].
	Table string
}

// PostgresSink writes measurements into a narrow PostgreSQL table
// (time, measurement, identifier, value), which also works as a
// TimescaleDB hypertable.
type PostgresSink struct {
	pool      *pgxpool.Pool
	insertSQL string
	logger    *slog.Logger
}

// NewPostgresSink connects to the database, verifies connectivity and
// creates the table if it does not exist.
func NewPostgresSink(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	table, err := parseTable(cfg.Table)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	poolCfg.MaxConns = defaultPostgresMaxConns
	poolCfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, postgresPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	for _, stmt := range schemaStatements(table) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}

	logger.Info("postgres sink connected", "table", table.Sanitize())

	return &PostgresSink{
		pool:      pool,
		insertSQL: insertStatement(table),
		logger:    logger,
	}, nil
}

// Write inserts batch as one pgx batch round trip.
func (s *PostgresSink) Write(ctx context.Context, batch []Measurement) error {
	if len(batch) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, m := range batch {
		b.Queue(s.insertSQL, m.Time.UTC(), m.Name, m.Identifier, m.Value)
	}

	br := s.pool.SendBatch(ctx, b)
	for i := range batch {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: insert %s for %q: %w", batch[i].Name, batch[i].Identifier, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close batch: %w", err)
	}
	return nil
}

// Close closes the connection pool, waiting for acquired connections to be
// released.
func (s *PostgresSink) Close(_ context.Context) error {
	s.pool.Close()
	s.logger.Info("postgres sink closed")
	return nil
}

// parseTable splits an optionally schema-qualified table name.
func parseTable(name string) (pgx.Identifier, error) {
	if name == "" {
		name = DefaultPostgresTable
	}
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("postgres: invalid table %q", name)
	}
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("postgres: invalid table %q", name)
		}
	}
	return pgx.Identifier(parts), nil
}

func schemaStatements(table pgx.Identifier) []string {
	t := table.Sanitize()
	index := pgx.Identifier{table[len(table)-1] + "_identifier_time_idx"}.Sanitize()
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + t + ` (
	time        TIMESTAMPTZ      NOT NULL,
	measurement TEXT             NOT NULL,
	identifier  TEXT             NOT NULL,
	value       DOUBLE PRECISION NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS ` + index + ` ON ` + t + ` (identifier, time DESC)`,
	}
}

func insertStatement(table pgx.Identifier) string {
	return `INSERT INTO ` + table.Sanitize() + ` (time, measurement, identifier, value) VALUES ($1, $2, $3, $4)`
}
