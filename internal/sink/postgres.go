package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database is the subset of pgxpool.Pool used by the Postgres sink.
// pgxmock satisfies it in tests.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// buildingColumns mirrors the output table schema.
var buildingColumns = []string{"block_number", "street", "postal_code", "name", "latitude", "longitude"}

const createBuildingsTable = `
	CREATE TABLE IF NOT EXISTS buildings (
		id BIGSERIAL PRIMARY KEY,
		block_number TEXT,
		street TEXT,
		postal_code TEXT NOT NULL,
		name TEXT,
		latitude TEXT,
		longitude TEXT
	);
`

// PostgresSink flushes batches into the buildings table using COPY.
type PostgresSink struct {
	db  Database
	log *slog.Logger
}

// NewDatabase creates a pgx connection pool for the given credentials and
// verifies connectivity with a ping.
func NewDatabase(ctx context.Context, host, port, user, password, name string) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, password, host, port, name)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// NewPostgresSink creates a Postgres-backed sink over the provided Database.
func NewPostgresSink(db Database, log *slog.Logger) *PostgresSink {
	return &PostgresSink{db: db, log: log}
}

// Init creates the buildings table when it does not exist yet.
func (s *PostgresSink) Init(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createBuildingsTable); err != nil {
		return fmt.Errorf("failed to create buildings table: %w", err)
	}
	return nil
}

// Flush bulk-inserts one batch of records.
func (s *PostgresSink) Flush(ctx context.Context, records []models.BuildingRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{rec.BlockNumber, rec.Street, rec.PostalCode, rec.Name, rec.Latitude, rec.Longitude})
	}

	copied, err := s.db.CopyFrom(ctx, pgx.Identifier{"buildings"}, buildingColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy batch into buildings table: %w", err)
	}

	s.log.DebugContext(ctx, "Flushed batch into buildings table", "records", copied)
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close(_ context.Context) error {
	s.db.Close()
	return nil
}
