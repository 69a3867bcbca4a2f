package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
)

// Sink is a durable destination for flushed building records.
// Implementations must serialize concurrent Flush calls.
type Sink interface {
	// Flush persists one batch of records. A Flush error is fatal to the run.
	Flush(ctx context.Context, records []models.BuildingRecord) error
	// Close releases the underlying resources after a final flush.
	Close(ctx context.Context) error
}

// Type represents the kind of storage backend.
type Type string

const (
	// TypeCSV writes the output table to a local CSV file.
	TypeCSV Type = "csv"
	// TypePostgres writes the output table to a Postgres table.
	TypePostgres Type = "postgres"
)

// Config holds configuration for creating a sink.
type Config struct {
	Type       Type         // Type of sink to create
	OutputPath string       // Output file path (used by the CSV sink)
	DB         Database     // Database handle (used by the Postgres sink)
	Logger     *slog.Logger // Logger for the sink
}

// New creates a sink based on the provided configuration. It decouples backend
// instantiation from the download orchestration so tests and deployments can
// pick the storage they need.
func New(cfg Config) (Sink, error) {
	switch cfg.Type {
	case TypeCSV:
		return NewCSVSink(cfg.OutputPath)
	case TypePostgres:
		if cfg.DB == nil {
			return nil, fmt.Errorf("database handle is required for postgres sink")
		}
		return NewPostgresSink(cfg.DB, cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unsupported sink type: %s", cfg.Type)
	}
}
