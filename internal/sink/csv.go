package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
)

// csvHeader is the fixed column order of the output table.
var csvHeader = []string{"block_number", "street", "postal_code", "name", "latitude", "longitude"}

// CSVSink appends flushed batches to a single CSV file. The header row is
// written once when the sink is created; every flush appends rows in column
// order. A mutex serializes flushes from concurrent callers.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink creates the output file at path, truncating any previous run,
// and writes the header row. Parent directories are created as needed.
func NewCSVSink(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	writer := csv.NewWriter(file)
	if err = writer.Write(csvHeader); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	writer.Flush()
	if err = writer.Error(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to flush csv header: %w", err)
	}

	return &CSVSink{file: file, writer: writer}, nil
}

// Flush appends one batch of records to the file.
func (s *CSVSink) Flush(_ context.Context, records []models.BuildingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		row := []string{rec.BlockNumber, rec.Street, rec.PostalCode, rec.Name, rec.Latitude, rec.Longitude}
		if err := s.writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv batch: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (s *CSVSink) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("failed to flush csv output: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close csv output: %w", err)
	}
	return nil
}
