package errlog

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Sink is a durable, append-only log of permanently failed postal codes.
// Writes are serialized and never fail the caller: a sink that cannot write
// reports through its logger and drops the entry.
type Sink struct {
	mu   sync.Mutex
	file *os.File // nil when the log could not be opened
	log  *slog.Logger
}

// New opens (or creates) the error log at path in append mode. When the file
// cannot be opened the returned sink still works, it just drops entries after
// logging a diagnostic.
func New(path string, log *slog.Logger) *Sink {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error("Failed to open error log, permanent failures will not be recorded",
			"path", path, "error", err)
		return &Sink{log: log}
	}
	return &Sink{file: file, log: log}
}

// Record appends one failure line for a postal code.
func (s *Sink) Record(postalCode, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return
	}
	if _, err := fmt.Fprintf(s.file, "Error with postal code %s: %s\n", postalCode, reason); err != nil {
		s.log.Error("Failed to write error log entry", "postal_code", postalCode, "error", err)
	}
}

// Close closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close error log: %w", err)
	}
	s.file = nil
	return nil
}
