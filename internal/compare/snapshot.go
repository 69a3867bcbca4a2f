package compare

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
)

// ErrMissingColumn is returned when a snapshot lacks one of the expected
// output table columns.
var ErrMissingColumn = errors.New("snapshot is missing a required column")

// snapshotColumns are the expected header names of a dataset snapshot.
var snapshotColumns = []string{"block_number", "street", "postal_code", "name", "latitude", "longitude"}

// LoadSnapshot reads one dataset snapshot CSV produced by the downloader.
// Columns are matched by header name so extra columns are tolerated.
func LoadSnapshot(path string) ([]models.BuildingRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range snapshotColumns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var records []models.BuildingRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot row: %w", err)
		}
		records = append(records, models.BuildingRecord{
			BlockNumber: row[index["block_number"]],
			Street:      row[index["street"]],
			PostalCode:  row[index["postal_code"]],
			Name:        row[index["name"]],
			Latitude:    row[index["latitude"]],
			Longitude:   row[index["longitude"]],
		})
	}

	return records, nil
}
