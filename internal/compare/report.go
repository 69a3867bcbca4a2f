package compare

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
)

// differencesHeader extends the output table columns with the change metadata.
var differencesHeader = []string{
	"block_number", "street", "postal_code", "name", "latitude", "longitude",
	"change_type", "prev_name", "prev_lat", "prev_lon", "location_change_meters",
}

// WriteDifferences saves the differences to a CSV file at path.
func WriteDifferences(path string, diff *Diff) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create differences file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err = writer.Write(differencesHeader); err != nil {
		return fmt.Errorf("failed to write differences header: %w", err)
	}

	for _, d := range diff.Differences {
		distance := ""
		if d.Change != models.ChangeNewBuilding {
			distance = strconv.FormatFloat(d.DistanceMeters, 'f', 2, 64)
		}
		row := []string{
			d.BlockNumber, d.Street, d.PostalCode, d.Name, d.Latitude, d.Longitude,
			string(d.Change), d.PrevName, d.PrevLatitude, d.PrevLongitude, distance,
		}
		if err = writer.Write(row); err != nil {
			return fmt.Errorf("failed to write differences row: %w", err)
		}
	}

	writer.Flush()
	if err = writer.Error(); err != nil {
		return fmt.Errorf("failed to flush differences file: %w", err)
	}
	return nil
}

// Report renders a human-readable summary of the comparison.
func Report(previousFile, currentFile, diffOutput string, diff *Diff, thresholdMeters float64) string {
	divider := strings.Repeat("=", 50)
	subDivider := strings.Repeat("-", 50)

	var b strings.Builder
	fmt.Fprintln(&b, divider)
	fmt.Fprintln(&b, "ONEMAP BUILDING DATA COMPARISON REPORT")
	fmt.Fprintln(&b, divider)
	fmt.Fprintf(&b, "Previous dataset: %s\n", previousFile)
	fmt.Fprintf(&b, "Current dataset: %s\n", currentFile)
	fmt.Fprintf(&b, "Differences output: %s\n\n", diffOutput)
	fmt.Fprintln(&b, "STATISTICS")
	fmt.Fprintln(&b, subDivider)
	fmt.Fprintf(&b, "Previous dataset records: %d\n", diff.Stats.PreviousRecords)
	fmt.Fprintf(&b, "Current dataset records: %d\n", diff.Stats.CurrentRecords)
	fmt.Fprintf(&b, "Total differences found: %d\n", diff.Stats.TotalChanges)
	fmt.Fprintf(&b, "  - New buildings: %d\n", diff.Stats.NewBuildings)
	fmt.Fprintf(&b, "  - Name changes: %d\n", diff.Stats.NameChanges)
	fmt.Fprintf(&b, "  - Location changes: %d (distance > %.0f meters)\n\n", diff.Stats.LocationChanges, thresholdMeters)
	fmt.Fprintln(&b, "SUMMARY")
	fmt.Fprintln(&b, subDivider)
	netChange := diff.Stats.CurrentRecords - diff.Stats.PreviousRecords
	if diff.Stats.PreviousRecords > 0 {
		pct := float64(netChange) / float64(diff.Stats.PreviousRecords) * 100
		fmt.Fprintf(&b, "Net change in records: %d (%.2f%%)\n\n", netChange, pct)
	} else {
		fmt.Fprintf(&b, "Net change in records: %d\n\n", netChange)
	}
	fmt.Fprintf(&b, "Report generated on: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(&b, divider)

	return b.String()
}

// WriteReport saves the rendered report next to the differences file.
func WriteReport(path, report string) error {
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
