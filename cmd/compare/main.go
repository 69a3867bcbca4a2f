package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhanyyudi/onemap-building-sg/internal/compare"
)

// main compares two dataset snapshots and writes the differences CSV plus a
// text report.
func main() {
	previousFile := flag.String("previous", "", "Path to the previous dataset snapshot CSV (required)")
	currentFile := flag.String("current", "", "Path to the current dataset snapshot CSV (required)")
	diffOutput := flag.String("output", "", "Path for the differences CSV (default: data/differences_onemap_<prev>-<curr>.csv)")
	threshold := flag.Float64("threshold", compare.DefaultThresholdMeters, "Location change threshold in meters")
	flag.Parse()

	if *previousFile == "" || *currentFile == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	output := *diffOutput
	if output == "" {
		output = defaultDiffOutput(*previousFile, *currentFile)
	}

	previous, err := compare.LoadSnapshot(*previousFile)
	if err != nil {
		log.Fatalf("Failed to load previous snapshot: %v", err)
	}
	logger.Info("Loaded previous snapshot", "path", *previousFile, "records", len(previous))

	current, err := compare.LoadSnapshot(*currentFile)
	if err != nil {
		log.Fatalf("Failed to load current snapshot: %v", err)
	}
	logger.Info("Loaded current snapshot", "path", *currentFile, "records", len(current))

	comparator := compare.NewComparator(logger, *threshold)
	diff := comparator.Compare(previous, current)

	if err = compare.WriteDifferences(output, diff); err != nil {
		log.Fatalf("Failed to write differences: %v", err)
	}
	logger.Info("Differences saved", "path", output, "total", diff.Stats.TotalChanges)

	report := compare.Report(*previousFile, *currentFile, output, diff, *threshold)
	fmt.Println(report)

	reportPath := strings.TrimSuffix(output, ".csv") + "_report.txt"
	if err = compare.WriteReport(reportPath, report); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	logger.Info("Report saved", "path", reportPath)
}

// defaultDiffOutput derives the differences path from the snapshot file names,
// e.g. onemap_01012026.csv + onemap_01022026.csv ->
// data/differences_onemap_01012026-01022026.csv.
func defaultDiffOutput(previousFile, currentFile string) string {
	prev := snapshotDate(previousFile)
	curr := snapshotDate(currentFile)
	return filepath.Join("data", fmt.Sprintf("differences_onemap_%s-%s.csv", prev, curr))
}

func snapshotDate(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if idx := strings.LastIndex(name, "_"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
