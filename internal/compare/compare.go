package compare

import (
	"log/slog"
	"math"
	"strconv"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
)

// DefaultThresholdMeters is the distance above which a building is considered
// to have moved.
const DefaultThresholdMeters = 300

// earthRadiusMeters is the mean Earth radius used by the Haversine formula.
const earthRadiusMeters = 6371000

// Stats summarizes a comparison between two dataset snapshots.
type Stats struct {
	PreviousRecords int
	CurrentRecords  int
	NewBuildings    int
	NameChanges     int
	LocationChanges int
	TotalChanges    int
}

// Diff is the result of comparing two snapshots.
type Diff struct {
	Differences []models.Difference
	Stats       Stats
}

// Comparator matches two dataset snapshots on the composite key
// postal_code + block_number and flags new buildings, renamed buildings, and
// buildings whose coordinates moved farther than the distance threshold.
type Comparator struct {
	log       *slog.Logger
	threshold float64 // location change threshold in meters
}

// NewComparator creates a Comparator. A non-positive threshold falls back to
// DefaultThresholdMeters.
func NewComparator(log *slog.Logger, thresholdMeters float64) *Comparator {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	return &Comparator{log: log, threshold: thresholdMeters}
}

// Compare diffs the current snapshot against the previous one. Output order
// follows the current snapshot's row order: new buildings and changes
// interleaved as they appear.
func (c *Comparator) Compare(previous, current []models.BuildingRecord) *Diff {
	diff := &Diff{
		Stats: Stats{
			PreviousRecords: len(previous),
			CurrentRecords:  len(current),
		},
	}

	// First occurrence wins when a composite key repeats within a snapshot.
	prevByKey := make(map[string]models.BuildingRecord, len(previous))
	for _, rec := range previous {
		key := compositeKey(rec)
		if _, ok := prevByKey[key]; !ok {
			prevByKey[key] = rec
		}
	}

	compared := make(map[string]bool)
	for _, rec := range current {
		key := compositeKey(rec)
		prev, exists := prevByKey[key]
		if !exists {
			diff.Differences = append(diff.Differences, models.Difference{
				BuildingRecord: rec,
				Change:         models.ChangeNewBuilding,
			})
			diff.Stats.NewBuildings++
			continue
		}
		if compared[key] {
			continue
		}
		compared[key] = true

		nameChanged := prev.Name != rec.Name && prev.Name != "" && rec.Name != ""
		distance, locChanged := c.locationChanged(key, prev, rec)
		if !nameChanged && !locChanged {
			continue
		}

		change := models.Difference{
			BuildingRecord: rec,
			PrevName:       prev.Name,
			PrevLatitude:   prev.Latitude,
			PrevLongitude:  prev.Longitude,
			DistanceMeters: distance,
		}
		switch {
		case nameChanged && locChanged:
			change.Change = models.ChangeNameAndLocation
			diff.Stats.NameChanges++
			diff.Stats.LocationChanges++
		case nameChanged:
			change.Change = models.ChangeName
			diff.Stats.NameChanges++
		default:
			change.Change = models.ChangeLocation
			diff.Stats.LocationChanges++
		}
		diff.Differences = append(diff.Differences, change)
	}

	diff.Stats.TotalChanges = len(diff.Differences)
	return diff
}

// locationChanged computes the Haversine distance between the two coordinate
// pairs and compares it against the threshold. Records with missing or
// unparsable coordinates are treated as unmoved.
func (c *Comparator) locationChanged(key string, prev, curr models.BuildingRecord) (float64, bool) {
	prevLat, err1 := strconv.ParseFloat(prev.Latitude, 64)
	prevLon, err2 := strconv.ParseFloat(prev.Longitude, 64)
	currLat, err3 := strconv.ParseFloat(curr.Latitude, 64)
	currLon, err4 := strconv.ParseFloat(curr.Longitude, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		c.log.Warn("Skipping distance check, coordinates are not numeric", "key", key)
		return 0, false
	}

	distance := haversine(prevLat, prevLon, currLat, currLon)
	if distance > c.threshold {
		c.log.Info("Location change detected", "key", key, "meters", distance)
		return distance, true
	}
	return distance, false
}

// haversine returns the great-circle distance between two points in meters.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	lat1 *= degToRad
	lon1 *= degToRad
	lat2 *= degToRad
	lon2 *= degToRad

	dLat := lat2 - lat1
	dLon := lon2 - lon1
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

func compositeKey(rec models.BuildingRecord) string {
	return rec.PostalCode + "_" + rec.BlockNumber
}
