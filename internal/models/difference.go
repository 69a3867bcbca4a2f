package models

// ChangeType labels why a building appears in the differences output.
type ChangeType string

const (
	ChangeNewBuilding     ChangeType = "new_building"
	ChangeName            ChangeType = "name_change"
	ChangeLocation        ChangeType = "location_change"
	ChangeNameAndLocation ChangeType = "name_and_location_change"
)

// Difference is one changed or newly appeared building found by comparing two
// dataset snapshots. Prev* fields and DistanceMeters are only populated for
// changes to buildings present in both snapshots.
type Difference struct {
	BuildingRecord

	Change         ChangeType
	PrevName       string
	PrevLatitude   string
	PrevLongitude  string
	DistanceMeters float64
}
