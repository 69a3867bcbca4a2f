package models

// BuildingRecord is one row of the output table. All fields except PostalCode
// may be empty; coordinates are kept as strings exactly as the API returns them.
type BuildingRecord struct {
	BlockNumber string // BlockNumber is the block number of the building (BLK_NO).
	Street      string // Street is the road name (ROAD_NAME).
	PostalCode  string // PostalCode is the six-digit postal code (POSTAL).
	Name        string // Name is the building name (BUILDING).
	Latitude    string // Latitude of the building (LATITUDE).
	Longitude   string // Longitude of the building (LONGITUDE).
}
