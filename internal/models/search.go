package models

// SearchResponse is one decoded page of the OneMap elastic search payload.
type SearchResponse struct {
	Found         int            `json:"found"`         // Found is the total number of matching records.
	TotalNumPages int            `json:"totalNumPages"` // TotalNumPages is the number of result pages.
	Results       []SearchResult `json:"results"`       // Results are the raw records of this page.
}

// SearchResult is one raw item record from the search payload.
// Fields absent from the payload decode to empty strings.
type SearchResult struct {
	BlkNo     string `json:"BLK_NO"`
	RoadName  string `json:"ROAD_NAME"`
	Postal    string `json:"POSTAL"`
	Building  string `json:"BUILDING"`
	Latitude  string `json:"LATITUDE"`
	Longitude string `json:"LONGITUDE"`
}

// Record maps the raw item to the canonical output row.
func (r SearchResult) Record() BuildingRecord {
	return BuildingRecord{
		BlockNumber: r.BlkNo,
		Street:      r.RoadName,
		PostalCode:  r.Postal,
		Name:        r.Building,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
	}
}
