package models

// KeyStatus classifies the terminal state of one postal code.
type KeyStatus int

const (
	// StatusComplete means every result page for the postal code was collected.
	StatusComplete KeyStatus = iota
	// StatusPartial means the postal code resolved but at least one page was lost to a timeout.
	StatusPartial
	// StatusFailed means the initial search for the postal code failed permanently.
	StatusFailed
)

func (s KeyStatus) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusPartial:
		return "partial"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// KeyOutcome is the terminal result of one postal code. Every postal code
// produces exactly one KeyOutcome per run.
type KeyOutcome struct {
	PostalCode string           // PostalCode is the six-digit key this outcome belongs to.
	Status     KeyStatus        // Status is the tri-state resolution of the key.
	Records    []BuildingRecord // Records are the buildings collected for the key.
	Attempts   int              // Attempts is the number of initial-request attempts made.
}
