// Package trial defines the canonical trial record shapes shared by the
// registry adapters, the reconciliation engine, and the store.
package trial

import "time"

// Source identifies which registry produced a record.
type Source string

const (
	SourceCTGov  Source = "clinicaltrials.gov"
	SourceISRCTN Source = "isrctn"
)

// ChangeType records the classification a row received on its most recent run.
type ChangeType string

const (
	ChangeNew     ChangeType = "NEW"
	ChangeUpdated ChangeType = "UPDATED"
)

// ChangeStatus builds the STATUS_CHANGE tag carrying the old and new values.
func ChangeStatus(old, current string) ChangeType {
	return ChangeType("STATUS_CHANGE: " + old + " → " + current)
}

// Record is one normalized trial as fetched from a registry this run.
// LastUpdated is an ISO-8601 string or "" when the registry reported nothing
// usable; it is never a malformed non-empty value past the normalizer.
type Record struct {
	ExternalID  string `json:"external_id"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
	Source      Source `json:"source"`
	URL         string `json:"url,omitempty"`
}

// Stored is the persistent row for a trial, one per external ID.
type Stored struct {
	Record
	LastChecked time.Time  `json:"last_checked"`
	ChangeType  ChangeType `json:"change_type,omitempty"`
}

// Changed pairs a stored trial with the status it replaced.
type Changed struct {
	Stored
	OldStatus string `json:"old_status"`
}

// RegistryURL derives the public registry page for a trial. The mapping is
// deterministic so URLs never need to be fetched or stored separately.
func RegistryURL(source Source, externalID string) string {
	switch source {
	case SourceCTGov:
		return "https://clinicaltrials.gov/study/" + externalID
	case SourceISRCTN:
		return "https://www.isrctn.com/" + externalID
	default:
		return ""
	}
}
