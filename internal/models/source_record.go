// Package models contains the models for the Reference Data API
package models

import "time"

// SourceRecord is one normalized instrument record handed to the
// reconciliation engine by the file-ingestion collaborator. Fields holds the
// flattened column set of the source batch; names the engine does not
// recognize as typed columns end up in the instrument's attribute bag.
type SourceRecord struct {
	// InstrumentID locates an existing instrument when ISIN is absent
	InstrumentID string                 `json:"instrument_id,omitempty"`
	Type         InstrumentType         `json:"instrument_type"`
	ISIN         *string                `json:"isin,omitempty"`
	Fields       map[string]interface{} `json:"fields"`
	ObservedAt   time.Time              `json:"observed_at"`
}
