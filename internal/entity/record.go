// Package entity defines the domain structs shared across the pipeline.
package entity

import "time"

// TimelineEvent is one procedural fact extracted from the case document.
type TimelineEvent struct {
	EventID     int    `json:"event_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"` // YYYY-MM-DD
	PageStart   int    `json:"page_start"`
	PageEnd     int    `json:"page_end"`
}

// EvidenceItem is one piece of evidence referenced by the case document.
type EvidenceItem struct {
	EvidenceID int    `json:"evidence_id"`
	Name       string `json:"name"`
	Flaw       string `json:"flaw,omitempty"`
	PageStart  int    `json:"page_start"`
	PageEnd    int    `json:"page_end"`
}

// CaseExtraction is the normalized payload returned by the extraction service,
// before it is bound to a case id and persisted.
type CaseExtraction struct {
	Summary  string          `json:"summary"`
	Timeline []TimelineEvent `json:"timeline"`
	Evidence []EvidenceItem  `json:"evidence"`
}

// ExtractionRecord is the persisted result for one case. Records are immutable
// once written: a second request for the same case id reads this row back
// unchanged.
type ExtractionRecord struct {
	CaseID      string          `json:"case_id"`
	Summary     string          `json:"summary"`
	Timeline    []TimelineEvent `json:"timeline"`
	Evidence    []EvidenceItem  `json:"evidence"`
	PersistedAt time.Time       `json:"persisted_at"`
}
