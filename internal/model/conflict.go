package model

import "github.com/google/uuid"

// ConflictTypeContradiction is the only conflict type produced by the
// LLM-driven contradiction check.
const ConflictTypeContradiction = "contradiction"

// ConflictItem is the materialized view of a knowledge item inside a
// detection result. Category, Status, and Owner are display metadata only.
type ConflictItem struct {
	ID       uuid.UUID `json:"id"`
	Kind     ItemKind  `json:"kind"`
	Content  string    `json:"content"`
	Category string    `json:"category,omitempty"`
	Status   string    `json:"status,omitempty"`
	Owner    string    `json:"owner,omitempty"`
}

// ConflictResult is one validated contradiction between two items of the
// same collection. It is request-scoped; only its conflict_detected event
// pair is persisted.
type ConflictResult struct {
	ItemID1      uuid.UUID    `json:"item_id_1"`
	ItemID2      uuid.UUID    `json:"item_id_2"`
	Item1        ConflictItem `json:"item_1"`
	Item2        ConflictItem `json:"item_2"`
	ConflictType string       `json:"conflict_type"`
	Description  string       `json:"description"`
	Confidence   float64      `json:"confidence"`
}

// DetectionResult is the outcome of one contradiction-detection run.
// Error is set for fetch, oracle, and parse failures; it is absent on success,
// including the no-oracle and insufficient-data cases.
type DetectionResult struct {
	Conflicts      []ConflictResult `json:"conflicts"`
	AnalyzedItems  int              `json:"analyzed_items"`
	EventsRecorded int              `json:"events_recorded"`
	Error          string           `json:"error,omitempty"`
}

// CheckConflictsRequest is the request body for the check-conflicts endpoints.
// RecordEvents defaults to true when omitted.
type CheckConflictsRequest struct {
	RecordEvents *bool `json:"record_events,omitempty"`
}
