package kioku

import (
	"time"

	"github.com/google/uuid"
)

// Fact mirrors the server's model.Fact.
type Fact struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Content   string    `json:"content"`
	Category  *string   `json:"category,omitempty"`
	Source    *string   `json:"source,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision mirrors the server's model.Decision.
type Decision struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Content   string    `json:"content"`
	Status    *string   `json:"status,omitempty"`
	Owner     *string   `json:"owner,omitempty"`
	Rationale *string   `json:"rationale,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateFactRequest is the body of POST /v1/facts.
type CreateFactRequest struct {
	Content  string  `json:"content"`
	Category *string `json:"category,omitempty"`
	Source   *string `json:"source,omitempty"`
}

// CreateDecisionRequest is the body of POST /v1/decisions.
type CreateDecisionRequest struct {
	Content   string  `json:"content"`
	Status    *string `json:"status,omitempty"`
	Owner     *string `json:"owner,omitempty"`
	Rationale *string `json:"rationale,omitempty"`
}

// Event is one entry in an item's history.
type Event struct {
	ID        uuid.UUID      `json:"id"`
	ItemID    uuid.UUID      `json:"item_id"`
	ProjectID uuid.UUID      `json:"project_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// ConflictItem is one side of a detected contradiction.
type ConflictItem struct {
	ID       uuid.UUID `json:"id"`
	Kind     string    `json:"kind"`
	Content  string    `json:"content"`
	Category string    `json:"category,omitempty"`
	Status   string    `json:"status,omitempty"`
	Owner    string    `json:"owner,omitempty"`
}

// Conflict is one contradicting pair.
type Conflict struct {
	ItemID1      uuid.UUID    `json:"item_id_1"`
	ItemID2      uuid.UUID    `json:"item_id_2"`
	Item1        ConflictItem `json:"item_1"`
	Item2        ConflictItem `json:"item_2"`
	ConflictType string       `json:"conflict_type"`
	Description  string       `json:"description"`
	Confidence   float64      `json:"confidence"`
}

// DetectionResult is returned by the check-conflicts endpoints. A non-empty
// Error means detection did not complete; Conflicts is then empty and says
// nothing about whether the collection is consistent.
type DetectionResult struct {
	Conflicts      []Conflict `json:"conflicts"`
	AnalyzedItems  int        `json:"analyzed_items"`
	EventsRecorded int        `json:"events_recorded"`
	Error          string     `json:"error,omitempty"`
}

// CheckOptions control a check-conflicts call. A nil *CheckOptions records
// events.
type CheckOptions struct {
	RecordEvents *bool `json:"record_events,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Oracle   string `json:"oracle"`
	Uptime   int64  `json:"uptime_seconds"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
