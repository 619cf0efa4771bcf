package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType names an entry in a knowledge item's event log.
type EventType string

const (
	EventCreated          EventType = "created"
	EventConflictDetected EventType = "conflict_detected"
)

// ItemEvent is an append-only audit record attached to a fact or decision.
// Never mutated; removed only when the owning item is deleted.
type ItemEvent struct {
	ID        uuid.UUID      `json:"id"`
	ItemID    uuid.UUID      `json:"item_id"`
	ProjectID uuid.UUID      `json:"project_id"`
	EventType EventType      `json:"event_type"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// ConflictDetectedData is the payload of a conflict_detected event.
// OtherID references the opposite side of the conflicting pair.
type ConflictDetectedData struct {
	OtherID uuid.UUID `json:"other_id"`
	Reason  string    `json:"reason"`
	Trigger string    `json:"trigger"`
}

// Map converts the payload to the generic event data shape.
func (d ConflictDetectedData) Map() map[string]any {
	return map[string]any{
		"other_id": d.OtherID.String(),
		"reason":   d.Reason,
		"trigger":  d.Trigger,
	}
}
