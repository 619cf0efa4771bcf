package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kioku/internal/model"
)

// eventTable names one of the two per-kind event logs. Table and column
// names are constants, never caller input.
type eventTable struct {
	table     string
	itemTable string
	itemCol   string
}

var (
	factEvents     = eventTable{table: "fact_events", itemTable: "facts", itemCol: "fact_id"}
	decisionEvents = eventTable{table: "decision_events", itemTable: "decisions", itemCol: "decision_id"}
)

func eventTableFor(kind model.ItemKind) (eventTable, error) {
	switch kind {
	case model.KindFact:
		return factEvents, nil
	case model.KindDecision:
		return decisionEvents, nil
	default:
		return eventTable{}, fmt.Errorf("storage: unknown item kind %q", kind)
	}
}

func insertEventTx(ctx context.Context, tx pgx.Tx, t eventTable, projectID, itemID uuid.UUID, eventType model.EventType, data map[string]any, at time.Time) error {
	if data == nil {
		data = map[string]any{}
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO `+t.table+` (id, `+t.itemCol+`, project_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), itemID, projectID, string(eventType), data, at,
	); err != nil {
		return fmt.Errorf("storage: insert %s: %w", t.table, err)
	}
	return nil
}

// appendEvent writes a single event row. Each call is its own statement so a
// failure never affects other events. The item must belong to projectID.
func (db *DB) appendEvent(ctx context.Context, t eventTable, projectID, itemID uuid.UUID, eventType model.EventType, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO `+t.table+` (id, `+t.itemCol+`, project_id, event_type, data, created_at)
		 SELECT $1::uuid, i.id, i.project_id, $4::text, $5::jsonb, now()
		 FROM `+t.itemTable+` i WHERE i.id = $2 AND i.project_id = $3`,
		uuid.New(), itemID, projectID, string(eventType), data,
	)
	if err != nil {
		return fmt.Errorf("storage: append %s: %w", t.table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: append %s: item %s: %w", t.table, itemID, ErrNotFound)
	}
	return nil
}

// AppendFactEvent appends one event to a fact's log.
func (db *DB) AppendFactEvent(ctx context.Context, projectID, factID uuid.UUID, eventType model.EventType, data map[string]any) error {
	return db.appendEvent(ctx, factEvents, projectID, factID, eventType, data)
}

// AppendDecisionEvent appends one event to a decision's log.
func (db *DB) AppendDecisionEvent(ctx context.Context, projectID, decisionID uuid.UUID, eventType model.EventType, data map[string]any) error {
	return db.appendEvent(ctx, decisionEvents, projectID, decisionID, eventType, data)
}

func (db *DB) listEvents(ctx context.Context, t eventTable, projectID, itemID uuid.UUID) ([]model.ItemEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, `+t.itemCol+`, project_id, event_type, data, created_at
		 FROM `+t.table+` WHERE project_id = $1 AND `+t.itemCol+` = $2
		 ORDER BY created_at ASC, id ASC`,
		projectID, itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", t.table, err)
	}
	defer rows.Close()

	events := []model.ItemEvent{}
	for rows.Next() {
		var e model.ItemEvent
		if err := rows.Scan(&e.ID, &e.ItemID, &e.ProjectID, &e.EventType, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan %s: %w", t.table, err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListFactEvents returns a fact's events, oldest first.
func (db *DB) ListFactEvents(ctx context.Context, projectID, factID uuid.UUID) ([]model.ItemEvent, error) {
	return db.listEvents(ctx, factEvents, projectID, factID)
}

// ListDecisionEvents returns a decision's events, oldest first.
func (db *DB) ListDecisionEvents(ctx context.Context, projectID, decisionID uuid.UUID) ([]model.ItemEvent, error) {
	return db.listEvents(ctx, decisionEvents, projectID, decisionID)
}

// CountEventsByType counts events of one type across a project's items of
// the given kind.
func (db *DB) CountEventsByType(ctx context.Context, projectID uuid.UUID, kind model.ItemKind, eventType model.EventType) (int, error) {
	t, err := eventTableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM `+t.table+` WHERE project_id = $1 AND event_type = $2`,
		projectID, string(eventType),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count %s: %w", t.table, err)
	}
	return n, nil
}
