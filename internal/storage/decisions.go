package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kioku/internal/model"
)

const decisionColumns = `id, project_id, content, status, owner, rationale, created_by, created_at`

func scanDecision(row pgx.Row) (model.Decision, error) {
	var d model.Decision
	err := row.Scan(&d.ID, &d.ProjectID, &d.Content, &d.Status, &d.Owner, &d.Rationale, &d.CreatedBy, &d.CreatedAt)
	return d, err
}

// CreateDecision inserts a decision together with its "created" event.
func (db *DB) CreateDecision(ctx context.Context, d model.Decision) (model.Decision, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Decision{}, fmt.Errorf("storage: begin create decision tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO decisions (id, project_id, content, status, owner, rationale, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.ProjectID, d.Content, d.Status, d.Owner, d.Rationale, d.CreatedBy, d.CreatedAt,
	); err != nil {
		return model.Decision{}, fmt.Errorf("storage: create decision: %w", err)
	}
	if err := insertEventTx(ctx, tx, decisionEvents, d.ProjectID, d.ID, model.EventCreated,
		map[string]any{"created_by": d.CreatedBy}, d.CreatedAt); err != nil {
		return model.Decision{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Decision{}, fmt.Errorf("storage: commit create decision tx: %w", err)
	}
	return d, nil
}

// GetDecision returns one decision scoped to a project.
func (db *DB) GetDecision(ctx context.Context, projectID, id uuid.UUID) (model.Decision, error) {
	d, err := scanDecision(db.pool.QueryRow(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE project_id = $1 AND id = $2`, projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Decision{}, fmt.Errorf("storage: decision %s: %w", id, ErrNotFound)
		}
		return model.Decision{}, fmt.Errorf("storage: get decision: %w", err)
	}
	return d, nil
}

// GetDecisions returns every decision in a project, oldest first.
func (db *DB) GetDecisions(ctx context.Context, projectID uuid.UUID) ([]model.Decision, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+decisionColumns+` FROM decisions WHERE project_id = $1 ORDER BY created_at ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get decisions: %w", err)
	}
	defer rows.Close()

	decisions := []model.Decision{}
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// DeleteDecision removes a decision. Its events are removed by cascade.
func (db *DB) DeleteDecision(ctx context.Context, projectID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM decisions WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return fmt.Errorf("storage: delete decision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: decision %s: %w", id, ErrNotFound)
	}
	return nil
}
