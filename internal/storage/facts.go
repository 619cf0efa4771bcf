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

const factColumns = `id, project_id, content, category, source, created_by, created_at`

func scanFact(row pgx.Row) (model.Fact, error) {
	var f model.Fact
	err := row.Scan(&f.ID, &f.ProjectID, &f.Content, &f.Category, &f.Source, &f.CreatedBy, &f.CreatedAt)
	return f, err
}

// CreateFact inserts a fact together with its "created" event.
func (db *DB) CreateFact(ctx context.Context, f model.Fact) (model.Fact, error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Fact{}, fmt.Errorf("storage: begin create fact tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO facts (id, project_id, content, category, source, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.ProjectID, f.Content, f.Category, f.Source, f.CreatedBy, f.CreatedAt,
	); err != nil {
		return model.Fact{}, fmt.Errorf("storage: create fact: %w", err)
	}
	if err := insertEventTx(ctx, tx, factEvents, f.ProjectID, f.ID, model.EventCreated,
		map[string]any{"created_by": f.CreatedBy}, f.CreatedAt); err != nil {
		return model.Fact{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Fact{}, fmt.Errorf("storage: commit create fact tx: %w", err)
	}
	return f, nil
}

// GetFact returns one fact scoped to a project.
func (db *DB) GetFact(ctx context.Context, projectID, id uuid.UUID) (model.Fact, error) {
	f, err := scanFact(db.pool.QueryRow(ctx,
		`SELECT `+factColumns+` FROM facts WHERE project_id = $1 AND id = $2`, projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Fact{}, fmt.Errorf("storage: fact %s: %w", id, ErrNotFound)
		}
		return model.Fact{}, fmt.Errorf("storage: get fact: %w", err)
	}
	return f, nil
}

// GetFacts returns every fact in a project, oldest first. The order is
// stable so positional references stay valid for the duration of a
// conflict-detection run.
func (db *DB) GetFacts(ctx context.Context, projectID uuid.UUID) ([]model.Fact, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+factColumns+` FROM facts WHERE project_id = $1 ORDER BY created_at ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get facts: %w", err)
	}
	defer rows.Close()

	facts := []model.Fact{}
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// DeleteFact removes a fact. Its events are removed by cascade.
func (db *DB) DeleteFact(ctx context.Context, projectID, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx, `DELETE FROM facts WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return fmt.Errorf("storage: delete fact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: fact %s: %w", id, ErrNotFound)
	}
	return nil
}
