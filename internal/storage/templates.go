package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/kioku/internal/model"
)

// GetPromptTemplate returns the admin template stored under key, or
// (nil, nil) when none is stored.
func (db *DB) GetPromptTemplate(ctx context.Context, key string) (*model.PromptTemplate, error) {
	var (
		t         model.PromptTemplate
		updatedBy *string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT key, prompt_template, updated_by, updated_at FROM prompt_templates WHERE key = $1`, key,
	).Scan(&t.Key, &t.PromptTemplate, &updatedBy, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: get prompt template %q: %w", key, err)
	}
	if updatedBy != nil {
		t.UpdatedBy = *updatedBy
	}
	return &t, nil
}

// UpsertPromptTemplate creates or replaces the template stored under t.Key.
func (db *DB) UpsertPromptTemplate(ctx context.Context, t model.PromptTemplate) (model.PromptTemplate, error) {
	err := db.pool.QueryRow(ctx,
		`INSERT INTO prompt_templates (key, prompt_template, updated_by, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (key) DO UPDATE
		 SET prompt_template = EXCLUDED.prompt_template,
		     updated_by = EXCLUDED.updated_by,
		     updated_at = EXCLUDED.updated_at
		 RETURNING updated_at`,
		t.Key, t.PromptTemplate, t.UpdatedBy,
	).Scan(&t.UpdatedAt)
	if err != nil {
		return model.PromptTemplate{}, fmt.Errorf("storage: upsert prompt template %q: %w", t.Key, err)
	}
	return t, nil
}

// ListPromptTemplates returns every stored template ordered by key.
func (db *DB) ListPromptTemplates(ctx context.Context) ([]model.PromptTemplate, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT key, prompt_template, coalesce(updated_by, ''), updated_at FROM prompt_templates ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("storage: list prompt templates: %w", err)
	}
	defer rows.Close()

	templates := []model.PromptTemplate{}
	for rows.Next() {
		var t model.PromptTemplate
		if err := rows.Scan(&t.Key, &t.PromptTemplate, &t.UpdatedBy, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan prompt template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}
