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

// CreateProject inserts a new project. Returns ErrDuplicate when the name is
// already taken.
func (db *DB) CreateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO projects (id, name, created_at) VALUES ($1, $2, $3)`,
		p.ID, p.Name, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Project{}, fmt.Errorf("storage: project %q: %w", p.Name, ErrDuplicate)
		}
		return model.Project{}, fmt.Errorf("storage: create project: %w", err)
	}
	return p, nil
}

// GetProject returns a project by ID.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, fmt.Errorf("storage: project %s: %w", id, ErrNotFound)
		}
		return model.Project{}, fmt.Errorf("storage: get project: %w", err)
	}
	return p, nil
}

// GetProjectByName returns a project by its unique name.
func (db *DB) GetProjectByName(ctx context.Context, name string) (model.Project, error) {
	var p model.Project
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM projects WHERE name = $1`, name,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, fmt.Errorf("storage: project %q: %w", name, ErrNotFound)
		}
		return model.Project{}, fmt.Errorf("storage: get project by name: %w", err)
	}
	return p, nil
}

// ListProjects returns every project ordered by creation time.
func (db *DB) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, created_at FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list projects: %w", err)
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListProjectIDs returns the IDs of every project. Used by the periodic
// conflict scan.
func (db *DB) ListProjectIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx, `SELECT id FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list project ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
