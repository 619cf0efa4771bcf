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

const memberColumns = `id, project_id, name, role, api_key_hash, created_at`

func scanMember(row pgx.Row) (model.Member, error) {
	var m model.Member
	err := row.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Role, &m.APIKeyHash, &m.CreatedAt)
	return m, err
}

// CreateMember inserts a new member. Returns ErrDuplicate when the name is
// already taken.
func (db *DB) CreateMember(ctx context.Context, m model.Member) (model.Member, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO members (id, project_id, name, role, api_key_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ProjectID, m.Name, string(m.Role), m.APIKeyHash, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Member{}, fmt.Errorf("storage: member %q: %w", m.Name, ErrDuplicate)
		}
		return model.Member{}, fmt.Errorf("storage: create member: %w", err)
	}
	return m, nil
}

// GetMemberByName returns a member by its globally unique name.
func (db *DB) GetMemberByName(ctx context.Context, name string) (model.Member, error) {
	m, err := scanMember(db.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Member{}, fmt.Errorf("storage: member %q: %w", name, ErrNotFound)
		}
		return model.Member{}, fmt.Errorf("storage: get member: %w", err)
	}
	return m, nil
}

// UpdateMemberKeyHash replaces a member's stored API key hash.
func (db *DB) UpdateMemberKeyHash(ctx context.Context, id uuid.UUID, hash string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE members SET api_key_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("storage: update member key hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: member %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListMembers returns the members of a project ordered by creation time.
func (db *DB) ListMembers(ctx context.Context, projectID uuid.UUID) ([]model.Member, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM members WHERE project_id = $1 ORDER BY created_at ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers returns the number of members across all projects.
func (db *DB) CountMembers(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT count(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count members: %w", err)
	}
	return n, nil
}

// CreateProjectWithMember creates a project and its first member in one
// transaction, retrying on serialization failures. Used to seed the admin
// principal on first boot.
func (db *DB) CreateProjectWithMember(ctx context.Context, p model.Project, m model.Member) (model.Project, model.Member, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, m.CreatedAt = now, now
	m.ProjectID = p.ID

	err := db.serializableTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO projects (id, name, created_at) VALUES ($1, $2, $3)`,
			p.ID, p.Name, p.CreatedAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO members (id, project_id, name, role, api_key_hash, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			m.ID, m.ProjectID, m.Name, string(m.Role), m.APIKeyHash, m.CreatedAt,
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return model.Project{}, model.Member{}, fmt.Errorf("storage: seed project %q: %w", p.Name, ErrDuplicate)
		}
		return model.Project{}, model.Member{}, fmt.Errorf("storage: seed project: %w", err)
	}
	return p, m, nil
}
