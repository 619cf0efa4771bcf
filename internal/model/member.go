package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role represents the RBAC role assigned to a member.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Member is an API principal scoped to one project.
type Member struct {
	ID         uuid.UUID `json:"id"`
	ProjectID  uuid.UUID `json:"project_id"`
	Name       string    `json:"name"`
	Role       Role      `json:"role"`
	APIKeyHash *string   `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// RoleRank returns the numeric rank of a role (higher = more privileges).
func RoleRank(r Role) int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// RoleAtLeast returns true if role r has at least the privileges of minRole.
func RoleAtLeast(r, minRole Role) bool {
	return RoleRank(r) >= RoleRank(minRole)
}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r Role) bool {
	return RoleRank(r) > 0
}

// ValidateMemberName checks that a member name is 1-255 ASCII characters:
// alphanumeric, dots, hyphens, underscores, and @ signs.
func ValidateMemberName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("name is required")
	}
	if len(name) > 255 {
		return fmt.Errorf("name must be at most 255 characters")
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != '@' {
			return fmt.Errorf("name contains invalid character at position %d: %q", i, c)
		}
	}
	return nil
}
