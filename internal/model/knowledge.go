// Package model defines the domain types shared across Kioku packages.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ItemKind identifies a knowledge item collection.
type ItemKind string

const (
	KindFact     ItemKind = "fact"
	KindDecision ItemKind = "decision"
)

// ParseItemKind accepts singular or plural spellings ("fact", "facts").
func ParseItemKind(s string) (ItemKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fact", "facts":
		return KindFact, nil
	case "decision", "decisions":
		return KindDecision, nil
	default:
		return "", fmt.Errorf("unknown item type %q (expected fact or decision)", s)
	}
}

// Field length limits for knowledge items. Content flows verbatim into
// conflict-detection prompts, so oversized rows inflate every future run.
const (
	MaxContentLen  = 32 * 1024 // 32 KB
	MaxCategoryLen = 200
	MaxStatusLen   = 64
	MaxOwnerLen    = 255
	MaxSourceLen   = 2048
)

// Project scopes knowledge items and members.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Fact is a recorded statement about the world.
type Fact struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Content   string    `json:"content"`
	Category  *string   `json:"category,omitempty"`
	Source    *string   `json:"source,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Decision is a recorded choice made within a project.
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

// CreateFactRequest is the request body for POST /v1/facts.
type CreateFactRequest struct {
	Content  string  `json:"content"`
	Category *string `json:"category,omitempty"`
	Source   *string `json:"source,omitempty"`
}

// CreateDecisionRequest is the request body for POST /v1/decisions.
type CreateDecisionRequest struct {
	Content   string  `json:"content"`
	Status    *string `json:"status,omitempty"`
	Owner     *string `json:"owner,omitempty"`
	Rationale *string `json:"rationale,omitempty"`
}

// ValidateCreateFact checks required fields and per-field length limits.
func ValidateCreateFact(req CreateFactRequest) error {
	if err := validateContent(req.Content); err != nil {
		return err
	}
	if err := validateOptional("category", req.Category, MaxCategoryLen); err != nil {
		return err
	}
	return validateOptional("source", req.Source, MaxSourceLen)
}

// ValidateCreateDecision checks required fields and per-field length limits.
func ValidateCreateDecision(req CreateDecisionRequest) error {
	if err := validateContent(req.Content); err != nil {
		return err
	}
	if err := validateOptional("status", req.Status, MaxStatusLen); err != nil {
		return err
	}
	if err := validateOptional("owner", req.Owner, MaxOwnerLen); err != nil {
		return err
	}
	return validateOptional("rationale", req.Rationale, MaxContentLen)
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is required")
	}
	if len(content) > MaxContentLen {
		return fmt.Errorf("content exceeds maximum length of %d bytes", MaxContentLen)
	}
	return nil
}

func validateOptional(field string, v *string, maxLen int) error {
	if v != nil && len(*v) > maxLen {
		return fmt.Errorf("%s exceeds maximum length of %d characters", field, maxLen)
	}
	return nil
}
