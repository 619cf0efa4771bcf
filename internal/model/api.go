package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// ListResponse is the standard envelope for list endpoints.
type ListResponse struct {
	Data  any          `json:"data"`
	Total int          `json:"total"`
	Meta  ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeConflict      = "CONFLICT"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	Name   string `json:"name"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CreateMemberRequest is the request body for POST /v1/members.
// ProjectID defaults to the caller's project.
type CreateMemberRequest struct {
	Name      string     `json:"name"`
	Role      Role       `json:"role"`
	APIKey    string     `json:"api_key"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
}

// CreateProjectRequest is the request body for POST /v1/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

// PromptTemplate is an admin-editable prompt keyed by flow name.
type PromptTemplate struct {
	Key            string    `json:"key"`
	PromptTemplate string    `json:"prompt_template"`
	UpdatedBy      string    `json:"updated_by,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UpsertPromptTemplateRequest is the request body for PUT /v1/prompt-templates/{key}.
type UpsertPromptTemplateRequest struct {
	PromptTemplate string `json:"prompt_template"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Oracle   string `json:"oracle"`
	Uptime   int64  `json:"uptime_seconds"`
}
