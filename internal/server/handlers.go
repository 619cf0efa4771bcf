package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/kioku/internal/auth"
	"github.com/ashita-ai/kioku/internal/model"
	"github.com/ashita-ai/kioku/internal/service/knowledge"
	"github.com/ashita-ai/kioku/internal/storage"
)

// defaultProjectName is the project the bootstrap admin is seeded into.
const defaultProjectName = "default"

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	knowledge           *knowledge.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	Knowledge           *knowledge.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		knowledge:           d.Knowledge,
		logger:              logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: maxBody,
	}
}

// upgradeKeyHash re-hashes a verified key with the current Argon2id cost.
// Failure leaves the old hash in place, which still verifies.
func (h *Handlers) upgradeKeyHash(ctx context.Context, member model.Member, apiKey string) {
	hash, err := auth.HashAPIKey(apiKey)
	if err == nil {
		err = h.db.UpdateMemberKeyHash(ctx, member.ID, hash)
	}
	if err != nil {
		h.logger.Warn("auth: key hash upgrade failed", "member", member.Name, "error", err)
		return
	}
	h.logger.Info("auth: key hash upgraded", "member", member.Name)
}

// HandleAuthToken handles POST /auth/token.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	member, err := h.db.GetMemberByName(r.Context(), req.Name)
	if err != nil || member.APIKeyHash == nil {
		// Equalize timing with the verify path so member names can't be probed.
		auth.DummyVerify()
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.logger.Error("auth: member lookup failed", "error", err)
		}
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, *member.APIKeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	if auth.NeedsRehash(*member.APIKeyHash) {
		h.upgradeKeyHash(r.Context(), member, req.APIKey)
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(member)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	h.logger.Info("auth: token issued", "member", member.Name, "project_id", member.ProjectID, "ip", r.RemoteAddr)
	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	oracle := "disabled"
	if h.knowledge != nil && h.knowledge.Engine().OracleConfigured() {
		oracle = "configured"
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Oracle:   oracle,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

// SeedAdmin creates the default project and an admin member holding
// adminAPIKey when no members exist yet.
func (h *Handlers) SeedAdmin(ctx context.Context, adminAPIKey string) error {
	count, err := h.db.CountMembers(ctx)
	if err != nil {
		return fmt.Errorf("seed admin: count members: %w", err)
	}
	if adminAPIKey == "" {
		if count == 0 {
			return fmt.Errorf("seed admin: KIOKU_ADMIN_API_KEY is empty and no members exist; set KIOKU_ADMIN_API_KEY to bootstrap initial admin access")
		}
		h.logger.Info("no admin API key configured, skipping admin seed", "existing_members", count)
		return nil
	}
	if count > 0 {
		h.logger.Info("members table not empty, skipping admin seed")
		return nil
	}

	hash, err := auth.HashAPIKey(adminAPIKey)
	if err != nil {
		return fmt.Errorf("seed admin: hash key: %w", err)
	}

	project, _, err := h.db.CreateProjectWithMember(ctx,
		model.Project{Name: defaultProjectName},
		model.Member{Name: "admin", Role: model.RoleAdmin, APIKeyHash: &hash},
	)
	if errors.Is(err, storage.ErrDuplicate) {
		// Another replica won the race.
		h.logger.Info("admin already seeded by another instance")
		return nil
	}
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	h.logger.Info("seeded initial admin member", "project_id", project.ID)
	return nil
}

// writeInternalError logs err and writes a generic 500.
func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "path", r.URL.Path)
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// writeServiceError maps service and storage sentinel errors to HTTP status codes.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, knowledge.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "not found")
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "already exists")
	default:
		h.writeInternalError(w, r, msg, err)
	}
}

// parseIDParam reads a UUID path parameter.
func parseIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}
