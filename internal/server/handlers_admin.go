package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/kioku/internal/auth"
	"github.com/ashita-ai/kioku/internal/ctxutil"
	"github.com/ashita-ai/kioku/internal/model"
	"github.com/ashita-ai/kioku/internal/storage"
)

// maxTemplateLen caps stored prompt templates; the rendered prompt also
// carries every item in the project.
const maxTemplateLen = 16 * 1024

// HandleCreateMember handles POST /v1/members (admin-only).
func (h *Handlers) HandleCreateMember(w http.ResponseWriter, r *http.Request) {
	var req model.CreateMemberRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	if err := model.ValidateMemberName(req.Name); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "api_key is required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleEditor
	}
	if !model.ValidRole(req.Role) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput,
			"invalid role: must be one of admin, editor, viewer")
		return
	}

	projectID := ctxutil.ProjectIDFromContext(r.Context())
	if req.ProjectID != nil && *req.ProjectID != uuid.Nil {
		projectID = *req.ProjectID
		if _, err := h.db.GetProject(r.Context(), projectID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "project_id does not exist")
				return
			}
			h.writeInternalError(w, r, "failed to look up project", err)
			return
		}
	}

	hash, err := auth.HashAPIKey(req.APIKey)
	if err != nil {
		h.writeInternalError(w, r, "failed to hash api key", err)
		return
	}

	member, err := h.db.CreateMember(r.Context(), model.Member{
		ProjectID:  projectID,
		Name:       req.Name,
		Role:       req.Role,
		APIKeyHash: &hash,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "member name already exists")
			return
		}
		h.writeInternalError(w, r, "failed to create member", err)
		return
	}

	h.logger.Info("member created",
		"member", member.Name, "role", member.Role, "project_id", member.ProjectID,
		"created_by", ctxutil.ClaimsFromContext(r.Context()).MemberName)
	writeJSON(w, r, http.StatusCreated, member)
}

// HandleListMembers handles GET /v1/members (admin-only).
func (h *Handlers) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.db.ListMembers(r.Context(), ctxutil.ProjectIDFromContext(r.Context()))
	if err != nil {
		h.writeInternalError(w, r, "failed to list members", err)
		return
	}
	writeListJSON(w, r, members, len(members))
}

// HandleCreateProject handles POST /v1/projects (admin-only).
func (h *Handlers) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req model.CreateProjectRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := model.ValidateMemberName(req.Name); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	project, err := h.db.CreateProject(r.Context(), model.Project{Name: req.Name})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, r, http.StatusConflict, model.ErrCodeConflict, "project name already exists")
			return
		}
		h.writeInternalError(w, r, "failed to create project", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, project)
}

// HandleListProjects handles GET /v1/projects (admin-only).
func (h *Handlers) HandleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.db.ListProjects(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list projects", err)
		return
	}
	writeListJSON(w, r, projects, len(projects))
}

// HandleListPromptTemplates handles GET /v1/prompt-templates.
func (h *Handlers) HandleListPromptTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.db.ListPromptTemplates(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to list prompt templates", err)
		return
	}
	writeListJSON(w, r, templates, len(templates))
}

// HandleUpsertPromptTemplate handles PUT /v1/prompt-templates/{key} (admin-only).
func (h *Handlers) HandleUpsertPromptTemplate(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := validateTemplateKey(key); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	var req model.UpsertPromptTemplateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.PromptTemplate) == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "prompt_template is required")
		return
	}
	if len(req.PromptTemplate) > maxTemplateLen {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "prompt_template is too long")
		return
	}

	tmpl, err := h.db.UpsertPromptTemplate(r.Context(), model.PromptTemplate{
		Key:            key,
		PromptTemplate: req.PromptTemplate,
		UpdatedBy:      ctxutil.ClaimsFromContext(r.Context()).MemberName,
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to save prompt template", err)
		return
	}
	writeJSON(w, r, http.StatusOK, tmpl)
}

func validateTemplateKey(key string) error {
	if key == "" || len(key) > 128 {
		return errors.New("template key must be 1-128 characters")
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '_' && c != '-' && c != '.' {
			return errors.New("template key may contain only lowercase letters, digits, '_', '-' and '.'")
		}
	}
	return nil
}
