package server

import (
	"net/http"

	"github.com/ashita-ai/kioku/internal/conflicts"
	"github.com/ashita-ai/kioku/internal/ctxutil"
	"github.com/ashita-ai/kioku/internal/model"
)

// HandleCreateFact handles POST /v1/facts.
func (h *Handlers) HandleCreateFact(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())

	var req model.CreateFactRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	fact, err := h.knowledge.CreateFact(r.Context(), claims.ProjectID, claims.MemberName, req)
	if err != nil {
		h.writeServiceError(w, r, "failed to create fact", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, fact)
}

// HandleListFacts handles GET /v1/facts.
func (h *Handlers) HandleListFacts(w http.ResponseWriter, r *http.Request) {
	facts, err := h.knowledge.ListFacts(r.Context(), ctxutil.ProjectIDFromContext(r.Context()))
	if err != nil {
		h.writeInternalError(w, r, "failed to list facts", err)
		return
	}
	writeListJSON(w, r, facts, len(facts))
}

// HandleGetFact handles GET /v1/facts/{id}.
func (h *Handlers) HandleGetFact(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	fact, err := h.knowledge.GetFact(r.Context(), ctxutil.ProjectIDFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, "failed to get fact", err)
		return
	}
	writeJSON(w, r, http.StatusOK, fact)
}

// HandleDeleteFact handles DELETE /v1/facts/{id}.
func (h *Handlers) HandleDeleteFact(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := h.knowledge.DeleteFact(r.Context(), ctxutil.ProjectIDFromContext(r.Context()), id); err != nil {
		h.writeServiceError(w, r, "failed to delete fact", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateDecision handles POST /v1/decisions.
func (h *Handlers) HandleCreateDecision(w http.ResponseWriter, r *http.Request) {
	claims := ctxutil.ClaimsFromContext(r.Context())

	var req model.CreateDecisionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, false); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	decision, err := h.knowledge.CreateDecision(r.Context(), claims.ProjectID, claims.MemberName, req)
	if err != nil {
		h.writeServiceError(w, r, "failed to create decision", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, decision)
}

// HandleListDecisions handles GET /v1/decisions.
func (h *Handlers) HandleListDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.knowledge.ListDecisions(r.Context(), ctxutil.ProjectIDFromContext(r.Context()))
	if err != nil {
		h.writeInternalError(w, r, "failed to list decisions", err)
		return
	}
	writeListJSON(w, r, decisions, len(decisions))
}

// HandleGetDecision handles GET /v1/decisions/{id}.
func (h *Handlers) HandleGetDecision(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	decision, err := h.knowledge.GetDecision(r.Context(), ctxutil.ProjectIDFromContext(r.Context()), id)
	if err != nil {
		h.writeServiceError(w, r, "failed to get decision", err)
		return
	}
	writeJSON(w, r, http.StatusOK, decision)
}

// HandleDeleteDecision handles DELETE /v1/decisions/{id}.
func (h *Handlers) HandleDeleteDecision(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	if err := h.knowledge.DeleteDecision(r.Context(), ctxutil.ProjectIDFromContext(r.Context()), id); err != nil {
		h.writeServiceError(w, r, "failed to delete decision", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleItemEvents returns a handler for GET /v1/{facts|decisions}/{id}/events.
func (h *Handlers) HandleItemEvents(kind model.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := parseIDParam(r, "id")
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
			return
		}
		events, err := h.knowledge.ListEvents(r.Context(), ctxutil.ProjectIDFromContext(r.Context()), kind, id)
		if err != nil {
			h.writeServiceError(w, r, "failed to list events", err)
			return
		}
		writeListJSON(w, r, events, len(events))
	}
}

// HandleCheckConflicts returns a handler for
// POST /v1/{facts|decisions}/check-conflicts. The body is optional. The
// response is always 200 once the run starts; detection failures are carried
// in the result's error field.
func (h *Handlers) HandleCheckConflicts(kind model.ItemKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req model.CheckConflictsRequest
		if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes, true); err != nil {
			handleDecodeError(w, r, err)
			return
		}

		opts := conflicts.DefaultOptions()
		if req.RecordEvents != nil {
			opts.RecordEvents = *req.RecordEvents
		}

		result, err := h.knowledge.CheckConflicts(r.Context(), ctxutil.ProjectIDFromContext(r.Context()), kind, opts)
		if err != nil {
			h.writeServiceError(w, r, "failed to check conflicts", err)
			return
		}
		writeJSON(w, r, http.StatusOK, result)
	}
}
