package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kioku/internal/auth"
	"github.com/ashita-ai/kioku/internal/conflicts"
	"github.com/ashita-ai/kioku/internal/ctxutil"
	"github.com/ashita-ai/kioku/internal/model"
	"github.com/ashita-ai/kioku/internal/service/knowledge"
	"github.com/ashita-ai/kioku/internal/storage"
)

func (s *Server) registerTools() {
	// kioku_record_fact: store a fact in the caller's project.
	s.mcpServer.AddTool(
		mcplib.NewTool("kioku_record_fact",
			mcplib.WithDescription(`Record a fact about the project so other agents can rely on it.

WHEN TO USE: after you learn something durable about the system, such as
how a component behaves, a constraint, or a measured number.

State the fact as a single declarative sentence. Run kioku_check_conflicts
with item_type="fact" afterwards to see whether it contradicts anything
already recorded.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("content",
				mcplib.Description("The fact, as a single declarative statement"),
				mcplib.Required(),
			),
			mcplib.WithString("category",
				mcplib.Description("Optional grouping, e.g. architecture, security, performance"),
			),
			mcplib.WithString("source",
				mcplib.Description("Optional provenance: a URL, file path, or document name"),
			),
		),
		s.handleRecordFact,
	)

	// kioku_record_decision: store a decision in the caller's project.
	s.mcpServer.AddTool(
		mcplib.NewTool("kioku_record_decision",
			mcplib.WithDescription(`Record a decision made within the project.

WHEN TO USE: after committing to a course of action, such as choosing a
library, an architecture, a rollout plan, or an owner.

Run kioku_check_conflicts with item_type="decision" afterwards to see
whether it contradicts an earlier decision.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("content",
				mcplib.Description("What was decided, stated concretely"),
				mcplib.Required(),
			),
			mcplib.WithString("status",
				mcplib.Description("Optional lifecycle status, e.g. proposed, accepted, superseded"),
			),
			mcplib.WithString("owner",
				mcplib.Description("Optional owner of the decision"),
			),
			mcplib.WithString("rationale",
				mcplib.Description("Optional reasoning behind the decision"),
			),
		),
		s.handleRecordDecision,
	)

	// kioku_check_conflicts: run contradiction detection over a collection.
	s.mcpServer.AddTool(
		mcplib.NewTool("kioku_check_conflicts",
			mcplib.WithDescription(`Find contradictions among all facts or all decisions in the project.

Every item of the chosen type is compared by a language model. Each
contradiction found is returned with both items and a short reason, and
(unless record_events is false) a conflict_detected event is appended to
both items' history.

A result with an "error" field means detection could not complete; the
conflict list is then empty and does not mean "no contradictions".`),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("item_type",
				mcplib.Description("Which collection to check"),
				mcplib.Enum(string(model.KindFact), string(model.KindDecision)),
				mcplib.Required(),
			),
			mcplib.WithBoolean("record_events",
				mcplib.Description("Append conflict_detected events to both sides of every contradiction (default true)"),
				mcplib.DefaultBool(true),
			),
		),
		s.handleCheckConflicts,
	)

	// kioku_item_events: read the history of one item.
	s.mcpServer.AddTool(
		mcplib.NewTool("kioku_item_events",
			mcplib.WithDescription("List the event history of one fact or decision, oldest first, including conflict_detected events."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("item_type",
				mcplib.Enum(string(model.KindFact), string(model.KindDecision)),
				mcplib.Required(),
			),
			mcplib.WithString("id",
				mcplib.Description("The item's UUID"),
				mcplib.Required(),
			),
		),
		s.handleItemEvents,
	)
}

// requireClaims returns the caller's claims when they hold at least minRole.
func requireClaims(ctx context.Context, minRole model.Role) (*auth.Claims, *mcplib.CallToolResult) {
	claims := ctxutil.ClaimsFromContext(ctx)
	if claims == nil {
		return nil, errorResult("authentication required")
	}
	if !model.RoleAtLeast(claims.Role, minRole) {
		return nil, errorResult(fmt.Sprintf("insufficient permissions: %s role required", minRole))
	}
	return claims, nil
}

func optionalString(request mcplib.CallToolRequest, key string) *string {
	v := request.GetString(key, "")
	if v == "" {
		return nil
	}
	return &v
}

func (s *Server) handleRecordFact(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := requireClaims(ctx, model.RoleEditor)
	if denied != nil {
		return denied, nil
	}

	fact, err := s.knowledge.CreateFact(ctx, claims.ProjectID, claims.MemberName, model.CreateFactRequest{
		Content:  request.GetString("content", ""),
		Category: optionalString(request, "category"),
		Source:   optionalString(request, "source"),
	})
	if err != nil {
		return s.toolError("record fact", err), nil
	}
	return jsonResult(map[string]any{"fact_id": fact.ID, "status": "recorded"}), nil
}

func (s *Server) handleRecordDecision(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := requireClaims(ctx, model.RoleEditor)
	if denied != nil {
		return denied, nil
	}

	decision, err := s.knowledge.CreateDecision(ctx, claims.ProjectID, claims.MemberName, model.CreateDecisionRequest{
		Content:   request.GetString("content", ""),
		Status:    optionalString(request, "status"),
		Owner:     optionalString(request, "owner"),
		Rationale: optionalString(request, "rationale"),
	})
	if err != nil {
		return s.toolError("record decision", err), nil
	}
	return jsonResult(map[string]any{"decision_id": decision.ID, "status": "recorded"}), nil
}

func (s *Server) handleCheckConflicts(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := requireClaims(ctx, model.RoleEditor)
	if denied != nil {
		return denied, nil
	}

	kind, err := model.ParseItemKind(request.GetString("item_type", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	opts := conflicts.Options{RecordEvents: request.GetBool("record_events", true)}

	result, err := s.knowledge.CheckConflicts(ctx, claims.ProjectID, kind, opts)
	if err != nil {
		return s.toolError("check conflicts", err), nil
	}
	// Detection failures travel in result.Error; the tool call itself succeeded.
	return jsonResult(result), nil
}

func (s *Server) handleItemEvents(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, denied := requireClaims(ctx, model.RoleViewer)
	if denied != nil {
		return denied, nil
	}

	kind, err := model.ParseItemKind(request.GetString("item_type", ""))
	if err != nil {
		return errorResult(err.Error()), nil
	}
	id, err := uuid.Parse(request.GetString("id", ""))
	if err != nil {
		return errorResult("id must be a UUID"), nil
	}

	events, err := s.knowledge.ListEvents(ctx, claims.ProjectID, kind, id)
	if err != nil {
		return s.toolError("list events", err), nil
	}
	return jsonResult(events), nil
}

// toolError maps service errors to tool-level error results. Internal errors
// are logged and reported without detail.
func (s *Server) toolError(op string, err error) *mcplib.CallToolResult {
	switch {
	case errors.Is(err, knowledge.ErrInvalidInput):
		return errorResult(err.Error())
	case errors.Is(err, storage.ErrNotFound):
		return errorResult("not found")
	default:
		s.logger.Error("mcp: tool failed", "op", op, "error", err)
		return errorResult(op + " failed")
	}
}
