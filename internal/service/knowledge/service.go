// Package knowledge holds the fact and decision business logic shared by the
// HTTP and MCP handlers, including on-demand contradiction checks.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kioku/internal/conflicts"
	"github.com/ashita-ai/kioku/internal/model"
	"github.com/ashita-ai/kioku/internal/storage"
	"github.com/ashita-ai/kioku/internal/telemetry"
)

// ErrInvalidInput wraps request validation failures.
var ErrInvalidInput = errors.New("invalid input")

// Service encapsulates knowledge-item operations.
type Service struct {
	db     *storage.DB
	engine *conflicts.Engine
	logger *slog.Logger

	itemsCreated metric.Int64Counter
}

// New creates a knowledge Service.
func New(db *storage.DB, engine *conflicts.Engine, logger *slog.Logger) *Service {
	meter := telemetry.Meter("kioku/knowledge")
	created, _ := meter.Int64Counter("kioku.items.created",
		metric.WithDescription("Facts and decisions recorded"),
	)
	return &Service{db: db, engine: engine, logger: logger, itemsCreated: created}
}

// Engine returns the conflict detection engine.
func (s *Service) Engine() *conflicts.Engine {
	return s.engine
}

// CreateFact validates and stores a fact.
func (s *Service) CreateFact(ctx context.Context, projectID uuid.UUID, createdBy string, req model.CreateFactRequest) (model.Fact, error) {
	if err := model.ValidateCreateFact(req); err != nil {
		return model.Fact{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	f, err := s.db.CreateFact(ctx, model.Fact{
		ProjectID: projectID,
		Content:   req.Content,
		Category:  req.Category,
		Source:    req.Source,
		CreatedBy: createdBy,
	})
	if err != nil {
		return model.Fact{}, err
	}
	s.afterCreate(ctx, model.KindFact, projectID, f.ID)
	return f, nil
}

// CreateDecision validates and stores a decision.
func (s *Service) CreateDecision(ctx context.Context, projectID uuid.UUID, createdBy string, req model.CreateDecisionRequest) (model.Decision, error) {
	if err := model.ValidateCreateDecision(req); err != nil {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	d, err := s.db.CreateDecision(ctx, model.Decision{
		ProjectID: projectID,
		Content:   req.Content,
		Status:    req.Status,
		Owner:     req.Owner,
		Rationale: req.Rationale,
		CreatedBy: createdBy,
	})
	if err != nil {
		return model.Decision{}, err
	}
	s.afterCreate(ctx, model.KindDecision, projectID, d.ID)
	return d, nil
}

func (s *Service) afterCreate(ctx context.Context, kind model.ItemKind, projectID, itemID uuid.UUID) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("kioku.item_kind", string(kind)),
		attribute.String("kioku.item_id", itemID.String()),
	)
	s.itemsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	s.notifyKnowledge(ctx, kind, projectID, itemID, "created")
}

// ListFacts returns every fact in a project, oldest first.
func (s *Service) ListFacts(ctx context.Context, projectID uuid.UUID) ([]model.Fact, error) {
	return s.db.GetFacts(ctx, projectID)
}

// ListDecisions returns every decision in a project, oldest first.
func (s *Service) ListDecisions(ctx context.Context, projectID uuid.UUID) ([]model.Decision, error) {
	return s.db.GetDecisions(ctx, projectID)
}

// GetFact returns one fact.
func (s *Service) GetFact(ctx context.Context, projectID, id uuid.UUID) (model.Fact, error) {
	return s.db.GetFact(ctx, projectID, id)
}

// GetDecision returns one decision.
func (s *Service) GetDecision(ctx context.Context, projectID, id uuid.UUID) (model.Decision, error) {
	return s.db.GetDecision(ctx, projectID, id)
}

// DeleteFact removes a fact and its event log.
func (s *Service) DeleteFact(ctx context.Context, projectID, id uuid.UUID) error {
	if err := s.db.DeleteFact(ctx, projectID, id); err != nil {
		return err
	}
	s.notifyKnowledge(ctx, model.KindFact, projectID, id, "deleted")
	return nil
}

// DeleteDecision removes a decision and its event log.
func (s *Service) DeleteDecision(ctx context.Context, projectID, id uuid.UUID) error {
	if err := s.db.DeleteDecision(ctx, projectID, id); err != nil {
		return err
	}
	s.notifyKnowledge(ctx, model.KindDecision, projectID, id, "deleted")
	return nil
}

// ListEvents returns the event log of one item. The item must exist in the
// project.
func (s *Service) ListEvents(ctx context.Context, projectID uuid.UUID, kind model.ItemKind, id uuid.UUID) ([]model.ItemEvent, error) {
	switch kind {
	case model.KindFact:
		if _, err := s.db.GetFact(ctx, projectID, id); err != nil {
			return nil, err
		}
		return s.db.ListFactEvents(ctx, projectID, id)
	case model.KindDecision:
		if _, err := s.db.GetDecision(ctx, projectID, id); err != nil {
			return nil, err
		}
		return s.db.ListDecisionEvents(ctx, projectID, id)
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", ErrInvalidInput, kind)
	}
}

// Adapter returns the conflict-detection adapter for kind bound to projectID.
func (s *Service) Adapter(projectID uuid.UUID, kind model.ItemKind) (conflicts.ItemAdapter, error) {
	switch kind {
	case model.KindFact:
		return conflicts.NewFactAdapter(s.db, projectID), nil
	case model.KindDecision:
		return conflicts.NewDecisionAdapter(s.db, projectID), nil
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", ErrInvalidInput, kind)
	}
}

// CheckConflicts runs contradiction detection over every item of kind in the
// project. Detection failures are reported in the result, not as an error;
// the error return is reserved for an unknown kind.
func (s *Service) CheckConflicts(ctx context.Context, projectID uuid.UUID, kind model.ItemKind, opts conflicts.Options) (model.DetectionResult, error) {
	adapter, err := s.Adapter(projectID, kind)
	if err != nil {
		return model.DetectionResult{}, err
	}
	res := s.engine.Run(ctx, adapter, opts)
	if res.EventsRecorded > 0 {
		if err := s.db.NotifyJSON(ctx, storage.ChannelConflicts, storage.ConflictNotification{
			ProjectID:      projectID,
			ItemType:       string(kind),
			Conflicts:      len(res.Conflicts),
			EventsRecorded: res.EventsRecorded,
		}); err != nil {
			s.logger.Warn("knowledge: conflict notify failed", "project_id", projectID, "error", err)
		}
	}
	return res, nil
}

// ScanAllProjects runs a conflict check for both item kinds in every project.
// Projects are processed sequentially; a cancelled ctx stops the scan.
func (s *Service) ScanAllProjects(ctx context.Context) error {
	ids, err := s.db.ListProjectIDs(ctx)
	if err != nil {
		return fmt.Errorf("knowledge: scan: %w", err)
	}
	for _, id := range ids {
		for _, kind := range []model.ItemKind{model.KindFact, model.KindDecision} {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := s.CheckConflicts(ctx, id, kind, conflicts.DefaultOptions())
			switch {
			case err != nil:
				s.logger.Warn("knowledge: scheduled conflict check failed",
					"project_id", id, "item_type", kind, "error", err)
			case res.Error != "":
				s.logger.Warn("knowledge: scheduled conflict check failed",
					"project_id", id, "item_type", kind, "error", res.Error)
			}
		}
	}
	return nil
}

func (s *Service) notifyKnowledge(ctx context.Context, kind model.ItemKind, projectID, itemID uuid.UUID, action string) {
	if err := s.db.NotifyJSON(ctx, storage.ChannelKnowledge, storage.KnowledgeNotification{
		ProjectID: projectID,
		ItemType:  string(kind),
		ItemID:    itemID,
		Action:    action,
	}); err != nil {
		s.logger.Warn("knowledge: notify failed", "project_id", projectID, "item_id", itemID, "error", err)
	}
}
