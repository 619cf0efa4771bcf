package conflicts

import (
	"context"

	"github.com/google/uuid"

	"github.com/ashita-ai/kioku/internal/model"
)

// Item is a knowledge item as seen by the engine. Category, Status, and Owner
// are rendered into the prompt and never affect conflict logic.
type Item struct {
	ID       uuid.UUID
	Content  string
	Category string
	Status   string
	Owner    string
}

// ItemAdapter exposes one item collection of one project to the engine.
type ItemAdapter interface {
	// Kind identifies the collection.
	Kind() model.ItemKind
	// FlowName is the template key and the trigger recorded on events.
	FlowName() string
	// FetchAll returns the complete current item set. Order must be stable
	// for the duration of a run; the oracle refers to items by position.
	FetchAll(ctx context.Context) ([]Item, error)
}

// EventAppender is the optional event-log capability of an adapter.
type EventAppender interface {
	AppendEvent(ctx context.Context, itemID uuid.UUID, eventType model.EventType, data map[string]any) error
}

// FactStore is the storage surface needed to analyze facts.
type FactStore interface {
	GetFacts(ctx context.Context, projectID uuid.UUID) ([]model.Fact, error)
	AppendFactEvent(ctx context.Context, projectID, factID uuid.UUID, eventType model.EventType, data map[string]any) error
}

// DecisionStore is the storage surface needed to analyze decisions.
type DecisionStore interface {
	GetDecisions(ctx context.Context, projectID uuid.UUID) ([]model.Decision, error)
	AppendDecisionEvent(ctx context.Context, projectID, decisionID uuid.UUID, eventType model.EventType, data map[string]any) error
}

// Flow names double as prompt-template keys.
const (
	FlowFactCheck     = "fact_check_conflicts"
	FlowDecisionCheck = "decision_check_conflicts"
)

// FactAdapter adapts a project's facts.
type FactAdapter struct {
	store     FactStore
	projectID uuid.UUID
}

// NewFactAdapter binds store to one project.
func NewFactAdapter(store FactStore, projectID uuid.UUID) *FactAdapter {
	return &FactAdapter{store: store, projectID: projectID}
}

func (a *FactAdapter) Kind() model.ItemKind { return model.KindFact }
func (a *FactAdapter) FlowName() string     { return FlowFactCheck }

func (a *FactAdapter) FetchAll(ctx context.Context) ([]Item, error) {
	facts, err := a.store.GetFacts(ctx, a.projectID)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(facts))
	for i, f := range facts {
		items[i] = Item{ID: f.ID, Content: f.Content, Category: deref(f.Category)}
	}
	return items, nil
}

func (a *FactAdapter) AppendEvent(ctx context.Context, itemID uuid.UUID, eventType model.EventType, data map[string]any) error {
	return a.store.AppendFactEvent(ctx, a.projectID, itemID, eventType, data)
}

// DecisionAdapter adapts a project's decisions.
type DecisionAdapter struct {
	store     DecisionStore
	projectID uuid.UUID
}

// NewDecisionAdapter binds store to one project.
func NewDecisionAdapter(store DecisionStore, projectID uuid.UUID) *DecisionAdapter {
	return &DecisionAdapter{store: store, projectID: projectID}
}

func (a *DecisionAdapter) Kind() model.ItemKind { return model.KindDecision }
func (a *DecisionAdapter) FlowName() string     { return FlowDecisionCheck }

func (a *DecisionAdapter) FetchAll(ctx context.Context) ([]Item, error) {
	decisions, err := a.store.GetDecisions(ctx, a.projectID)
	if err != nil {
		return nil, err
	}
	items := make([]Item, len(decisions))
	for i, d := range decisions {
		items[i] = Item{ID: d.ID, Content: d.Content, Status: deref(d.Status), Owner: deref(d.Owner)}
	}
	return items, nil
}

func (a *DecisionAdapter) AppendEvent(ctx context.Context, itemID uuid.UUID, eventType model.EventType, data map[string]any) error {
	return a.store.AppendDecisionEvent(ctx, a.projectID, itemID, eventType, data)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
