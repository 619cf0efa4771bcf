package conflicts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/kioku/internal/model"
)

type fakeTemplateStore map[string]string

func (f fakeTemplateStore) GetPromptTemplate(_ context.Context, key string) (*model.PromptTemplate, error) {
	tmpl, ok := f[key]
	if !ok {
		return nil, nil
	}
	return &model.PromptTemplate{Key: key, PromptTemplate: tmpl}, nil
}

type failingTemplateStore struct{}

func (failingTemplateStore) GetPromptTemplate(context.Context, string) (*model.PromptTemplate, error) {
	return nil, errors.New("relation does not exist")
}

func TestBuildItemsBlock(t *testing.T) {
	items := []Item{
		{ID: uuid.New(), Content: "Auth uses JWT", Category: "security"},
		{ID: uuid.New(), Content: "Ship weekly", Status: "accepted", Owner: "release"},
		{ID: uuid.New(), Content: "Plain"},
	}
	got := BuildItemsBlock(items)
	want := "[1] Auth uses JWT (Category: security)\n" +
		"[2] Ship weekly (Status: accepted) (Owner: release)\n" +
		"[3] Plain"
	assert.Equal(t, want, got)
}

func TestBuildItemsBlock_Empty(t *testing.T) {
	assert.Empty(t, BuildItemsBlock(nil))
}

func TestRenderPrompt_SubstitutesAllPlaceholders(t *testing.T) {
	got := RenderPrompt("A {{items}} B {{items}}", model.KindFact, "X")
	assert.Equal(t, "A X B X", got)
}

func TestRenderPrompt_KindAlias(t *testing.T) {
	assert.Equal(t, "D: X", RenderPrompt("D: {{decisions}}", model.KindDecision, "X"))
	assert.Equal(t, "F: X", RenderPrompt("F: {{facts}}", model.KindFact, "X"))
}

func TestRenderPrompt_AppendsWhenPlaceholderMissing(t *testing.T) {
	got := RenderPrompt("Find contradictions.\n", model.KindFact, "[1] a\n[2] b")
	assert.Equal(t, "Find contradictions.\n\n[1] a\n[2] b", got)
}

func TestDefaultTemplate(t *testing.T) {
	for _, kind := range []model.ItemKind{model.KindFact, model.KindDecision} {
		tmpl := DefaultTemplate(kind)
		assert.Contains(t, tmpl, PlaceholderItems)
		assert.Contains(t, tmpl, "first_index")
		assert.Contains(t, tmpl, "second_index")
		assert.Contains(t, tmpl, "conflict_reason")
		assert.Contains(t, tmpl, "[]")
		assert.Contains(t, tmpl, "different topics")
		assert.Contains(t, tmpl, "ONLY the JSON array")
		assert.Contains(t, tmpl, string(kind)+"s")
	}
	assert.True(t, strings.Contains(DefaultTemplate(model.KindDecision), "Decisions:"))
}

func TestTemplateResolver(t *testing.T) {
	ctx := context.Background()

	tmpl, src := NewTemplateResolver(nil, testLogger()).Resolve(ctx, model.KindFact, FlowFactCheck)
	assert.Equal(t, SourceDefault, src)
	assert.Equal(t, DefaultTemplate(model.KindFact), tmpl)

	store := fakeTemplateStore{FlowFactCheck: "custom {{items}}", FlowDecisionCheck: "   "}
	r := NewTemplateResolver(store, testLogger())

	tmpl, src = r.Resolve(ctx, model.KindFact, FlowFactCheck)
	assert.Equal(t, SourceStore, src)
	assert.Equal(t, "custom {{items}}", tmpl)

	// Blank stored template falls back.
	_, src = r.Resolve(ctx, model.KindDecision, FlowDecisionCheck)
	assert.Equal(t, SourceDefault, src)

	// Store errors fall back.
	_, src = NewTemplateResolver(failingTemplateStore{}, testLogger()).Resolve(ctx, model.KindFact, FlowFactCheck)
	assert.Equal(t, SourceDefault, src)
}
