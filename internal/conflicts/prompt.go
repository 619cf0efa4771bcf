package conflicts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashita-ai/kioku/internal/model"
)

// PlaceholderItems is replaced with the numbered item block when rendering
// a template. Kind-specific aliases ({{facts}}, {{decisions}}) are also
// accepted so admin templates can use the natural noun.
const PlaceholderItems = "{{items}}"

// defaultTemplate is the built-in instruction used when no admin template is
// stored for a flow. %[1]s is the singular noun, %[2]s the capitalized plural.
const defaultTemplate = `You are reviewing the recorded %[1]ss of a project to find contradictions.

%[2]s:
{{items}}

A contradiction exists only when two %[1]ss make incompatible claims about the same
specific topic, so that both cannot be true at the same time. Different information
about different topics is NOT a contradiction. Additions, refinements, and statements
about different aspects of the same topic are NOT contradictions.

Respond with a JSON array. Each element must be an object with exactly these fields:
- "first_index": the bracketed number of the first conflicting %[1]s
- "second_index": the bracketed number of the second conflicting %[1]s
- "conflict_reason": one sentence explaining why the two cannot both hold

If there are no contradictions, respond with an empty array: []

Output ONLY the JSON array. Do not include any other text.`

// DefaultTemplate returns the built-in template for kind.
func DefaultTemplate(kind model.ItemKind) string {
	noun := string(kind)
	plural := strings.ToUpper(noun[:1]) + noun[1:] + "s"
	return fmt.Sprintf(defaultTemplate, noun, plural)
}

// BuildItemsBlock renders items one per line as "[<n>] <content>" with
// optional metadata suffixes. Positions are 1-based and follow slice order.
func BuildItemsBlock(items []Item) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "[%d] %s", i+1, it.Content)
		if it.Category != "" {
			fmt.Fprintf(&sb, " (Category: %s)", it.Category)
		}
		if it.Status != "" {
			fmt.Fprintf(&sb, " (Status: %s)", it.Status)
		}
		if it.Owner != "" {
			fmt.Fprintf(&sb, " (Owner: %s)", it.Owner)
		}
	}
	return sb.String()
}

// RenderPrompt substitutes the item block into tmpl. A template with no
// placeholder gets the block appended after a blank line so the oracle
// always sees the items.
func RenderPrompt(tmpl string, kind model.ItemKind, block string) string {
	placeholders := []string{PlaceholderItems, "{{" + string(kind) + "s}}"}
	found := false
	for _, p := range placeholders {
		if strings.Contains(tmpl, p) {
			tmpl = strings.ReplaceAll(tmpl, p, block)
			found = true
		}
	}
	if !found {
		return strings.TrimRight(tmpl, "\n") + "\n\n" + block
	}
	return tmpl
}

// TemplateStore looks up admin-edited prompt templates by key. A missing
// template is reported as (nil, nil).
type TemplateStore interface {
	GetPromptTemplate(ctx context.Context, key string) (*model.PromptTemplate, error)
}

// TemplateSource reports which tier supplied a template.
type TemplateSource string

const (
	SourceStore   TemplateSource = "store"
	SourceDefault TemplateSource = "default"
)

// TemplateResolver picks the prompt template for a flow: the stored admin
// template when present and non-empty, otherwise the built-in default.
type TemplateResolver struct {
	store  TemplateStore // nil means defaults only
	logger *slog.Logger
}

// NewTemplateResolver creates a resolver. store may be nil.
func NewTemplateResolver(store TemplateStore, logger *slog.Logger) *TemplateResolver {
	return &TemplateResolver{store: store, logger: logger}
}

// Resolve returns the template text for flow and where it came from.
// Store errors fall back to the default and are logged, never returned.
func (r *TemplateResolver) Resolve(ctx context.Context, kind model.ItemKind, flow string) (string, TemplateSource) {
	if r != nil && r.store != nil {
		t, err := r.store.GetPromptTemplate(ctx, flow)
		switch {
		case err != nil:
			r.logger.Warn("conflicts: template lookup failed, using default", "flow", flow, "error", err)
		case t != nil && strings.TrimSpace(t.PromptTemplate) != "":
			return t.PromptTemplate, SourceStore
		}
	}
	return DefaultTemplate(kind), SourceDefault
}
