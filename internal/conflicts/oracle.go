package conflicts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashita-ai/kioku/internal/llm"
)

// Sampling parameters for contradiction checks. Low temperature keeps the
// oracle's verdicts repeatable across runs over the same items.
const (
	oracleTemperature = 0.1
	oracleMaxTokens   = 2048
)

// Oracle asks the configured LLM for contradiction candidates.
type Oracle struct {
	gen llm.Generator
	sel *llm.Selection
}

// NewOracle returns an Oracle, or nil when no generator or selection is
// configured. A nil *Oracle is the "no oracle" state.
func NewOracle(gen llm.Generator, sel *llm.Selection) *Oracle {
	if gen == nil || sel == nil || sel.Provider == "" || sel.Model == "" {
		return nil
	}
	return &Oracle{gen: gen, sel: sel}
}

// Ask sends prompt in a single attempt and returns the raw response text.
func (o *Oracle) Ask(ctx context.Context, flow, prompt string) (string, error) {
	res := o.gen.GenerateText(ctx, llm.GenerateRequest{
		Provider:       o.sel.Provider,
		ProviderConfig: o.sel.ProviderConfig,
		Model:          o.sel.Model,
		Prompt:         prompt,
		Temperature:    oracleTemperature,
		MaxTokens:      oracleMaxTokens,
		Context:        flow,
	})
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "generation failed"
		}
		return "", fmt.Errorf("conflicts: oracle %s/%s: %w", o.sel.Provider, o.sel.Model, errors.New(msg))
	}
	return res.Text, nil
}

// Label identifies the provider and model for logs.
func (o *Oracle) Label() string {
	return o.sel.Provider + "/" + o.sel.Model
}
