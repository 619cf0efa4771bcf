// Package conflicts detects contradictions within a project's knowledge items
// by asking an LLM oracle to compare them, then records a symmetric
// conflict_detected event on both sides of every contradiction it finds.
package conflicts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kioku/internal/llm"
	"github.com/ashita-ai/kioku/internal/model"
	"github.com/ashita-ai/kioku/internal/telemetry"
)

var tracer = otel.Tracer("kioku/conflicts")

// State is the position of a run in the detection state machine.
type State string

const (
	StateNotRun           State = "not_run"
	StateFetching         State = "fetching"
	StateInsufficientData State = "insufficient_data"
	StateNoOracle         State = "no_oracle"
	StateCallingOracle    State = "calling_oracle"
	StateParseFailed      State = "parse_failed"
	StateParsed           State = "parsed"
	StateRecording        State = "recording"
	StateDone             State = "done"
	StateFetchFailed      State = "fetch_failed"
	StateOracleFailed     State = "oracle_failed"
)

// minItems is the smallest collection that can contain a contradiction.
const minItems = 2

// Options tunes a single run.
type Options struct {
	// RecordEvents appends conflict_detected events when the adapter
	// supports it.
	RecordEvents bool
}

// DefaultOptions records events.
func DefaultOptions() Options {
	return Options{RecordEvents: true}
}

// EngineConfig holds the dependencies of an Engine.
type EngineConfig struct {
	Generator llm.Generator
	Selection *llm.Selection // nil disables detection
	Templates TemplateStore  // nil uses built-in templates only
	Logger    *slog.Logger
}

// Engine runs contradiction detection over any ItemAdapter. Safe for
// concurrent use; runs share no mutable state.
type Engine struct {
	oracle    *Oracle
	templates *TemplateResolver
	recorder  *Recorder
	logger    *slog.Logger

	detected metric.Int64Counter
	recorded metric.Int64Counter
	runs     metric.Int64Counter
}

// NewEngine creates an Engine.
func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meter := telemetry.Meter("kioku/conflicts")
	detected, _ := meter.Int64Counter("kioku.conflicts.detected",
		metric.WithDescription("Contradictions reported by the oracle and validated"),
	)
	recorded, _ := meter.Int64Counter("kioku.conflicts.events_recorded",
		metric.WithDescription("conflict_detected events written"),
	)
	runs, _ := meter.Int64Counter("kioku.conflicts.runs",
		metric.WithDescription("Detection runs by final state"),
	)
	return &Engine{
		oracle:    NewOracle(cfg.Generator, cfg.Selection),
		templates: NewTemplateResolver(cfg.Templates, logger),
		recorder:  NewRecorder(logger),
		logger:    logger,
		detected:  detected,
		recorded:  recorded,
		runs:      runs,
	}
}

// OracleConfigured reports whether runs will consult an oracle.
func (e *Engine) OracleConfigured() bool {
	return e.oracle != nil
}

// Run fetches every item from adapter, asks the oracle for contradictions,
// validates the answer, and optionally records events. It never returns an
// error value: every failure is reported through DetectionResult.Error.
func (e *Engine) Run(ctx context.Context, adapter ItemAdapter, opts Options) (result model.DetectionResult) {
	flow := adapter.FlowName()
	ctx, span := tracer.Start(ctx, "conflicts.run")
	span.SetAttributes(
		attribute.String("kioku.flow", flow),
		attribute.String("kioku.item_kind", string(adapter.Kind())),
	)
	start := time.Now()
	state := StateNotRun

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("conflicts: run panicked", "flow", flow, "state", state, "panic", r)
			result = model.DetectionResult{
				Conflicts:     []model.ConflictResult{},
				AnalyzedItems: result.AnalyzedItems,
				Error:         fmt.Sprintf("conflict detection failed: %v", r),
			}
		}
		if result.Conflicts == nil {
			result.Conflicts = []model.ConflictResult{}
		}
		if result.Error != "" {
			span.SetStatus(codes.Error, result.Error)
		}
		span.SetAttributes(
			attribute.String("kioku.state", string(state)),
			attribute.Int("kioku.analyzed_items", result.AnalyzedItems),
			attribute.Int("kioku.conflicts", len(result.Conflicts)),
			attribute.Int("kioku.events_recorded", result.EventsRecorded),
		)
		span.End()
		e.runs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("flow", flow),
			attribute.String("state", string(state)),
		))
		e.logger.Info("conflicts: run finished",
			"flow", flow,
			"state", state,
			"analyzed_items", result.AnalyzedItems,
			"conflicts", len(result.Conflicts),
			"events_recorded", result.EventsRecorded,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	state = StateFetching
	items, err := adapter.FetchAll(ctx)
	if err != nil {
		state = StateFetchFailed
		e.logger.Warn("conflicts: fetch failed", "flow", flow, "error", err)
		return model.DetectionResult{Error: fmt.Sprintf("fetch %ss: %v", adapter.Kind(), err)}
	}
	n := len(items)
	result.AnalyzedItems = n

	if n < minItems {
		state = StateInsufficientData
		return model.DetectionResult{AnalyzedItems: n}
	}
	if e.oracle == nil {
		state = StateNoOracle
		return model.DetectionResult{AnalyzedItems: n}
	}

	tmpl, source := e.templates.Resolve(ctx, adapter.Kind(), flow)
	prompt := RenderPrompt(tmpl, adapter.Kind(), BuildItemsBlock(items))
	e.logger.Debug("conflicts: calling oracle",
		"flow", flow, "oracle", e.oracle.Label(), "template_source", source, "items", n)

	state = StateCallingOracle
	text, err := e.oracle.Ask(ctx, flow, prompt)
	if err != nil {
		state = StateOracleFailed
		e.logger.Warn("conflicts: oracle failed", "flow", flow, "error", err)
		return model.DetectionResult{AnalyzedItems: n, Error: err.Error()}
	}

	cands, err := ParseCandidates(text)
	if err != nil {
		state = StateParseFailed
		e.logger.Warn("conflicts: unparseable oracle response", "flow", flow, "error", err, "response_len", len(text))
		return model.DetectionResult{AnalyzedItems: n, Error: err.Error()}
	}
	state = StateParsed

	found := ResolveCandidates(adapter.Kind(), items, cands)
	if dropped := len(cands) - len(found); dropped > 0 {
		e.logger.Debug("conflicts: dropped invalid candidates", "flow", flow, "dropped", dropped)
	}
	e.detected.Add(ctx, int64(len(found)), metric.WithAttributes(attribute.String("flow", flow)))
	result = model.DetectionResult{Conflicts: found, AnalyzedItems: n}

	if appender, ok := adapter.(EventAppender); ok && opts.RecordEvents && len(found) > 0 {
		state = StateRecording
		result.EventsRecorded = e.recorder.Record(ctx, appender, flow, found)
		e.recorded.Add(ctx, int64(result.EventsRecorded), metric.WithAttributes(attribute.String("flow", flow)))
	}

	state = StateDone
	return result
}
