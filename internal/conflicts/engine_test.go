package conflicts

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kioku/internal/llm"
	"github.com/ashita-ai/kioku/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memAdapter is an in-memory ItemAdapter with an event log.
type memAdapter struct {
	kind     model.ItemKind
	items    []Item
	fetchErr error
	failFor  map[uuid.UUID]bool

	mu     sync.Mutex
	events map[uuid.UUID][]map[string]any
}

func newMemAdapter(contents ...string) *memAdapter {
	a := &memAdapter{kind: model.KindFact, events: map[uuid.UUID][]map[string]any{}}
	for _, c := range contents {
		a.items = append(a.items, Item{ID: uuid.New(), Content: c})
	}
	return a
}

func (a *memAdapter) Kind() model.ItemKind { return a.kind }
func (a *memAdapter) FlowName() string {
	if a.kind == model.KindDecision {
		return FlowDecisionCheck
	}
	return FlowFactCheck
}

func (a *memAdapter) FetchAll(context.Context) ([]Item, error) {
	if a.fetchErr != nil {
		return nil, a.fetchErr
	}
	return a.items, nil
}

func (a *memAdapter) AppendEvent(_ context.Context, itemID uuid.UUID, eventType model.EventType, data map[string]any) error {
	if a.failFor[itemID] {
		return errors.New("disk full")
	}
	if eventType != model.EventConflictDetected {
		return errors.New("unexpected event type")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events[itemID] = append(a.events[itemID], data)
	return nil
}

func (a *memAdapter) eventCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, evs := range a.events {
		n += len(evs)
	}
	return n
}

// readOnlyAdapter hides the event capability.
type readOnlyAdapter struct{ inner *memAdapter }

func (r readOnlyAdapter) Kind() model.ItemKind { return r.inner.Kind() }
func (r readOnlyAdapter) FlowName() string     { return r.inner.FlowName() }
func (r readOnlyAdapter) FetchAll(ctx context.Context) ([]Item, error) {
	return r.inner.FetchAll(ctx)
}

// scriptedGenerator returns a fixed result and records the prompts it saw.
type scriptedGenerator struct {
	result llm.GenerateResult
	calls  atomic.Int32
	last   llm.GenerateRequest
	mu     sync.Mutex
}

func (g *scriptedGenerator) GenerateText(_ context.Context, req llm.GenerateRequest) llm.GenerateResult {
	g.calls.Add(1)
	g.mu.Lock()
	g.last = req
	g.mu.Unlock()
	return g.result
}

func replying(text string) *scriptedGenerator {
	return &scriptedGenerator{result: llm.GenerateResult{Success: true, Text: text}}
}

var testSelection = &llm.Selection{Provider: llm.ProviderOpenAI, Model: "gpt-4o-mini"}

func newTestEngine(gen llm.Generator, sel *llm.Selection, store TemplateStore) *Engine {
	return NewEngine(EngineConfig{Generator: gen, Selection: sel, Templates: store, Logger: testLogger()})
}

func TestRun_InsufficientData(t *testing.T) {
	for _, n := range []int{0, 1} {
		contents := make([]string, n)
		for i := range contents {
			contents[i] = "only fact"
		}
		gen := replying("[]")
		res := newTestEngine(gen, testSelection, nil).Run(context.Background(), newMemAdapter(contents...), DefaultOptions())

		assert.Empty(t, res.Conflicts)
		assert.NotNil(t, res.Conflicts, "conflicts must marshal as []")
		assert.Equal(t, n, res.AnalyzedItems)
		assert.Zero(t, res.EventsRecorded)
		assert.Empty(t, res.Error)
		assert.Zero(t, gen.calls.Load(), "oracle must not be called")
	}
}

func TestRun_NoOracle(t *testing.T) {
	a := newMemAdapter("a", "b", "c", "d", "e")
	res := newTestEngine(nil, nil, nil).Run(context.Background(), a, DefaultOptions())

	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 5, res.AnalyzedItems)
	assert.Empty(t, res.Error)
	assert.Zero(t, a.eventCount())
}

func TestRun_InsufficientDataCheckedBeforeOracle(t *testing.T) {
	res := newTestEngine(nil, nil, nil).Run(context.Background(), newMemAdapter("solo"), DefaultOptions())
	assert.Equal(t, 1, res.AnalyzedItems)
	assert.Empty(t, res.Error)
}

func TestRun_FetchFailure(t *testing.T) {
	a := newMemAdapter()
	a.fetchErr = errors.New("connection refused")
	gen := replying("[]")
	res := newTestEngine(gen, testSelection, nil).Run(context.Background(), a, DefaultOptions())

	assert.Empty(t, res.Conflicts)
	assert.Zero(t, res.AnalyzedItems)
	assert.Contains(t, res.Error, "connection refused")
	assert.Zero(t, gen.calls.Load())
}

func TestRun_DetectsAndRecordsSymmetricEvents(t *testing.T) {
	a := newMemAdapter(
		"The API uses REST",
		"The API uses GraphQL exclusively",
		"Deploys happen on Fridays",
	)
	gen := replying(`[{"first_index":1,"second_index":2,"conflict_reason":"REST vs GraphQL"}]`)
	res := newTestEngine(gen, testSelection, nil).Run(context.Background(), a, DefaultOptions())

	require.Empty(t, res.Error)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, a.items[0].ID, c.ItemID1)
	assert.Equal(t, a.items[1].ID, c.ItemID2)
	assert.Equal(t, "The API uses REST", c.Item1.Content)
	assert.Equal(t, model.KindFact, c.Item1.Kind)
	assert.Equal(t, model.ConflictTypeContradiction, c.ConflictType)
	assert.Equal(t, "REST vs GraphQL", c.Description)
	assert.InDelta(t, 0.8, c.Confidence, 1e-9)
	assert.Equal(t, 3, res.AnalyzedItems)
	assert.Equal(t, 2, res.EventsRecorded)

	require.Len(t, a.events[a.items[0].ID], 1)
	require.Len(t, a.events[a.items[1].ID], 1)
	assert.Empty(t, a.events[a.items[2].ID])
	ev1 := a.events[a.items[0].ID][0]
	ev2 := a.events[a.items[1].ID][0]
	assert.Equal(t, a.items[1].ID.String(), ev1["other_id"])
	assert.Equal(t, a.items[0].ID.String(), ev2["other_id"])
	assert.Equal(t, "REST vs GraphQL", ev1["reason"])
	assert.Equal(t, FlowFactCheck, ev1["trigger"])
	assert.Equal(t, FlowFactCheck, ev2["trigger"])

	// The oracle saw the numbered items and the fixed sampling parameters.
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Contains(t, gen.last.Prompt, "[1] The API uses REST")
	assert.Contains(t, gen.last.Prompt, "[3] Deploys happen on Fridays")
	assert.InDelta(t, 0.1, gen.last.Temperature, 1e-6)
	assert.Equal(t, 2048, gen.last.MaxTokens)
	assert.Equal(t, FlowFactCheck, gen.last.Context)
}

func TestRun_RerunAppendsDuplicateEvents(t *testing.T) {
	a := newMemAdapter("x is 1", "x is 2", "y is 3")
	e := newTestEngine(replying(`[{"first_index":1,"second_index":2,"conflict_reason":"x"}]`), testSelection, nil)

	e.Run(context.Background(), a, DefaultOptions())
	res := e.Run(context.Background(), a, DefaultOptions())

	assert.Equal(t, 2, res.EventsRecorded)
	assert.Equal(t, 4, a.eventCount())
	assert.Len(t, a.events[a.items[0].ID], 2)
}

func TestRun_MalformedOracleOutput(t *testing.T) {
	a := newMemAdapter("a", "b")
	res := newTestEngine(replying("I could not find anything relevant."), testSelection, nil).
		Run(context.Background(), a, DefaultOptions())

	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 2, res.AnalyzedItems)
	assert.Zero(t, res.EventsRecorded)
	assert.NotEmpty(t, res.Error)
	assert.Zero(t, a.eventCount())
}

func TestRun_OracleFailure(t *testing.T) {
	a := newMemAdapter("a", "b")
	gen := &scriptedGenerator{result: llm.GenerateResult{Success: false, Error: "request timed out"}}
	res := newTestEngine(gen, testSelection, nil).Run(context.Background(), a, DefaultOptions())

	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 2, res.AnalyzedItems)
	assert.Contains(t, res.Error, "timed out")
	assert.Zero(t, a.eventCount())
}

func TestRun_OutOfRangeIndexDropped(t *testing.T) {
	a := newMemAdapter("a", "b", "c")
	res := newTestEngine(replying(`[{"first_index":1,"second_index":99,"conflict_reason":"bogus"}]`), testSelection, nil).
		Run(context.Background(), a, DefaultOptions())

	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Error)
	assert.Zero(t, res.EventsRecorded)
	assert.Zero(t, a.eventCount())
}

func TestRun_RecordEventsDisabled(t *testing.T) {
	a := newMemAdapter("a", "b")
	res := newTestEngine(replying(`[{"first_index":1,"second_index":2}]`), testSelection, nil).
		Run(context.Background(), a, Options{RecordEvents: false})

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, DefaultReason, res.Conflicts[0].Description)
	assert.Zero(t, res.EventsRecorded)
	assert.Zero(t, a.eventCount())
}

func TestRun_AdapterWithoutEventCapability(t *testing.T) {
	a := newMemAdapter("a", "b")
	res := newTestEngine(replying(`[{"first_index":2,"second_index":1}]`), testSelection, nil).
		Run(context.Background(), readOnlyAdapter{inner: a}, DefaultOptions())

	require.Len(t, res.Conflicts, 1)
	assert.Zero(t, res.EventsRecorded)
	assert.Zero(t, a.eventCount())
}

func TestRun_OneFailingAppendStillWritesOtherSide(t *testing.T) {
	a := newMemAdapter("a", "b", "c")
	a.failFor = map[uuid.UUID]bool{a.items[0].ID: true}
	res := newTestEngine(replying(`[{"first_index":1,"second_index":2,"conflict_reason":"r"}]`), testSelection, nil).
		Run(context.Background(), a, DefaultOptions())

	require.Len(t, res.Conflicts, 1)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, res.EventsRecorded)
	assert.Len(t, a.events[a.items[1].ID], 1)
}

func TestRun_ManyConflictsRecordedConcurrently(t *testing.T) {
	contents := make([]string, 12)
	for i := range contents {
		contents[i] = "item"
	}
	a := newMemAdapter(contents...)
	resp := `[`
	for i := 0; i < 6; i++ {
		if i > 0 {
			resp += ","
		}
		resp += `{"first_index":` + strconv.Itoa(2*i+1) + `,"second_index":` + strconv.Itoa(2*i+2) + `}`
	}
	resp += `]`
	res := newTestEngine(replying(resp), testSelection, nil).Run(context.Background(), a, DefaultOptions())

	require.Len(t, res.Conflicts, 6)
	assert.Equal(t, 12, res.EventsRecorded)
	assert.Equal(t, 12, a.eventCount())
}

func TestRun_DecisionKindUsesDecisionFlow(t *testing.T) {
	a := newMemAdapter("use postgres", "use mysql")
	a.kind = model.KindDecision
	a.items[0].Status = "accepted"
	a.items[0].Owner = "platform"
	gen := replying(`[{"first_index":1,"second_index":2,"reason":"different databases"}]`)
	res := newTestEngine(gen, testSelection, nil).Run(context.Background(), a, DefaultOptions())

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "different databases", res.Conflicts[0].Description)
	assert.Equal(t, model.KindDecision, res.Conflicts[0].Item1.Kind)
	assert.Equal(t, "accepted", res.Conflicts[0].Item1.Status)
	assert.Equal(t, FlowDecisionCheck, a.events[a.items[0].ID][0]["trigger"])
	assert.Contains(t, gen.last.Prompt, "[1] use postgres (Status: accepted) (Owner: platform)")
	assert.Equal(t, FlowDecisionCheck, gen.last.Context)
}

func TestRun_UsesStoredTemplate(t *testing.T) {
	a := newMemAdapter("a", "b")
	store := fakeTemplateStore{FlowFactCheck: "CUSTOM\n{{items}}\nEND"}
	gen := replying("[]")
	res := newTestEngine(gen, testSelection, store).Run(context.Background(), a, DefaultOptions())

	assert.Empty(t, res.Error)
	assert.Equal(t, "CUSTOM\n[1] a\n[2] b\nEND", gen.last.Prompt)
}

type panickingAdapter struct{ *memAdapter }

func (p panickingAdapter) FetchAll(context.Context) ([]Item, error) { panic("boom") }

func TestRun_PanicBecomesError(t *testing.T) {
	res := newTestEngine(replying("[]"), testSelection, nil).
		Run(context.Background(), panickingAdapter{newMemAdapter()}, DefaultOptions())
	assert.Contains(t, res.Error, "boom")
	assert.NotNil(t, res.Conflicts)
}

type panickingGenerator struct{}

func (panickingGenerator) GenerateText(context.Context, llm.GenerateRequest) llm.GenerateResult {
	panic("provider exploded")
}

func TestRun_PanicAfterFetchKeepsAnalyzedItems(t *testing.T) {
	a := newMemAdapter("a", "b", "c")
	res := newTestEngine(panickingGenerator{}, testSelection, nil).Run(context.Background(), a, DefaultOptions())

	assert.Contains(t, res.Error, "provider exploded")
	assert.Equal(t, 3, res.AnalyzedItems)
	assert.Empty(t, res.Conflicts)
	assert.Zero(t, a.eventCount())
}

func launchDateAdapter() *memAdapter {
	return newMemAdapter(
		"The product launch is scheduled for March 15",
		"The product launch has been moved to April 1",
		"The marketing budget is $50,000",
	)
}

func TestRun_ArrayWrappedInObject(t *testing.T) {
	a := launchDateAdapter()
	res := newTestEngine(replying(`{"conflicts":[{"first_index":1,"second_index":2,"conflict_reason":"launch dates differ"}]}`), testSelection, nil).
		Run(context.Background(), a, DefaultOptions())

	require.Empty(t, res.Error)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, a.items[0].ID, res.Conflicts[0].ItemID1)
	assert.Equal(t, a.items[1].ID, res.Conflicts[0].ItemID2)
	assert.Equal(t, 2, res.EventsRecorded)
	assert.Equal(t, 2, a.eventCount())
}

func TestRun_NonArrayResponseIsParseFailure(t *testing.T) {
	for _, reply := range []string{`null`, `42`, `"none"`, `{"first_index":1,"second_index":2}`} {
		t.Run(reply, func(t *testing.T) {
			a := launchDateAdapter()
			res := newTestEngine(replying(reply), testSelection, nil).Run(context.Background(), a, DefaultOptions())

			assert.NotEmpty(t, res.Error)
			assert.Empty(t, res.Conflicts)
			assert.Equal(t, 3, res.AnalyzedItems)
			assert.Zero(t, res.EventsRecorded)
			assert.Zero(t, a.eventCount())
		})
	}
}

func TestNewOracle_NilWhenUnconfigured(t *testing.T) {
	assert.Nil(t, NewOracle(nil, testSelection))
	assert.Nil(t, NewOracle(replying("[]"), nil))
	assert.Nil(t, NewOracle(replying("[]"), &llm.Selection{Provider: "openai"}))
	assert.NotNil(t, NewOracle(replying("[]"), testSelection))
}
