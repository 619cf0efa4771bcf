package conflicts

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kioku/internal/model"
)

func TestExtractJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `[{"first_index":1}]`, `[{"first_index":1}]`},
		{"whitespace", "  \n[]\n ", `[]`},
		{"fenced", "```json\n[{\"first_index\":1,\"second_index\":2}]\n```", `[{"first_index":1,"second_index":2}]`},
		{"prose around", `Here are the conflicts: [{"first_index":1,"second_index":2}] Hope this helps.`, `[{"first_index":1,"second_index":2}]`},
		{"bracket inside string", `Result: [{"conflict_reason":"uses [brackets] and \"quotes]\""}]`, `[{"conflict_reason":"uses [brackets] and \"quotes]\""}]`},
		{"skips prose brackets", `Items [1] and [2] conflict: [{"first_index":1,"second_index":2}]`, `[{"first_index":1,"second_index":2}]`},
		{"falls back to first valid array", `see [1] only`, `[1]`},
		{"empty array after prose", `No conflicts found. []`, `[]`},
		{"wrapped in object", `{"conflicts":[{"first_index":1,"second_index":2}]}`, `[{"first_index":1,"second_index":2}]`},
		{"fenced object wrapper", "```json\n{\"conflicts\": []}\n```", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONArray(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestExtractJSONArray_NoArray(t *testing.T) {
	for _, in := range []string{
		"", "no json here", "[unclosed", "[not json]",
		`null`, `42`, `"none"`, `true`, `{"first_index":1,"second_index":2}`,
	} {
		_, err := ExtractJSONArray(in)
		assert.ErrorIs(t, err, ErrNoJSONArray, in)
	}
}

func TestParseCandidates_Defaults(t *testing.T) {
	cands, err := ParseCandidates(`[{"second_index":3}, {"first_index":"2","second_index":4.0,"reason":"alt key"}, 7, "x"]`)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	assert.Equal(t, Candidate{FirstIndex: 1, SecondIndex: 3, Reason: DefaultReason}, cands[0])
	assert.Equal(t, Candidate{FirstIndex: 2, SecondIndex: 4, Reason: "alt key"}, cands[1])
}

func TestParseCandidates_ConflictReasonPreferred(t *testing.T) {
	cands, err := ParseCandidates(`[{"first_index":1,"second_index":2,"conflict_reason":"a","reason":"b"}]`)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "a", cands[0].Reason)
}

func TestParseCandidates_WrappedArray(t *testing.T) {
	cands, err := ParseCandidates(`{"conflicts":[{"first_index":1,"second_index":2,"conflict_reason":"dates differ"}]}`)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, Candidate{FirstIndex: 1, SecondIndex: 2, Reason: "dates differ"}, cands[0])
}

func TestParseCandidates_ScalarIsParseFailure(t *testing.T) {
	for _, in := range []string{`null`, `42`, `"none"`, `{"first_index":1,"second_index":2}`} {
		cands, err := ParseCandidates(in)
		assert.ErrorIs(t, err, ErrNoJSONArray, in)
		assert.Nil(t, cands, in)
	}
}

func TestParseCandidates_UnreadableIndexNeverResolves(t *testing.T) {
	cands, err := ParseCandidates(`[{"first_index":"one","second_index":1.5}]`)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Zero(t, cands[0].FirstIndex)
	assert.Zero(t, cands[0].SecondIndex)
}

func TestResolveCandidates(t *testing.T) {
	shared := uuid.New()
	items := []Item{
		{ID: uuid.New(), Content: "a", Category: "c1"},
		{ID: uuid.New(), Content: "b"},
		{ID: shared, Content: "c"},
		{ID: shared, Content: "c again"},
	}
	cands := []Candidate{
		{FirstIndex: 1, SecondIndex: 2, Reason: "ok"},
		{FirstIndex: 1, SecondIndex: 99, Reason: "out of range"},
		{FirstIndex: 0, SecondIndex: 2, Reason: "zero"},
		{FirstIndex: 2, SecondIndex: 2, Reason: "same index"},
		{FirstIndex: 3, SecondIndex: 4, Reason: "same id"},
		{FirstIndex: -1, SecondIndex: 1, Reason: "negative"},
	}
	got := ResolveCandidates(model.KindFact, items, cands)
	require.Len(t, got, 1)
	assert.Equal(t, items[0].ID, got[0].ItemID1)
	assert.Equal(t, items[1].ID, got[0].ItemID2)
	assert.Equal(t, "c1", got[0].Item1.Category)
	assert.Equal(t, "ok", got[0].Description)
	assert.InDelta(t, FixedConfidence, got[0].Confidence, 1e-9)
}
