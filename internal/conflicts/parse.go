package conflicts

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/ashita-ai/kioku/internal/model"
)

// ErrNoJSONArray is returned when no valid JSON array can be found in an
// oracle response.
var ErrNoJSONArray = errors.New("conflicts: no JSON array in oracle response")

// DefaultReason is used when a candidate carries no reason text.
const DefaultReason = "Conflicting information detected"

// FixedConfidence is attached to every reported conflict.
const FixedConfidence = 0.8

// Candidate is one oracle-reported pair, still in 1-based positions.
type Candidate struct {
	FirstIndex  int
	SecondIndex int
	Reason      string
}

// ExtractJSONArray pulls the JSON array out of an oracle response. The
// trimmed text is tried first as a whole (unwrapping a ```json fence if
// present) when it is itself an array. Otherwise every '[' is tried as the
// start of a balanced array, preferring the first array that is empty or
// holds an object so that bracketed prose like "[1]" is skipped when a real
// answer follows. An answer wrapped in an object, such as
// {"conflicts":[...]}, yields the inner array. Text without any valid array,
// including bare JSON scalars and objects, is ErrNoJSONArray.
func ExtractJSONArray(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(stripFence(text))
	if strings.HasPrefix(trimmed, "[") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	var fallback json.RawMessage
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		end := matchBracket(text, i)
		if end < 0 {
			continue
		}
		sub := text[i : end+1]
		if !json.Valid([]byte(sub)) {
			continue
		}
		if looksLikeAnswer(sub) {
			return json.RawMessage(sub), nil
		}
		if fallback == nil {
			fallback = json.RawMessage(sub)
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, ErrNoJSONArray
}

// stripFence removes a surrounding markdown code fence.
func stripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return t
}

// matchBracket returns the index of the ']' closing the '[' at start, or -1.
// Brackets inside JSON strings are ignored.
func matchBracket(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func looksLikeAnswer(arr string) bool {
	inner := strings.TrimSpace(arr[1 : len(arr)-1])
	return inner == "" || strings.HasPrefix(inner, "{")
}

// ParseCandidates extracts candidate pairs from an oracle response.
// Non-object elements are skipped. A response with no JSON array is
// ErrNoJSONArray, which callers must not treat as "no conflicts".
func ParseCandidates(text string) ([]Candidate, error) {
	raw, err := ExtractJSONArray(text)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, ErrNoJSONArray
	}
	elems, ok := v.([]any)
	if !ok {
		// ExtractJSONArray only returns arrays.
		return []Candidate{}, nil
	}

	out := make([]Candidate, 0, len(elems))
	for _, e := range elems {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		c := Candidate{
			FirstIndex:  indexField(obj, "first_index"),
			SecondIndex: indexField(obj, "second_index"),
			Reason:      reasonField(obj),
		}
		out = append(out, c)
	}
	return out, nil
}

// indexField reads a 1-based position. Absent fields default to 1. Values
// that cannot be read as a whole number map to 0, which never resolves.
func indexField(obj map[string]any, key string) int {
	v, ok := obj[key]
	if !ok || v == nil {
		return 1
	}
	switch x := v.(type) {
	case json.Number:
		return numberToIndex(x.String())
	case string:
		return numberToIndex(strings.TrimSpace(x))
	default:
		return 0
	}
}

func numberToIndex(s string) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0
	}
	return int(f)
}

func reasonField(obj map[string]any) string {
	for _, key := range []string{"conflict_reason", "reason"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return DefaultReason
}

// ResolveCandidates maps candidates onto items and drops any that point
// outside the list or at the same item twice.
func ResolveCandidates(kind model.ItemKind, items []Item, cands []Candidate) []model.ConflictResult {
	out := make([]model.ConflictResult, 0, len(cands))
	for _, c := range cands {
		i, j := c.FirstIndex-1, c.SecondIndex-1
		if i < 0 || j < 0 || i >= len(items) || j >= len(items) || i == j {
			continue
		}
		a, b := items[i], items[j]
		if a.ID == b.ID {
			continue
		}
		out = append(out, model.ConflictResult{
			ItemID1:      a.ID,
			ItemID2:      b.ID,
			Item1:        conflictItem(kind, a),
			Item2:        conflictItem(kind, b),
			ConflictType: model.ConflictTypeContradiction,
			Description:  c.Reason,
			Confidence:   FixedConfidence,
		})
	}
	return out
}

func conflictItem(kind model.ItemKind, it Item) model.ConflictItem {
	return model.ConflictItem{
		ID:       it.ID,
		Kind:     kind,
		Content:  it.Content,
		Category: it.Category,
		Status:   it.Status,
		Owner:    it.Owner,
	}
}
