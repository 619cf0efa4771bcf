package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemKind(t *testing.T) {
	for _, in := range []string{"fact", "facts", " FACT "} {
		k, err := ParseItemKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, KindFact, k)
	}
	k, err := ParseItemKind("decisions")
	require.NoError(t, err)
	assert.Equal(t, KindDecision, k)

	_, err = ParseItemKind("memo")
	assert.Error(t, err)
}

func TestValidateCreateFact(t *testing.T) {
	assert.NoError(t, ValidateCreateFact(CreateFactRequest{Content: "Launch date is March 1"}))
	assert.Error(t, ValidateCreateFact(CreateFactRequest{Content: "   "}))
	assert.Error(t, ValidateCreateFact(CreateFactRequest{Content: strings.Repeat("x", MaxContentLen+1)}))

	long := strings.Repeat("c", MaxCategoryLen+1)
	err := ValidateCreateFact(CreateFactRequest{Content: "ok", Category: &long})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category")
}

func TestValidateCreateDecision(t *testing.T) {
	status := "approved"
	assert.NoError(t, ValidateCreateDecision(CreateDecisionRequest{Content: "Use Postgres", Status: &status}))

	owner := strings.Repeat("o", MaxOwnerLen+1)
	err := ValidateCreateDecision(CreateDecisionRequest{Content: "Use Postgres", Owner: &owner})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owner")
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAtLeast(RoleAdmin, RoleEditor))
	assert.True(t, RoleAtLeast(RoleEditor, RoleEditor))
	assert.False(t, RoleAtLeast(RoleViewer, RoleEditor))
	assert.False(t, ValidRole("owner"))
}

func TestValidateMemberName(t *testing.T) {
	assert.NoError(t, ValidateMemberName("alice@example.com"))
	assert.Error(t, ValidateMemberName(""))
	assert.Error(t, ValidateMemberName("has space"))
}

func TestDetectionResult_ErrorOmittedOnSuccess(t *testing.T) {
	b, err := json.Marshal(DetectionResult{Conflicts: []ConflictResult{}, AnalyzedItems: 3})
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"error"`)
	assert.Contains(t, string(b), `"conflicts":[]`)

	b, err = json.Marshal(DetectionResult{Conflicts: []ConflictResult{}, Error: "boom"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"error":"boom"`)
}
