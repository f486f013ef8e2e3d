package plan

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCatalog = Catalog{
	{Name: "shell", Description: "run a command"},
	{Name: "mail"},
}

func TestCatalog(t *testing.T) {
	assert.True(t, testCatalog.Has("mail"))
	assert.False(t, testCatalog.Has("Mail"))
	assert.Equal(t, []string{"shell", "mail"}, testCatalog.Names())
	assert.Equal(t, "- shell: run a command\n- mail", testCatalog.String())
}

func TestValidateCatalogKeepsSuggestedTools(t *testing.T) {
	store := newStore(t, "[PASSWORD_1]", "credential", "secret123")
	raw := RawDecomposition{
		{Content: "Configure server infrastructure", SuggestedTools: []string{"shell", "shell"}},
		{Content: "Setup admin access with [PASSWORD_1]"},
	}

	p, err := ValidateCatalog(raw, store, testCatalog)
	require.NoError(t, err)
	assert.Equal(t, []string{"shell"}, p.SubPrompts[0].SuggestedTools)
	assert.Empty(t, p.SubPrompts[1].SuggestedTools)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"original_prompt": "",
		"sub_prompts": [
			{"id": 1, "content": "Configure server infrastructure", "opaque_values": {}, "suggested_tools": ["shell"]},
			{"id": 2, "content": "Setup admin access with [PASSWORD_1]", "opaque_values": {"[PASSWORD_1]": "secret123"}}
		]
	}`, string(b))
}

func TestValidateCatalogRejectsUnknownTool(t *testing.T) {
	store := newStore(t, "[PASSWORD_1]", "credential", "secret123")
	raw := RawDecomposition{
		{Content: "Configure server infrastructure", SuggestedTools: []string{"shell"}},
		{Content: "Setup admin access with [PASSWORD_1]", SuggestedTools: []string{"ssh"}},
	}

	_, err := ValidateCatalog(raw, store, testCatalog)
	require.Error(t, err)
	assert.True(t, IsKind(err, MalformedOutput))
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Step)
	assert.Contains(t, err.Error(), `"ssh"`)
	assert.NotContains(t, err.Error(), "secret123")
}

func TestValidateCatalogEmptyCatalogRejectsEverySuggestion(t *testing.T) {
	raw := RawDecomposition{{Content: "list files", SuggestedTools: []string{"shell"}}}
	_, err := ValidateCatalog(raw, newStore(t), Catalog{})
	assert.True(t, IsKind(err, MalformedOutput))
}

func TestValidateWithoutCatalogDropsSuggestions(t *testing.T) {
	raw := RawDecomposition{{Content: "list files", SuggestedTools: []string{"anything"}}}
	p, err := Validate(raw, newStore(t))
	require.NoError(t, err)
	assert.Nil(t, p.SubPrompts[0].SuggestedTools)
}
