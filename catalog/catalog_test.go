package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ctxeng/assemble"
	"github.com/teranos/ctxeng/errors"
)

func TestLoad(t *testing.T) {
	m, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultModelID, m.Default)
	assert.Equal(t, []string{
		"Anthropic", "OpenAI", "Google", "DeepSeek", "Qwen", "Meta", "Mistral", "Free Models", "Other",
	}, m.ProviderNames())

	all := m.All()
	assert.Len(t, all, 39)

	seen := make(map[string]bool)
	for _, model := range all {
		assert.NotEmpty(t, model.Name, model.ID)
		assert.NotEmpty(t, model.Description, model.ID)
		assert.NotEmpty(t, model.Provider, model.ID)
		assert.False(t, seen[model.ID], "duplicate id %s", model.ID)
		seen[model.ID] = true
	}
}

func TestLookup(t *testing.T) {
	m := MustLoad()

	model, ok := m.Lookup("openai/gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, "GPT-4o Mini", model.Name)
	assert.Equal(t, "OpenAI", model.Provider)

	model, ok = m.Lookup("google/gemma-2-9b-it")
	require.True(t, ok)
	assert.True(t, model.Free)

	model, ok = m.Lookup("no/such-model")
	assert.False(t, ok)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", model.ID, "unknown ids fall back to the first model")

	def := m.DefaultModel()
	assert.Equal(t, "Claude 3.5 Sonnet", def.Name)
	assert.True(t, def.Popular)
}

func TestByProvider(t *testing.T) {
	m := MustLoad()

	models, ok := m.ByProvider("free models")
	require.True(t, ok)
	for _, model := range models {
		assert.True(t, model.Free, model.ID)
	}

	_, ok = m.ByProvider("Nobody")
	assert.False(t, ok)
}

func TestPresets(t *testing.T) {
	presets, err := Presets()
	require.NoError(t, err)
	require.Len(t, presets, 3)

	assert.Equal(t, "Coding", presets[0].Key)
	assert.Equal(t, "Financial", presets[1].Key)
	assert.Equal(t, "Creative Writing", presets[2].Key)

	for _, p := range presets {
		assert.True(t, assemble.HasLead(p.Context), p.Key)
		assert.NotEmpty(t, p.Context.Rules, p.Key)
	}

	coding := presets[0].Context
	require.Len(t, coding.Examples, 2)
	assert.Equal(t, "[10, 5, 8, 20]", coding.Examples[0].Input)
	assert.Equal(t, "None", coding.Examples[1].Output)

	text := assemble.Assemble(coding)
	assert.True(t, strings.HasPrefix(text, "Persona: An expert in Python"))
	assert.Contains(t, text, "2. Input: [5, 5, 5, 5]\n   Output: None")
	assert.Contains(t, text, "1. The function must not use any built-in sorting functions (e.g., `sorted()`, `list.sort()`).")
}

func TestPresets_ReturnsCopies(t *testing.T) {
	first, err := Presets()
	require.NoError(t, err)
	first[0].Context.Rules[0] = "mutated"
	first[0].Name = "mutated"

	second, err := Presets()
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second[0].Context.Rules[0])
	assert.NotEqual(t, "mutated", second[0].Name)
}

func TestFindPreset(t *testing.T) {
	p, err := FindPreset("financial")
	require.NoError(t, err)
	assert.Equal(t, "Financial Analyst Expert", p.Name)

	p, err = FindPreset("Creative Writing Expert")
	require.NoError(t, err)
	assert.Equal(t, "Creative Writing", p.Key)

	_, err = FindPreset("poetry")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
	assert.Contains(t, errors.UserMessage(err), "Coding, Creative Writing, Financial")
}
