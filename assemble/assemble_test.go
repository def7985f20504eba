package assemble

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssemble_Empty(t *testing.T) {
	t.Run("zero value", func(t *testing.T) {
		assert.Equal(t, "", Assemble(Context{}))
		assert.Equal(t, Placeholder, Preview(Context{}))
		assert.True(t, IsEmpty(Context{}))
	})

	t.Run("only skipped entries", func(t *testing.T) {
		c := Context{
			Examples: []Example{{}, {}},
			Rules:    []string{"", "   ", "\t\n"},
		}
		assert.Equal(t, "", Assemble(c))
		assert.Equal(t, Placeholder, Preview(c))
		assert.True(t, IsEmpty(c))
	})
}

func TestAssemble_SingleSections(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		want string
	}{
		{
			name: "persona",
			ctx:  Context{Persona: "A senior Go reviewer"},
			want: "Persona: A senior Go reviewer",
		},
		{
			name: "initial prompt",
			ctx:  Context{InitialPrompt: "Review this diff"},
			want: "Initial Prompt: Review this diff",
		},
		{
			name: "background context on its own line",
			ctx:  Context{BackgroundContext: "Legacy service.\nNo tests."},
			want: "Background Context:\nLegacy service.\nNo tests.",
		},
		{
			name: "examples",
			ctx:  Context{Examples: []Example{{Input: "[1,2]", Output: "1"}}},
			want: "Examples:\n1. Input: [1,2]\n   Output: 1",
		},
		{
			name: "example with only an output",
			ctx:  Context{Examples: []Example{{Output: "None"}}},
			want: "Examples:\n1. Input: \n   Output: None",
		},
		{
			name: "output format",
			ctx:  Context{OutputFormat: "JSON"},
			want: "Output Format: JSON",
		},
		{
			name: "rules",
			ctx:  Context{Rules: []string{"Be concise", "Cite sources"}},
			want: "Rules to follow:\n1. Be concise\n2. Cite sources",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Assemble(tt.ctx))
			assert.Equal(t, tt.want, Preview(tt.ctx))
			assert.False(t, IsEmpty(tt.ctx))
		})
	}
}

func TestAssemble_FullContext(t *testing.T) {
	c := Context{
		Persona:           "An expert writer",
		InitialPrompt:     "Write a short story about ducks.",
		BackgroundContext: "Humor competition entry.",
		Examples: []Example{
			{Input: "Jack the duck was sad.", Output: "His beak was the wrong color."},
			{Input: "", Output: ""},
			{Input: "Pond", Output: "Splash"},
		},
		OutputFormat: "Title, then story.",
		Rules:        []string{"Use British English.", " ", "Avoid cliches."},
	}

	want := "Persona: An expert writer\n\n" +
		"Initial Prompt: Write a short story about ducks.\n\n" +
		"Background Context:\nHumor competition entry.\n\n" +
		"Examples:\n" +
		"1. Input: Jack the duck was sad.\n   Output: His beak was the wrong color.\n" +
		"3. Input: Pond\n   Output: Splash\n\n" +
		"Output Format: Title, then story.\n\n" +
		"Rules to follow:\n1. Use British English.\n3. Avoid cliches."

	assert.Equal(t, want, Assemble(c))
}

func TestAssemble_HaikuScenario(t *testing.T) {
	c := Context{
		Persona:       "",
		InitialPrompt: "Write a haiku",
		Examples:      []Example{{Input: "", Output: ""}},
		Rules:         []string{"  ", "Be concise"},
	}

	assert.Equal(t, "Initial Prompt: Write a haiku\n\nRules to follow:\n2. Be concise", Assemble(c))
}

func TestAssemble_SectionOrder(t *testing.T) {
	c := Context{
		Rules:             []string{"rule"},
		OutputFormat:      "format",
		Examples:          []Example{{Input: "in", Output: "out"}},
		BackgroundContext: "background",
		InitialPrompt:     "prompt",
		Persona:           "persona",
	}
	text := Assemble(c)

	headers := []string{"Persona:", "Initial Prompt:", "Background Context:", "Examples:", "Output Format:", "Rules to follow:"}
	last := -1
	for _, h := range headers {
		idx := strings.Index(text, h)
		assert.Greater(t, idx, last, "%q out of order", h)
		last = idx
	}

	// Dropping a middle section keeps the rest in order
	c.BackgroundContext = ""
	c.Examples = nil
	assert.Equal(t, "Persona: persona\n\nInitial Prompt: prompt\n\nOutput Format: format\n\nRules to follow:\n1. rule", Assemble(c))
}

func TestAssemble_Deterministic(t *testing.T) {
	c := Context{
		Persona:  "p",
		Examples: []Example{{Input: "a", Output: "b"}},
		Rules:    []string{"x", "", "y"},
	}
	first := Assemble(c)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Assemble(c))
	}
}

func TestAssemble_RulesKeepOwnWhitespace(t *testing.T) {
	c := Context{Rules: []string{"  indented rule"}}
	assert.Equal(t, "Rules to follow:\n1.   indented rule", Assemble(c))
}

func TestAssemble_DoesNotMutateInput(t *testing.T) {
	c := Context{
		Examples: []Example{{Input: "a"}},
		Rules:    []string{"", "b"},
	}
	_ = Assemble(c)
	assert.Equal(t, []Example{{Input: "a"}}, c.Examples)
	assert.Equal(t, []string{"", "b"}, c.Rules)
}

func TestHasLead(t *testing.T) {
	assert.False(t, HasLead(Context{}))
	assert.False(t, HasLead(Context{Persona: "  ", Rules: []string{"r"}}))
	assert.True(t, HasLead(Context{Persona: "p"}))
	assert.True(t, HasLead(Context{InitialPrompt: "q"}))
}

func BenchmarkAssemble(b *testing.B) {
	c := Context{
		Persona:           "An expert in Python and data structures",
		InitialPrompt:     "Create a function to find the second largest number.",
		BackgroundContext: "Utility library for a data analysis application.",
		Examples:          []Example{{Input: "[10, 5, 8, 20]", Output: "10"}, {Input: "[5, 5]", Output: "None"}},
		OutputFormat:      "Only the code.",
		Rules:             []string{"No sorting.", "O(n).", "Return None when fewer than two unique values."},
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = Assemble(c)
	}
}
