// Package assemble renders a structured prompt Context into the single text
// block that is previewed to the user and sent to the model.
//
// Sections appear in a fixed order and only when they carry content:
//
//	Persona: ...
//
//	Initial Prompt: ...
//
//	Background Context:
//	...
//
//	Examples:
//	1. Input: ...
//	   Output: ...
//
//	Output Format: ...
//
//	Rules to follow:
//	1. ...
//
// Examples and rules are both numbered by their position in the caller's
// list, skipped entries included, so a blank first rule leaves the next one
// numbered 2.
package assemble

import (
	"strconv"
	"strings"
)

// Placeholder is shown in previews when a Context assembles to nothing.
const Placeholder = "Your engineered context will appear here in real-time."

// Example is one input/output demonstration pair.
type Example struct {
	Input  string `json:"input" yaml:"input" toml:"input"`
	Output string `json:"output" yaml:"output" toml:"output"`
}

// IsBlank reports whether both sides of the pair are empty.
func (e Example) IsBlank() bool {
	return e.Input == "" && e.Output == ""
}

// Context is the structured form a user fills in. It is a plain value: callers
// replace it wholesale on every edit.
type Context struct {
	Persona           string    `json:"persona" yaml:"persona" toml:"persona"`
	InitialPrompt     string    `json:"initialPrompt" yaml:"initialPrompt" toml:"initialPrompt"`
	BackgroundContext string    `json:"backgroundContext" yaml:"backgroundContext" toml:"backgroundContext"`
	Examples          []Example `json:"examples" yaml:"examples" toml:"examples"`
	OutputFormat      string    `json:"outputFormat" yaml:"outputFormat" toml:"outputFormat"`
	Rules             []string  `json:"rules" yaml:"rules" toml:"rules"`
}

// Assemble renders c. The result is trimmed and is "" when no section has
// content. Assemble never fails and has no side effects.
func Assemble(c Context) string {
	var b strings.Builder
	b.Grow(estimate(c))

	if c.Persona != "" {
		b.WriteString("Persona: ")
		b.WriteString(c.Persona)
		b.WriteString("\n\n")
	}

	if c.InitialPrompt != "" {
		b.WriteString("Initial Prompt: ")
		b.WriteString(c.InitialPrompt)
		b.WriteString("\n\n")
	}

	if c.BackgroundContext != "" {
		b.WriteString("Background Context:\n")
		b.WriteString(c.BackgroundContext)
		b.WriteString("\n\n")
	}

	if hasExamples(c.Examples) {
		b.WriteString("Examples:\n")
		for i, ex := range c.Examples {
			if ex.IsBlank() {
				continue
			}
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". Input: ")
			b.WriteString(ex.Input)
			b.WriteString("\n   Output: ")
			b.WriteString(ex.Output)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if c.OutputFormat != "" {
		b.WriteString("Output Format: ")
		b.WriteString(c.OutputFormat)
		b.WriteString("\n\n")
	}

	if hasRules(c.Rules) {
		b.WriteString("Rules to follow:\n")
		for i, rule := range c.Rules {
			if isBlank(rule) {
				continue
			}
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". ")
			b.WriteString(rule)
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String())
}

// Preview is Assemble with the Placeholder substituted for empty output.
// It is for display only; never send its result to a model.
func Preview(c Context) string {
	if text := Assemble(c); text != "" {
		return text
	}
	return Placeholder
}

// IsEmpty reports whether c assembles to the empty string.
func IsEmpty(c Context) bool {
	return Assemble(c) == ""
}

// HasLead reports whether c has a persona or an initial prompt, the minimum a
// request needs to be worth sending.
func HasLead(c Context) bool {
	return !isBlank(c.Persona) || !isBlank(c.InitialPrompt)
}

func hasExamples(examples []Example) bool {
	for _, ex := range examples {
		if !ex.IsBlank() {
			return true
		}
	}
	return false
}

func hasRules(rules []string) bool {
	for _, rule := range rules {
		if !isBlank(rule) {
			return true
		}
	}
	return false
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// estimate sizes the builder so a render costs one allocation.
func estimate(c Context) int {
	n := len(c.Persona) + len(c.InitialPrompt) + len(c.BackgroundContext) + len(c.OutputFormat) + 128
	for _, ex := range c.Examples {
		n += len(ex.Input) + len(ex.Output) + 32
	}
	for _, rule := range c.Rules {
		n += len(rule) + 8
	}
	return n
}
