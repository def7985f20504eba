// Package display renders CLI output as pterm text or JSON.
package display

import (
	"encoding/json"
	"flag"
	"os"
)

// CallerEnv, when set to "agent", marks the process as driven by a tool
// rather than a person.
const CallerEnv = "CTXENG_CALLER"

// IsAgentCaller reports whether output is consumed by a program.
func IsAgentCaller() bool {
	return os.Getenv(CallerEnv) == "agent"
}

// MarshalJSON renders compact JSON for agent callers and indented JSON for
// people and tests.
func MarshalJSON(v interface{}) ([]byte, error) {
	if flag.Lookup("test.v") != nil || !IsAgentCaller() {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
