package commands

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/ctxeng/am"
	"github.com/teranos/ctxeng/display"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
)

const testKey = "sk-or-v1-0123456789abcdef"

// isolate points every piece of on-disk state at temporary directories.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TMPDIR", t.TempDir())
	t.Setenv("CTXENG_DATABASE_PATH", filepath.Join(home, "ctxeng.db"))
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("CTXENG_OPENROUTER_API_KEY", "")
	t.Setenv(display.CallerEnv, "")
	t.Chdir(home)
	am.Reset()
	t.Cleanup(am.Reset)
	return home
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	am.Reset()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decode(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &m), out)
	return m
}

func TestAssemble(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "haiku.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"initialPrompt: Write a haiku\nexamples:\n  - {}\nrules:\n  - \"  \"\n  - Be concise\n"), 0o600))

	out, err := run(t, "", "assemble", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "Initial Prompt: Write a haiku\n\nRules to follow:\n2. Be concise\n", out)
}

func TestAssemble_Stdin(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "assemble", "-f", "-")
	require.NoError(t, err)
	assert.Equal(t, "Your engineered context will appear here in real-time.\n", out)

	out, err = run(t, "persona: You are a poet\n", "assemble", "-f", "-")
	require.NoError(t, err)
	assert.Equal(t, "Persona: You are a poet\n", out)
}

func TestAssemble_PresetJSON(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "assemble", "--preset", "coding", "--json")
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, false, got["empty"])
	assert.True(t, strings.HasPrefix(got["text"].(string), "Persona: "))
}

func TestAssemble_NeedsSource(t *testing.T) {
	isolate(t)

	_, err := run(t, "", "assemble")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = run(t, "", "assemble", "--preset", "nonexistent")
	assert.Error(t, err)
}

func TestKeyLifecycle(t *testing.T) {
	isolate(t)

	_, err := run(t, "", "key", "set", "invalid-key")
	assert.True(t, errors.Is(err, keystore.ErrMalformedCredential))
	assert.False(t, errors.Is(err, keystore.ErrMissingCredential))

	_, err = run(t, "", "key", "set", "   ")
	assert.True(t, errors.Is(err, keystore.ErrMissingCredential))
	assert.False(t, errors.Is(err, keystore.ErrMalformedCredential))

	out, err := run(t, "", "key", "get", "--json")
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, out)["configured"])

	out, err = run(t, "", "key", "set", "--json", "  "+testKey+"  ")
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, "durable", got["tier"])
	assert.Equal(t, "sk-or-v1-…cdef", got["masked"])

	out, err = run(t, "", "key", "get", "--json")
	require.NoError(t, err)
	got = decode(t, out)
	assert.Equal(t, true, got["configured"])
	assert.Equal(t, "durable", got["source"])

	_, err = run(t, "", "key", "clear")
	require.NoError(t, err)

	out, err = run(t, "", "key", "get", "--json")
	require.NoError(t, err)
	assert.Equal(t, false, decode(t, out)["configured"])
}

func TestKeyGet_FallsBackToEnvironment(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", testKey)

	out, err := run(t, "", "key", "get", "--json")
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, true, got["configured"])
	assert.Equal(t, "config", got["source"])
}

func TestKeyCheck(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "key", "check", "--json")
	require.NoError(t, err)
	got := decode(t, out)
	assert.Equal(t, true, got["usable"])
	assert.Len(t, got["tiers"], 3)
}

func TestSend_RequiresKey(t *testing.T) {
	isolate(t)

	_, err := run(t, "", "send", "--preset", "Coding")
	require.Error(t, err)
	assert.True(t, errors.Is(err, keystore.ErrMissingCredential))
	assert.False(t, errors.Is(err, keystore.ErrMalformedCredential))
}

// countOpens counts database opens for the rest of the test.
func countOpens(t *testing.T) *atomic.Int32 {
	t.Helper()
	var n atomic.Int32
	orig := openDB
	openDB = func(path string, log *zap.SugaredLogger) (*sql.DB, error) {
		n.Add(1)
		return orig(path, log)
	}
	t.Cleanup(func() { openDB = orig })
	return &n
}

func TestSend_SharesOneDatabase(t *testing.T) {
	isolate(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "gen-1",
			"model": "anthropic/claude-3.5-sonnet",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Autumn moonlight"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 8, "total_tokens": 20}
		}`))
	}))
	t.Cleanup(upstream.Close)
	t.Setenv("CTXENG_OPENROUTER_BASE_URL", upstream.URL)

	_, err := run(t, "", "key", "set", testKey)
	require.NoError(t, err)

	opens := countOpens(t)
	out, err := run(t, "", "send", "--preset", "Coding")
	require.NoError(t, err)
	assert.Equal(t, "Autumn moonlight\n", out)
	assert.Equal(t, int32(1), opens.Load(), "the key lookup and usage tracking share one handle")

	out, err = run(t, "", "usage", "--json")
	require.NoError(t, err)
	stats := decode(t, out)["stats"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_requests"])
}

func TestModels(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "models", "--provider", "openai", "--json")
	require.NoError(t, err)
	var models []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &models))
	require.NotEmpty(t, models)
	for _, m := range models {
		assert.Equal(t, "OpenAI", m["provider"])
	}

	_, err = run(t, "", "models", "--provider", "nobody")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestPresets(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "presets")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Coding"))
}

func TestAmSetAndGet(t *testing.T) {
	home := isolate(t)

	_, err := run(t, "", "am", "set", "server.port", "9000")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ".ctxeng", "am.toml"))

	out, err := run(t, "", "am", "get", "server.port")
	require.NoError(t, err)
	assert.Equal(t, "9000\n", out)

	_, err = run(t, "", "am", "set", "server.nope", "1")
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = run(t, "", "am", "set", "server.port", "high")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestAmGet_MasksAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", testKey)

	out, err := run(t, "", "am", "get", "openrouter.api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk-or-v1-…cdef\n", out)
}

func TestAmShowJSON(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", testKey)

	out, err := run(t, "", "am", "show", "--format", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, testKey)
	got := decode(t, out)
	assert.Contains(t, got, "openrouter")
}

func TestAmValidate(t *testing.T) {
	isolate(t)
	_, err := run(t, "", "am", "validate")
	require.NoError(t, err)

	t.Setenv("CTXENG_OPENROUTER_TIMEOUT_SECONDS", "0")
	_, err = run(t, "", "am", "validate")
	assert.Error(t, err)
}

func TestVersionJSON(t *testing.T) {
	isolate(t)

	out, err := run(t, "", "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, decode(t, out), "version")
}
