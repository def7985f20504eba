//go:build integration
// +build integration

package openrouter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Hits the real OpenRouter API.
// Run with: go test -tags=integration ./ai/openrouter
// Requires: OPENROUTER_API_KEY

func TestIntegration_RealAPI(t *testing.T) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENROUTER_API_KEY not set, skipping integration tests")
	}

	client, err := NewClient(Config{Model: "openai/gpt-4o-mini"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Chat(ctx, ChatRequest{
		APIKey: apiKey,
		Prompt: "Initial Prompt: Reply with the single word OK.\n\nRules to follow:\n1. Be concise",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Choices)
	t.Logf("model=%s response=%q", resp.Model, resp.FullText())
}

func TestIntegration_InvalidKey(t *testing.T) {
	if os.Getenv("OPENROUTER_API_KEY") == "" {
		t.Skip("OPENROUTER_API_KEY not set, skipping integration tests")
	}

	client, err := NewClient(Config{})
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), ChatRequest{APIKey: "sk-or-v1-invalid", Prompt: "hi"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.Status)
}
