package clients_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sim.studio/executor/internal/clients"
	"sim.studio/executor/internal/engine"
)

func TestProviderRegistry_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		messages, _ := body["messages"].([]any)
		require.Len(t, messages, 2) // system + user

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": "hi there",
			"model":   "gpt-test",
			"usage":   map[string]any{"prompt_tokens": 3, "completion_tokens": 5},
		})
	}))
	defer srv.Close()

	reg := clients.NewProviderRegistry(nil, nil, map[string]clients.ProviderEndpoint{
		"openai": {BaseURL: srv.URL, APIKey: "test-key"},
	})

	resp, err := reg.Execute(context.Background(), "openai", engine.ProviderRequest{
		Model:        "gpt-test",
		SystemPrompt: "be helpful",
		Messages:     []engine.ChatMessage{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Content)
	assert.Equal(t, "gpt-test", resp.Model)
	require.NotNil(t, resp.Tokens)
	assert.Equal(t, 8, resp.Tokens.Total)
}

func TestProviderRegistry_Execute_UnknownProvider(t *testing.T) {
	reg := clients.NewProviderRegistry(nil, nil, map[string]clients.ProviderEndpoint{})
	_, err := reg.Execute(context.Background(), "nope", engine.ProviderRequest{})
	assert.Error(t, err)
}

func TestProviderRegistry_ExecuteStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		w.Write([]byte("chunk-one\n"))
		if flusher != nil {
			flusher.Flush()
		}
		w.Write([]byte("chunk-two\n"))
	}))
	defer srv.Close()

	reg := clients.NewProviderRegistry(nil, nil, map[string]clients.ProviderEndpoint{
		"openai": {BaseURL: srv.URL, APIKey: "k"},
	})

	exec, err := reg.ExecuteStreaming(context.Background(), "openai", engine.ProviderRequest{Model: "gpt-test"})
	require.NoError(t, err)

	var chunks []string
	for c := range exec.Stream {
		chunks = append(chunks, string(c))
	}
	assert.Equal(t, []string{"chunk-one", "chunk-two"}, chunks)
	assert.Equal(t, "openai", exec.Execution["provider"])
}
