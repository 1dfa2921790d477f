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

func TestToolRegistry_ExecuteTool_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "alice", r.Header.Get("X-User-ID"))
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["q"])
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"result": "ok"})
	}))
	defer srv.Close()

	reg := clients.NewToolRegistry(nil, nil)
	reg.Register(&engine.ToolSpec{
		Name:   "search",
		URL:    srv.URL + "/search",
		Method: http.MethodPost,
		BodyFn: func(params map[string]any) (any, error) {
			return map[string]any{"q": params["query"]}, nil
		},
	})

	ctx := clients.WithUserID(context.Background(), "alice")
	result, err := reg.ExecuteTool(ctx, "search", map[string]any{"query": "hello"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.EqualValues(t, http.StatusOK, result.Output["status"])

	data, ok := result.Output["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["result"])
}

func TestToolRegistry_ExecuteTool_UpstreamFailureIsUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	reg := clients.NewToolRegistry(nil, nil)
	reg.Register(&engine.ToolSpec{Name: "flaky", URL: srv.URL, Method: http.MethodGet})

	result, err := reg.ExecuteTool(context.Background(), "flaky", nil, nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Error(t, result.Err)
}

func TestToolRegistry_ExecuteTool_UnknownToolErrors(t *testing.T) {
	reg := clients.NewToolRegistry(nil, nil)
	_, err := reg.ExecuteTool(context.Background(), "missing", nil, nil)
	assert.Error(t, err)
}

func TestToolRegistry_GetTool(t *testing.T) {
	reg := clients.NewToolRegistry(nil, nil)
	_, ok := reg.GetTool("nope")
	assert.False(t, ok)

	reg.Register(&engine.ToolSpec{Name: "thing"})
	spec, ok := reg.GetTool("thing")
	require.True(t, ok)
	assert.Equal(t, "thing", spec.Name)
}
