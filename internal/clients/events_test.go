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
)

func TestHTTPEventPublisher_PostsEvent(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	pub := clients.NewHTTPEventPublisher(nil, nil, srv.URL)
	err := pub.Publish(context.Background(), "workflow_completed", map[string]any{"workflowId": "wf-1"})
	require.NoError(t, err)

	assert.Equal(t, "workflow_completed", received["type"])
	payload, ok := received["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "wf-1", payload["workflowId"])
}

func TestHTTPEventPublisher_NoopWhenUnconfigured(t *testing.T) {
	pub := clients.NewHTTPEventPublisher(nil, nil, "")
	err := pub.Publish(context.Background(), "node_failed", map[string]any{})
	assert.NoError(t, err)
}
