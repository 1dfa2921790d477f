package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/orchestrator"
	"sim.studio/executor/internal/httpapi/handlers"
	"sim.studio/executor/internal/persistence/postgres"
	"sim.studio/executor/internal/ratelimit"
)

type fakeStore struct {
	wf  *engine.SerializedWorkflow
	env map[string]string
	err error
}

func (f *fakeStore) Load(ctx context.Context, workflowID string) (*engine.SerializedWorkflow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.wf, nil
}

func (f *fakeStore) LoadEnvironmentVariables(ctx context.Context, userID string) (map[string]string, error) {
	return f.env, nil
}

type fakePlans struct{ plan ratelimit.Plan }

func (f fakePlans) ResolvePlan(userID string) ratelimit.Plan { return f.plan }

func simpleWorkflow(t *testing.T) *engine.SerializedWorkflow {
	t.Helper()
	wf := &engine.Workflow{
		Blocks: map[string]*engine.Block{
			"start": {ID: "start", Kind: engine.KindStarter, Enabled: true},
			"resp": {ID: "resp", Kind: engine.KindResponse, Enabled: true, Config: engine.BlockConfig{Params: map[string]any{
				"name": "{{start.name}}",
			}}},
		},
		Connections: []engine.Connection{{Source: "start", Target: "resp"}},
	}
	sw, err := engine.NewSerializer().Serialize(wf)
	require.NoError(t, err)
	return sw
}

func newTestEngine(t *testing.T) *orchestrator.Engine {
	t.Helper()
	eng, err := orchestrator.New(orchestrator.Opts{})
	require.NoError(t, err)
	return eng
}

func TestExecuteHandler_RunsSimpleWorkflowAndReturnsJSON(t *testing.T) {
	e := echo.New()
	h := handlers.NewExecuteHandler(newTestEngine(t), &fakeStore{wf: simpleWorkflow(t), env: map[string]string{}}, ratelimit.New(nil, nil), fakePlans{plan: ratelimit.PlanFree})

	body := strings.NewReader(`{"input":{"name":"ada"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/execute/wf-1", body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("workflowId")
	c.SetParamValues("wf-1")

	err := h.Execute(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ada", out["name"])
}

func TestExecuteHandler_UnknownWorkflowReturns404(t *testing.T) {
	e := echo.New()
	h := handlers.NewExecuteHandler(newTestEngine(t), &fakeStore{err: postgres.ErrNotFound}, ratelimit.New(nil, nil), fakePlans{plan: ratelimit.PlanFree})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/execute/missing", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("workflowId")
	c.SetParamValues("missing")

	err := h.Execute(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteHandler_RateLimitExceededReturns429(t *testing.T) {
	e := echo.New()
	limiter := ratelimit.New(nil, nil)
	store := &fakeStore{wf: simpleWorkflow(t), env: map[string]string{}}
	h := handlers.NewExecuteHandler(newTestEngine(t), store, limiter, fakePlans{plan: ratelimit.PlanFree})

	var lastCode int
	for i := 0; i < 11; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/execute/wf-1", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("workflowId")
		c.SetParamValues("wf-1")
		require.NoError(t, h.Execute(c))
		lastCode = rec.Code
		if lastCode == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Contains(t, body, "retryAfter")
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, lastCode)
}
