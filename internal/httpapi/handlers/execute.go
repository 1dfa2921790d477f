// Package handlers implements the HTTP boundary's echo handlers, grounded
// on the teacher's cmd/orchestrator/handlers/run.go method shape (bind,
// structured logging, echo.NewHTTPError) adapted from the teacher's
// patch/run control plane onto the spec's execution endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
	"sim.studio/executor/internal/engine/orchestrator"
	"sim.studio/executor/internal/engine/streaming"
	httpmw "sim.studio/executor/internal/httpapi/middleware"
	"sim.studio/executor/internal/persistence/postgres"
	"sim.studio/executor/internal/ratelimit"
)

// Store is the exact subset of internal/persistence/postgres.Store the
// handler calls through, kept as an interface so tests can substitute a
// fake without a real database.
type Store interface {
	Load(ctx context.Context, workflowID string) (*engine.SerializedWorkflow, error)
	LoadEnvironmentVariables(ctx context.Context, userID string) (map[string]string, error)
}

// PlanResolver looks up a user's billing plan, an external collaborator
// (billing/accounts) the core treats as out of scope.
type PlanResolver interface {
	ResolvePlan(userID string) ratelimit.Plan
}

// ExecuteRequest is the POST /execute/{workflowId} body.
type ExecuteRequest struct {
	Input map[string]any `json:"input"`
}

// ExecuteHandler implements POST /execute/{workflowId}.
type ExecuteHandler struct {
	Engine  *orchestrator.Engine
	Store   Store
	Limiter *ratelimit.Limiter
	Plans   PlanResolver
}

func NewExecuteHandler(eng *orchestrator.Engine, store Store, limiter *ratelimit.Limiter, plans PlanResolver) *ExecuteHandler {
	return &ExecuteHandler{Engine: eng, Store: store, Limiter: limiter, Plans: plans}
}

// Execute handles POST /execute/{workflowId}: loads the workflow, admits
// the run against the rate limiter, runs it, and responds either with a
// JSON result or a text/event-stream of {chunk, done} frames, per spec §6.
func (h *ExecuteHandler) Execute(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflowId")
	userID := httpmw.UserID(c)

	var req ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body", "details": err.Error()})
	}

	wf, err := h.Store.Load(ctx, workflowID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]any{"error": "workflow not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to load workflow", "details": err.Error()})
	}

	trigger := engine.TriggerManual
	isAsync := false
	if c.Request().Header.Get(httpmw.APIKeyHeader) != "" {
		trigger = engine.TriggerAPI
		isAsync = true
	}

	plan := ratelimit.PlanFree
	if h.Plans != nil {
		plan = h.Plans.ResolvePlan(userID)
	}
	profile := ratelimit.Inspect(wf)
	result, err := h.Limiter.Check(ctx, userID, plan, isAsync, profile.Tier)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "rate limit check failed", "details": err.Error()})
	}
	if !result.Allowed {
		retryAfter := int(ratelimit.WindowSeconds)
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error":      "rate_limited",
			"retryAfter": retryAfter,
		})
	}

	env, err := h.Store.LoadEnvironmentVariables(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to load environment variables", "details": err.Error()})
	}

	ectx, output, err := h.Engine.Run(ctx, workflowID, wf, req.Input, trigger, env)
	if err != nil {
		kind := errs.KindOf(err)
		return c.JSON(statusForKind(kind), map[string]any{"error": err.Error()})
	}

	if blockID, exec, ok := findStream(ectx); ok {
		return h.streamResponse(c, wf, blockID, exec, ectx)
	}

	return c.JSON(http.StatusOK, output.AsMap())
}

// findStream locates at most one in-flight agent stream an agent block
// stashed on ExecutionContext.Metadata under "stream:"+blockID, per the
// agent handler's streaming wiring. A workflow with more than one
// streaming agent block picks the first found; concurrent streamed agent
// responses to a single HTTP caller are not modeled here.
func findStream(ectx *engine.ExecutionContext) (blockID string, exec *engine.StreamingExecution, ok bool) {
	if ectx == nil {
		return "", nil, false
	}
	for k, v := range ectx.Metadata {
		id, found := strings.CutPrefix(k, "stream:")
		if !found {
			continue
		}
		se, isStream := v.(*engine.StreamingExecution)
		if !isStream {
			continue
		}
		return id, se, true
	}
	return "", nil, false
}

// selectionFor reads the <blockId>_<fieldName> selection tokens from the
// workflow's response block, the configured sink for an agent stream.
// Absent a response block or a "selectedOutputs" param, no selection
// applies and the stream passes through untouched, per spec §4.7.
func selectionFor(wf *engine.SerializedWorkflow) []streaming.Field {
	for _, b := range wf.BlocksByID {
		if b.Kind != engine.KindResponse {
			continue
		}
		raw, ok := b.Config.Params["selectedOutputs"]
		if !ok {
			continue
		}
		tokens := toStringSlice(raw)
		if len(tokens) > 0 {
			return streaming.ParseSelection(tokens)
		}
	}
	return nil
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// streamResponse writes a text/event-stream body of {chunk, done} JSON
// frames, newline delimited, per spec §6, attaching X-Execution-Data from
// the agent handler's sanitized execution metadata.
func (h *ExecuteHandler) streamResponse(c echo.Context, wf *engine.SerializedWorkflow, blockID string, exec *engine.StreamingExecution, ectx *engine.ExecutionContext) error {
	if header, ok := ectx.Metadata["execution_header:"+blockID]; ok {
		if encoded, err := json.Marshal(header); err == nil {
			c.Response().Header().Set("X-Execution-Data", string(encoded))
		}
	}

	selection := selectionFor(wf)
	processed := streaming.Process(exec.Stream, blockID, selection)

	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	for chunk := range processed {
		frame, err := json.Marshal(map[string]any{"chunk": string(chunk), "done": false})
		if err != nil {
			continue
		}
		fmt.Fprintf(c.Response(), "%s\n", frame)
		c.Response().Flush()
	}
	finalFrame, _ := json.Marshal(map[string]any{"chunk": "", "done": true})
	fmt.Fprintf(c.Response(), "%s\n", finalFrame)
	c.Response().Flush()
	return nil
}
