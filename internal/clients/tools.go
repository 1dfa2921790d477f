package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"sim.studio/executor/internal/engine"
)

// ToolRegistry is an in-process registry of engine.ToolSpec, dispatching
// ExecuteTool over HTTP the way the api handler expects: resolve
// URL/Method/Headers/Body (literal or the Fn variant, which takes
// precedence), issue the request, and run TransformResponse/
// TransformError over the result.
//
// Grounded on the teacher's OrchestratorClient: a thin HTTPClient wrapper
// issuing context-aware requests and decoding a JSON response, generalized
// from one fixed orchestrator API surface to an arbitrary registered set
// of tool endpoints.
type ToolRegistry struct {
	http *HTTPClient
	log  Logger

	mu    sync.RWMutex
	specs map[string]*engine.ToolSpec
}

// NewToolRegistry builds an empty registry; call Register for each tool
// the deployment wires in (typically at startup, from static
// configuration).
func NewToolRegistry(httpClient *http.Client, log Logger) *ToolRegistry {
	return &ToolRegistry{
		http:  NewHTTPClient(httpClient, log),
		log:   log,
		specs: make(map[string]*engine.ToolSpec),
	}
}

// Register adds or replaces a tool spec under spec.Name.
func (r *ToolRegistry) Register(spec *engine.ToolSpec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
}

func (r *ToolRegistry) GetTool(toolID string) (*engine.ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[toolID]
	return spec, ok
}

// ExecuteTool resolves the registered spec's URL/method/headers/body
// against params and performs the HTTP call. ectx is currently unused
// beyond interface compliance — no tool this port wires needs execution
// state, but the signature keeps room for one that does (e.g. reading a
// prior block's output to build a header).
func (r *ToolRegistry) ExecuteTool(ctx context.Context, toolID string, params map[string]any, ectx *engine.ExecutionContext) (engine.ToolResult, error) {
	spec, ok := r.GetTool(toolID)
	if !ok {
		return engine.ToolResult{}, fmt.Errorf("tool %q not registered", toolID)
	}

	url := spec.URL
	if spec.URLFn != nil {
		resolved, err := spec.URLFn(params)
		if err != nil {
			return engine.ToolResult{}, fmt.Errorf("resolve tool %q url: %w", toolID, err)
		}
		url = resolved
	}

	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	headers := spec.Headers
	if spec.HeadersFn != nil {
		resolved, err := spec.HeadersFn(params)
		if err != nil {
			return engine.ToolResult{}, fmt.Errorf("resolve tool %q headers: %w", toolID, err)
		}
		headers = resolved
	}

	bodyVal := spec.Body
	if spec.BodyFn != nil {
		resolved, err := spec.BodyFn(params)
		if err != nil {
			return engine.ToolResult{}, fmt.Errorf("resolve tool %q body: %w", toolID, err)
		}
		bodyVal = resolved
	}

	var bodyReader io.Reader
	if bodyVal != nil {
		raw, err := json.Marshal(bodyVal)
		if err != nil {
			return engine.ToolResult{}, fmt.Errorf("encode tool %q body: %w", toolID, err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	resp, err := r.http.Do(ctx, method, url, headers, bodyReader)
	if err != nil {
		if spec.TransformError != nil {
			return engine.ToolResult{Success: false, Err: err, Output: map[string]any{"message": spec.TransformError(err)}}, nil
		}
		return engine.ToolResult{}, fmt.Errorf("tool %q request: %w", toolID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return engine.ToolResult{}, fmt.Errorf("tool %q: read response: %w", toolID, err)
	}

	output := map[string]any{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"headers":    flattenHeader(resp.Header),
	}
	var data any
	if len(raw) > 0 && json.Unmarshal(raw, &data) == nil {
		output["data"] = data
	} else {
		output["data"] = string(raw)
	}

	if spec.TransformResponse != nil {
		transformed, terr := spec.TransformResponse(output)
		if terr != nil {
			return engine.ToolResult{}, fmt.Errorf("tool %q: transform response: %w", toolID, terr)
		}
		output = transformed
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	result := engine.ToolResult{Success: success, Output: output}
	if !success {
		result.Err = fmt.Errorf("tool %q: upstream status %d", toolID, resp.StatusCode)
	}
	return result, nil
}

func flattenHeader(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return out
}
