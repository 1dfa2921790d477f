package handlers

import (
	"context"
	"fmt"
	"strings"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
	"sim.studio/executor/internal/security"
)

// APIHandler validates the URL and dispatches the configured tool via the
// tool registry, per spec §4.4.
type APIHandler struct {
	Tools     engine.ToolRegistry
	Validator *security.URLValidator
}

func (h *APIHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindAPI }

func (h *APIHandler) Execute(ctx context.Context, block *engine.Block, inputs map[string]any, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	rawURL, _ := inputs["url"].(string)
	rawURL = strings.TrimSpace(rawURL)

	if rawURL == "" {
		return engine.RawOutput(map[string]any{"data": nil, "status": 200, "headers": map[string]any{}}), nil
	}

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return engine.BlockOutput{}, errs.Newf(errs.ValidationFailed, block.ID,
			`url %q is missing a protocol; try "https://%s"`, rawURL, rawURL)
	}

	if h.Validator != nil {
		if err := h.Validator.Validate(ctx, rawURL); err != nil {
			return engine.BlockOutput{}, errs.Wrap(errs.ValidationFailed, block.ID, err)
		}
	}

	method, _ := inputs["method"].(string)
	if method == "" {
		method = "GET"
	}
	body := inputs["body"]
	if body == nil {
		delete(inputs, "body")
	}

	toolID := block.Config.Tool
	if _, ok := h.Tools.GetTool(toolID); !ok {
		return engine.BlockOutput{}, errs.Newf(errs.ToolNotFound, block.ID, "tool %q not found", toolID)
	}

	result, err := h.Tools.ExecuteTool(ctx, toolID, inputs, ectx)
	if err != nil || !result.Success {
		return engine.BlockOutput{}, composeAPIError(block, toolID, rawURL, method, result, err)
	}
	return engine.RawOutput(result.Output), nil
}

// composeAPIError mirrors spec §4.4's api handler: an error string
// containing URL, method, status, statusText, and a status-code-mapped
// suggestion, with toolId/blockId/blockName/status/request/timestamp
// fields attached for callers that want structured access.
func composeAPIError(block *engine.Block, toolID, rawURL, method string, result engine.ToolResult, err error) error {
	status, _ := result.Output["status"].(int)
	statusText, _ := result.Output["statusText"].(string)

	msg := fmt.Sprintf("request to %s %s failed", method, rawURL)
	if status != 0 {
		msg += fmt.Sprintf(" with status %d %s", status, statusText)
	}
	if err != nil {
		msg += fmt.Sprintf(": %v", err)
		if isNetworkError(err) {
			msg += "; suggestion: check network connectivity and CORS configuration"
		}
	}
	if suggestion := statusSuggestion(status); suggestion != "" {
		msg += "; suggestion: " + suggestion
	}

	be := errs.New(errs.ProviderError, block.ID, msg)
	be.WithField("toolId", toolID).
		WithField("blockId", block.ID).
		WithField("blockName", block.Name).
		WithField("status", status).
		WithField("request", map[string]any{"url": rawURL, "method": method})
	return be
}

func statusSuggestion(status int) string {
	switch {
	case status == 403:
		return "check CORS configuration or authentication credentials"
	case status == 404:
		return "verify the resource exists at this URL"
	case status == 429:
		return "you are being rate limited by the upstream service"
	case status >= 500:
		return "the upstream server encountered an error"
	default:
		return ""
	}
}

func isNetworkError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "failed to fetch") || strings.Contains(s, "cors") || strings.Contains(s, "connection refused")
}
