package handlers

import (
	"context"
	"strings"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

// AgentHandler composes messages (system prompt, context, user prompt)
// plus an optional tools list, selects a provider by model via the
// provider registry, and forwards the request streaming or not per
// config. For streaming requests the side-channel execution metadata is
// attached to ctx.Metadata under the block id so the streaming processor
// (§4.7) and the HTTP boundary's X-Execution-Data header can reach it.
type AgentHandler struct {
	Providers    engine.ProviderRegistry
	ModelToProvider func(model string) string
}

func (h *AgentHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindAgent }

func (h *AgentHandler) Execute(ctx context.Context, block *engine.Block, inputs map[string]any, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	systemPrompt, _ := inputs["systemPrompt"].(string)
	userPrompt, _ := inputs["userPrompt"].(string)
	contextStr, _ := inputs["context"].(string)
	model, _ := block.Config.Params["model"].(string)
	stream, _ := block.Config.Params["stream"].(bool)
	var tools []string
	if ts, ok := block.Config.Params["tools"].([]string); ok {
		tools = ts
	}

	provider := ""
	if h.ModelToProvider != nil {
		provider = h.ModelToProvider(model)
	}

	messages := []engine.ChatMessage{}
	if contextStr != "" {
		messages = append(messages, engine.ChatMessage{Role: "system", Content: contextStr})
	}
	messages = append(messages, engine.ChatMessage{Role: "user", Content: userPrompt})

	req := engine.ProviderRequest{
		Model: model, SystemPrompt: systemPrompt, Context: contextStr,
		Tools: tools, Messages: messages, Stream: stream, WorkflowID: ectx.WorkflowID,
	}

	if stream {
		exec, err := h.Providers.ExecuteStreaming(ctx, provider, req)
		if err != nil {
			return engine.BlockOutput{}, errs.Wrap(errs.ProviderError, block.ID, err)
		}
		ectx.Metadata["stream:"+block.ID] = exec
		sanitized := map[string]any{}
		for k, v := range exec.Execution {
			if s, ok := v.(string); ok {
				sanitized[k] = sanitizeASCII(s)
			} else {
				sanitized[k] = v
			}
		}
		ectx.Metadata["execution_header:"+block.ID] = sanitized
		return engine.BlockOutput{Agent: &engine.AgentResponse{Model: model}}, nil
	}

	resp, err := h.Providers.Execute(ctx, provider, req)
	if err != nil {
		return engine.BlockOutput{}, errs.Wrap(errs.ProviderError, block.ID, err)
	}
	return engine.BlockOutput{Agent: &engine.AgentResponse{
		Content: resp.Content, Model: resp.Model, Tokens: resp.Tokens, ToolCalls: resp.ToolCalls, Cost: resp.Cost,
	}}, nil
}

// sanitizeASCII strips non-ASCII runes so response content copied into
// out-of-band HTTP headers (e.g. X-Execution-Data) remains a valid header
// value.
func sanitizeASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
