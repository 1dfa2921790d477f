package handlers

import (
	"context"
	"fmt"
	"strings"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

// RouterCandidate describes one downstream block the router may select,
// supplied via the resolved block config.
type RouterCandidate struct {
	BlockID      string
	BlockType    string
	Title        string
	Description  string
	SystemPrompt string
}

// RouterHandler sends the user prompt to a language model with a generated
// system prompt listing candidate downstream blocks, then matches the
// model's (trimmed, lowercased) response against candidate ids, exact
// match only (decision #2 in SPEC_FULL §6: no fuzzy/title matching).
type RouterHandler struct {
	Providers engine.ProviderRegistry
}

func (h *RouterHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindRouter }

func (h *RouterHandler) Execute(ctx context.Context, block *engine.Block, inputs map[string]any, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	prompt, _ := inputs["prompt"].(string)
	model, _ := block.Config.Params["model"].(string)
	provider, _ := block.Config.Params["provider"].(string)
	candidates, _ := block.Config.Params["candidates"].([]RouterCandidate)

	resp, err := h.Providers.Execute(ctx, provider, engine.ProviderRequest{
		Model:        model,
		SystemPrompt: buildRouterSystemPrompt(candidates),
		Messages:     []engine.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return engine.BlockOutput{}, errs.Wrap(errs.ProviderError, block.ID, err)
	}

	chosen := strings.ToLower(strings.TrimSpace(resp.Content))
	var match *RouterCandidate
	for i := range candidates {
		if strings.ToLower(candidates[i].BlockID) == chosen {
			match = &candidates[i]
			break
		}
	}
	if match == nil {
		return engine.BlockOutput{}, errs.Newf(errs.InvalidRoutingDecision, block.ID, "model selected %q which matches no candidate id", resp.Content)
	}

	ectx.SetRouterDecision(block.ID, match.BlockID)
	return engine.BlockOutput{Router: &engine.RouterDecision{
		SelectedPath: engine.SelectedPath{BlockID: match.BlockID, BlockType: match.BlockType, BlockTitle: match.Title},
		Content:      prompt,
		Model:        resp.Model,
		Tokens:       resp.Tokens,
	}}, nil
}

func buildRouterSystemPrompt(candidates []RouterCandidate) string {
	var b strings.Builder
	b.WriteString("You are a routing function. Choose exactly one candidate id to continue the workflow.\n")
	b.WriteString("Respond with only the candidate id, nothing else.\n\nCandidates:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- id: %s, title: %s, description: %s", c.BlockID, c.Title, c.Description)
		if c.SystemPrompt != "" {
			fmt.Fprintf(&b, ", system prompt: %s", c.SystemPrompt)
		}
		b.WriteString("\n")
	}
	return b.String()
}
