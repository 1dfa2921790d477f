package handlers

import (
	"context"
	"fmt"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

// EvaluatorHandler scores `content` against a declared metric set using a
// language model and returns the structured scores.
type EvaluatorHandler struct {
	Providers engine.ProviderRegistry
}

func (h *EvaluatorHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindEvaluator }

func (h *EvaluatorHandler) Execute(ctx context.Context, block *engine.Block, inputs map[string]any, _ *engine.ExecutionContext) (engine.BlockOutput, error) {
	content, _ := inputs["content"].(string)
	metrics, _ := block.Config.Params["metrics"].([]string)
	model, _ := block.Config.Params["model"].(string)
	provider, _ := block.Config.Params["provider"].(string)

	resp, err := h.Providers.Execute(ctx, provider, engine.ProviderRequest{
		Model:          model,
		SystemPrompt:   buildEvaluatorSystemPrompt(metrics),
		Messages:       []engine.ChatMessage{{Role: "user", Content: content}},
		ResponseFormat: "json",
	})
	if err != nil {
		return engine.BlockOutput{}, errs.Wrap(errs.ProviderError, block.ID, err)
	}

	scores, err := parseScores(resp.Content, metrics)
	if err != nil {
		return engine.BlockOutput{}, errs.Wrap(errs.ProviderError, block.ID, err)
	}
	out := map[string]any{"scores": scores, "model": resp.Model}
	return engine.RawOutput(out), nil
}

func buildEvaluatorSystemPrompt(metrics []string) string {
	s := "Score the given content on each of the following metrics from 0 to 1, responding with a JSON object mapping metric name to score: "
	for i, m := range metrics {
		if i > 0 {
			s += ", "
		}
		s += m
	}
	return s
}

func parseScores(raw string, metrics []string) (map[string]float64, error) {
	parsed, err := unmarshalJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("parse evaluator response: %w", err)
	}
	scores := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		if v, ok := parsed[m]; ok {
			if f, ok := v.(float64); ok {
				scores[m] = f
			}
		}
	}
	return scores, nil
}
