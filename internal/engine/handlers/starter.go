package handlers

import (
	"context"

	"sim.studio/executor/internal/engine"
)

// StarterHandler returns the run's initial input unchanged.
type StarterHandler struct {
	Input map[string]any
}

func (h *StarterHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindStarter }

func (h *StarterHandler) Execute(_ context.Context, _ *engine.Block, _ map[string]any, _ *engine.ExecutionContext) (engine.BlockOutput, error) {
	return engine.RawOutput(h.Input), nil
}
