package handlers

import (
	"context"

	"sim.studio/executor/internal/engine"
)

// ResponseHandler marks the workflow as terminating with the provided
// value; no outgoing edges are followed (the orchestrator checks the
// block kind and stops advancing the path after this handler runs).
type ResponseHandler struct{}

func (h *ResponseHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindResponse }

func (h *ResponseHandler) Execute(_ context.Context, _ *engine.Block, inputs map[string]any, _ *engine.ExecutionContext) (engine.BlockOutput, error) {
	return engine.RawOutput(inputs), nil
}
