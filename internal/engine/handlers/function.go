package handlers

import (
	"context"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

// FunctionHandler runs untrusted code in an isolated sandbox. It provides
// `input` (the caller's current resolved data) and expects a single
// returned value. Sandbox errors surface verbatim.
type FunctionHandler struct {
	Sandbox engine.Sandbox
}

func (h *FunctionHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindFunction }

func (h *FunctionHandler) Execute(ctx context.Context, block *engine.Block, inputs map[string]any, _ *engine.ExecutionContext) (engine.BlockOutput, error) {
	code, _ := block.Config.Params["code"].(string)
	if code == "" {
		return engine.BlockOutput{}, errs.New(errs.ValidationFailed, block.ID, "function block has no code configured")
	}

	result, err := h.Sandbox.Run(ctx, code, inputs)
	if err != nil {
		return engine.BlockOutput{}, errs.Wrap(errs.ValidationFailed, block.ID, err)
	}

	if m, ok := result.(map[string]any); ok {
		return engine.RawOutput(m), nil
	}
	return engine.RawOutput(map[string]any{"result": result}), nil
}
