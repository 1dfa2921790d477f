package handlers

import (
	"context"
	"fmt"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

// Runner executes a fully-resolved SerializedWorkflow to completion and
// returns its terminal output; implemented by the top-level engine and
// injected here to avoid a handlers -> engine-orchestration import cycle.
type Runner interface {
	RunEmbedded(ctx context.Context, workflowID string, wf *engine.SerializedWorkflow, input map[string]any, trigger engine.TriggerType) (engine.BlockOutput, error)
}

// WorkflowEmbedHandler executes another workflow by id in the same
// context's triggerType, returning its terminal output. Cycles are
// prevented by tracking the id stack (starting with the outermost
// workflow's id): it is recorded in ctx.Metadata and carried into nested
// runs through the context.Context, since every embedded run gets a fresh
// ExecutionContext.
type WorkflowEmbedHandler struct {
	Loader engine.WorkflowLoader
	Runner Runner
}

func (h *WorkflowEmbedHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindWorkflow }

const embedStackKey = "workflow_embed_stack"

type embedStackCtxKey struct{}

func (h *WorkflowEmbedHandler) Execute(ctx context.Context, block *engine.Block, inputs map[string]any, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	targetID, _ := block.Config.Params["workflowId"].(string)
	if targetID == "" {
		return engine.BlockOutput{}, errs.New(errs.ValidationFailed, block.ID, "workflow block has no workflowId configured")
	}

	stack, _ := ctx.Value(embedStackCtxKey{}).([]string)
	if len(stack) == 0 {
		stack = []string{ectx.WorkflowID}
	}
	for _, id := range stack {
		if id == targetID {
			return engine.BlockOutput{}, errs.Newf(errs.ValidationFailed, block.ID, "embedding cycle detected: %v -> %s", stack, targetID)
		}
	}

	wf, err := h.Loader.Load(ctx, targetID)
	if err != nil {
		return engine.BlockOutput{}, fmt.Errorf("load embedded workflow %q: %w", targetID, err)
	}

	next := append(append([]string{}, stack...), targetID)
	ectx.Metadata[embedStackKey] = next
	defer func() { ectx.Metadata[embedStackKey] = stack }()

	return h.Runner.RunEmbedded(context.WithValue(ctx, embedStackCtxKey{}, next), targetID, wf, inputs, ectx.Trigger)
}
