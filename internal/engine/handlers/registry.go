// Package handlers implements the Block Handler Dispatcher: a registry of
// handlers keyed by block kind, each exposing canHandle/execute per spec
// §4.4. Loop and parallel blocks are lifecycle controllers rather than
// stateless handlers and are driven directly by the top-level engine (see
// internal/engine/loopmgr, internal/engine/parallelmgr); this registry
// covers every other kind.
package handlers

import (
	"context"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

// Handler is a stateless block executor. All mutation goes through ctx.
type Handler interface {
	CanHandle(block *engine.Block) bool
	Execute(ctx context.Context, block *engine.Block, inputs map[string]any, ectx *engine.ExecutionContext) (engine.BlockOutput, error)
}

// Registry dispatches to the handler registered for a block's kind.
type Registry struct {
	byKind map[engine.BlockKind]Handler
}

func NewRegistry() *Registry {
	return &Registry{byKind: make(map[engine.BlockKind]Handler)}
}

func (r *Registry) Register(kind engine.BlockKind, h Handler) {
	r.byKind[kind] = h
}

func (r *Registry) Dispatch(ctx context.Context, block *engine.Block, inputs map[string]any, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	h, ok := r.byKind[block.Kind]
	if !ok || !h.CanHandle(block) {
		return engine.BlockOutput{}, errs.Newf(errs.UnknownBlockKind, block.ID, "no handler registered for block kind %q", block.Kind)
	}
	return h.Execute(ctx, block, inputs, ectx)
}
