// Package loopmgr implements the Loop Manager: lifecycle control for
// iterative subflows (initialization, per-iteration advancement,
// completion). Grounded on the teacher's
// cmd/workflow-runner/operators.LoopOperator, generalized from a
// Redis-hash iteration counter into in-process ExecutionContext state,
// since the spec's engine is a single-process graph interpreter rather
// than a distributed token-passing system.
package loopmgr

import (
	"context"
	"fmt"
	"sort"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

// Logger is the shared structured-logging interface.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
	Debug(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}

// Manager drives loop blocks through initialization, per-tick advancement,
// and completion. The top-level engine owns driving the inner subgraph
// itself (calling Visit/FinishIteration at the right points); Manager only
// tracks subflow lifecycle state.
type Manager struct {
	log Logger
}

func New(log Logger) *Manager {
	if log == nil {
		log = noopLogger{}
	}
	return &Manager{log: log}
}

// loopState tracks the per-run, per-subflow bookkeeping that in the
// teacher's distributed design lived in a Redis hash.
type loopState struct {
	maxIterations int
	collection    []any // non-nil only for forEach
}

// Visit is called each time the active path reaches a loop block. It
// initializes the loop on first visit, advances or completes it
// otherwise, and always returns the block's own LoopTick output.
func (m *Manager) Visit(ctx context.Context, block *engine.Block, def *engine.LoopDef, resolveForEach func() (any, error), ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	state, ok := m.loadState(ectx, def.ID)
	if !ok {
		st, err := m.initialize(def, resolveForEach)
		if err != nil {
			kind := errs.ForEachMissingCollection
			if isEmptyCollectionErr(err) {
				kind = errs.ForEachEmpty
			}
			return engine.BlockOutput{}, errs.Wrap(kind, block.ID, err)
		}
		state = st
		m.storeState(ectx, def.ID, state)
	}

	iter := int(ectx.LoopIteration(def.ID))

	if iter >= state.maxIterations {
		ectx.CompleteLoop(def.ID)
		m.log.Info("loop completed", "subflow_id", def.ID, "iterations", iter)
		return engine.BlockOutput{Loop: &engine.LoopTick{CurrentIteration: iter, MaxIterations: state.maxIterations, Completed: true}}, nil
	}

	item := m.itemFor(def, state, iter)
	ectx.SetLoopItem(def.ID, item)

	tick := engine.LoopTick{CurrentIteration: iter, MaxIterations: state.maxIterations, Completed: false}
	ectx.SetLoopIteration(def.ID, uint(iter+1))
	return engine.BlockOutput{Loop: &tick}, nil
}

// FinishIteration is called after the inner subgraph of a single iteration
// completes: it records the iteration's terminal result, resets inner
// blockStates (per SPEC_FULL §6.1, per-iteration reset is normative). The
// next Visit decides whether another iteration runs.
func (m *Manager) FinishIteration(def *engine.LoopDef, iterationResult any, ectx *engine.ExecutionContext) {
	ectx.AppendLoopResult(def.ID, iterationResult)
	ectx.ResetInnerStates(def.Nodes)
}

func (m *Manager) itemFor(def *engine.LoopDef, state loopState, iter int) any {
	if state.collection != nil {
		return state.collection[iter]
	}
	return iter
}

func (m *Manager) initialize(def *engine.LoopDef, resolveForEach func() (any, error)) (loopState, error) {
	switch def.LoopType {
	case engine.LoopForEach:
		raw, err := resolveForEach()
		if err != nil {
			return loopState{}, fmt.Errorf("resolve forEachItems: %w", err)
		}
		items, err := normalizeCollection(raw)
		if err != nil {
			return loopState{}, err
		}
		if len(items) == 0 {
			return loopState{}, errEmptyCollection
		}
		return loopState{maxIterations: len(items), collection: items}, nil
	default: // "for", "while" both drive off loopDef.Iterations in this port
		return loopState{maxIterations: def.Iterations}, nil
	}
}

var errEmptyCollection = fmt.Errorf("forEach collection is empty")

func isEmptyCollectionErr(err error) bool { return err == errEmptyCollection }

// normalizeCollection turns an array or map into an ordered item list; for
// maps, each item is a two-element [key, value] pair per spec §4.5, in
// ascending key order.
func normalizeCollection(raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, fmt.Errorf("forEachItems resolved to nil")
	case []any:
		return v, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]any, 0, len(v))
		for _, k := range keys {
			items = append(items, []any{k, v[k]})
		}
		return items, nil
	default:
		return nil, fmt.Errorf("forEachItems must resolve to an array or object, got %T", raw)
	}
}

// state storage keyed in ctx.Metadata since loop bookkeeping is
// per-subflow, per-run scratch data that does not belong in the public
// ExecutionContext surface.
const stateMetaPrefix = "loopmgr_state:"

func (m *Manager) loadState(ectx *engine.ExecutionContext, subflowID string) (loopState, bool) {
	v, ok := ectx.Metadata[stateMetaPrefix+subflowID]
	if !ok {
		return loopState{}, false
	}
	st, ok := v.(loopState)
	return st, ok
}

func (m *Manager) storeState(ectx *engine.ExecutionContext, subflowID string, st loopState) {
	ectx.Metadata[stateMetaPrefix+subflowID] = st
}
