// Package router implements the Path Tracker: it determines which
// outgoing edges of a just-completed block are live, and propagates
// activation through the graph honoring selective-activation rules.
// Grounded on the teacher's operators.ControlFlowRouter.DetermineNextNodes,
// generalized from a Redis-backed distributed router into an in-process
// predicate over engine.ExecutionContext.
package router

import (
	"strings"

	"sim.studio/executor/internal/engine"
)

// Logger is the small structured-logging interface shared across the
// engine; components accept this rather than a concrete type so they stay
// unit-testable with a fake.
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

// Tracker computes live outgoing edges for a completed block and advances
// activeExecutionPath accordingly.
type Tracker struct {
	log Logger
}

func New(log Logger) *Tracker {
	if log == nil {
		log = noopLogger{}
	}
	return &Tracker{log: log}
}

// scaffoldHandles is the set of handles whose liveness depends on subflow
// lifecycle rather than a static/dynamic decision.
var scaffoldHandles = map[string]bool{
	engine.HandleLoopStart: true, engine.HandleLoopEnd: true,
	engine.HandleParallelStart: true, engine.HandleParallelEnd: true,
}

// ShouldSkipConnection implements the central selective-activation guard
// from spec §4.2. An edge is skipped if:
//   - its sourceHandle is loop/parallel scaffolding and the target block's
//     kind is not the corresponding subflow container; or
//   - its sourceHandle is a condition branch handle and the chosen branch
//     differs from the one recorded in ctx.decisions.condition.
//
// Regular blocks may always target subflow containers; they are never
// skipped by this predicate.
func ShouldSkipConnection(wf *engine.SerializedWorkflow, c engine.Connection, ctx *engine.ExecutionContext) bool {
	switch c.SourceHandle {
	case engine.HandleLoopStart, engine.HandleLoopEnd:
		target, ok := wf.BlocksByID[c.Target]
		return !ok || target.Kind != engine.KindLoop
	case engine.HandleParallelStart, engine.HandleParallelEnd:
		target, ok := wf.BlocksByID[c.Target]
		return !ok || target.Kind != engine.KindParallel
	}
	if strings.HasPrefix(c.SourceHandle, "condition-") {
		chosen, ok := ctx.ConditionDecision(c.Source)
		if !ok {
			return true
		}
		return c.SourceHandle != "condition-"+c.Source+"-"+chosen
	}
	return false
}

// LiveEdges returns the outgoing edges of a completed block that are live
// given its output and any routing decision already recorded in ctx.
func LiveEdges(wf *engine.SerializedWorkflow, blockID string, ctx *engine.ExecutionContext) []engine.Connection {
	all := wf.Outgoing(blockID)
	live := make([]engine.Connection, 0, len(all))

	if target, ok := ctx.RouterDecision(blockID); ok {
		for _, c := range all {
			if c.Target == target {
				live = append(live, c)
			}
		}
		return live
	}

	for _, c := range all {
		if scaffoldHandles[c.SourceHandle] {
			if !ShouldSkipConnection(wf, c, ctx) {
				live = append(live, c)
			}
			continue
		}
		if strings.HasPrefix(c.SourceHandle, "condition-") {
			if !ShouldSkipConnection(wf, c, ctx) {
				live = append(live, c)
			}
			continue
		}
		// default: unconditional edge, always live.
		live = append(live, c)
	}
	return live
}

// Advance marks the targets of a completed block's live edges as active,
// subject to the eligibility rule: a block becomes eligible once at least
// one predecessor has made it live AND none of its required predecessors
// (those not sitting on an unchosen router/condition branch) are still
// pending.
func (t *Tracker) Advance(wf *engine.SerializedWorkflow, blockID string, ctx *engine.ExecutionContext) []string {
	ctx.Deactivate(blockID)
	live := LiveEdges(wf, blockID, ctx)
	newlyEligible := make([]string, 0, len(live))
	for _, c := range live {
		if t.ActivateTarget(wf, c.Target, ctx) {
			newlyEligible = append(newlyEligible, c.Target)
		}
	}
	t.log.Debug("path advanced", "block_id", blockID, "newly_eligible", newlyEligible)
	return newlyEligible
}

// ActivateTarget activates blockID if it is eligible and not already active,
// reporting whether it did so. Shared by Advance and by the orchestrator's
// loop/parallel exit handling, which must apply the same eligibility rule
// when a subflow container hands control to its post-subflow successors.
func (t *Tracker) ActivateTarget(wf *engine.SerializedWorkflow, blockID string, ctx *engine.ExecutionContext) bool {
	if !t.Eligible(wf, blockID, ctx) || ctx.IsActive(blockID) {
		return false
	}
	ctx.Activate(blockID)
	return true
}

// Eligible reports whether blockID's required predecessors have all
// completed. A predecessor is required unless it sits on an unchosen
// router/condition branch or subflow-scaffold edge (ShouldSkipConnection),
// in which case it will never fire and must not block eligibility.
func (t *Tracker) Eligible(wf *engine.SerializedWorkflow, blockID string, ctx *engine.ExecutionContext) bool {
	incoming := wf.Incoming(blockID)
	if len(incoming) == 0 {
		return true
	}
	required := 0
	for _, c := range incoming {
		if ShouldSkipConnection(wf, c, ctx) {
			continue
		}
		if chosen, ok := ctx.RouterDecision(c.Source); ok && chosen != blockID {
			continue
		}
		required++
		if !ctx.IsExecuted(c.Source) {
			return false
		}
	}
	return required > 0
}
