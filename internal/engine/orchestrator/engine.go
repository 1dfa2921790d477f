// Package orchestrator implements the top-level graph interpreter: it
// drives a SerializedWorkflow from its starter block to a terminal
// response, dispatching every other block through the handler registry and
// delegating loop/parallel containers to their lifecycle managers. Named
// and shaped after the teacher's coordinator package (an independent
// package importing compiler/condition/operators/resolver/sdk so its
// orchestration logic can depend on the shared types without a cycle),
// adapted from a Redis-choreographed completion-signal loop into a single
// in-process synchronous walk of the graph.
package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/condition"
	"sim.studio/executor/internal/engine/errs"
	"sim.studio/executor/internal/engine/handlers"
	"sim.studio/executor/internal/engine/loopmgr"
	"sim.studio/executor/internal/engine/parallelmgr"
	"sim.studio/executor/internal/engine/resolver"
	"sim.studio/executor/internal/engine/router"
	"sim.studio/executor/internal/security"
)

// Logger is the structured-logging interface shared across the engine.
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

// Opts wires the engine's outbound collaborators.
type Opts struct {
	Tools                  engine.ToolRegistry
	Providers              engine.ProviderRegistry
	Sandbox                engine.Sandbox
	Events                 engine.EventPublisher
	Loader                 engine.WorkflowLoader
	Logger                 Logger
	ModelToProvider        func(model string) string
	MaxParallelConcurrency int
	// Environment supplies the environment variables embedded sub-runs
	// inherit; a top-level Run always takes its own env explicitly.
	Environment map[string]string
}

// Engine ties the Path Tracker, Resolver, Block Handler Dispatcher, Loop
// Manager, and Parallel Manager into the graph-walking loop described in
// spec §4.
type Engine struct {
	registry  *handlers.Registry
	resolver  *resolver.Resolver
	tracker   *router.Tracker
	loops     *loopmgr.Manager
	parallels *parallelmgr.Manager
	events    engine.EventPublisher
	log       Logger
	env       map[string]string
}

// New builds an Engine and registers every stateless handler against the
// shared registry. Loop and parallel kinds are deliberately absent from the
// registry: the engine drives them directly (see stepLoop/stepParallel).
func New(opts Opts) (*Engine, error) {
	log := Logger(noopLogger{})
	if opts.Logger != nil {
		log = opts.Logger
	}
	events := engine.EventPublisher(engine.NoopEventPublisher{})
	if opts.Events != nil {
		events = opts.Events
	}

	evaluator, err := condition.New()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		registry:  handlers.NewRegistry(),
		resolver:  resolver.New(),
		tracker:   router.New(log),
		loops:     loopmgr.New(log),
		parallels: parallelmgr.New(log, opts.MaxParallelConcurrency),
		events:    events,
		log:       log,
		env:       opts.Environment,
	}

	e.registry.Register(engine.KindStarter, &handlers.StarterHandler{})
	e.registry.Register(engine.KindResponse, &handlers.ResponseHandler{})
	e.registry.Register(engine.KindCondition, &handlers.ConditionHandler{Evaluator: evaluator})
	e.registry.Register(engine.KindRouter, &handlers.RouterHandler{Providers: opts.Providers})
	e.registry.Register(engine.KindEvaluator, &handlers.EvaluatorHandler{Providers: opts.Providers})
	e.registry.Register(engine.KindAgent, &handlers.AgentHandler{Providers: opts.Providers, ModelToProvider: opts.ModelToProvider})
	e.registry.Register(engine.KindAPI, &handlers.APIHandler{Tools: opts.Tools, Validator: security.NewURLValidator()})
	e.registry.Register(engine.KindFunction, &handlers.FunctionHandler{Sandbox: opts.Sandbox})
	e.registry.Register(engine.KindWorkflow, &handlers.WorkflowEmbedHandler{Loader: opts.Loader, Runner: e})

	return e, nil
}

// Run executes wf to completion from its starter block, returning the
// finished ExecutionContext and the terminal response block's output. A run
// that never reaches a response block (possible if the graph has no
// response block at all) returns a zero BlockOutput and a nil error once
// the active path drains.
func (e *Engine) Run(ctx context.Context, workflowID string, wf *engine.SerializedWorkflow, input map[string]any, trigger engine.TriggerType, env map[string]string) (*engine.ExecutionContext, engine.BlockOutput, error) {
	ectx := engine.NewExecutionContext(workflowID, wf, trigger, env)
	out, err := e.run(ctx, wf, ectx, input)
	ectx.Finish()
	return ectx, out, err
}

// RunEmbedded satisfies handlers.Runner for the workflow(embed) block kind:
// it executes a fully-resolved sub-workflow to completion against the
// engine's shared environment and returns its terminal output.
func (e *Engine) RunEmbedded(ctx context.Context, workflowID string, wf *engine.SerializedWorkflow, input map[string]any, trigger engine.TriggerType) (engine.BlockOutput, error) {
	ectx := engine.NewExecutionContext(workflowID, wf, trigger, e.env)
	out, err := e.run(ctx, wf, ectx, input)
	ectx.Finish()
	return out, err
}

func (e *Engine) run(ctx context.Context, wf *engine.SerializedWorkflow, ectx *engine.ExecutionContext, input map[string]any) (engine.BlockOutput, error) {
	starter := findStarter(wf)
	if starter == nil {
		return engine.BlockOutput{}, errs.New(errs.MissingStarter, "", "workflow has no starter block")
	}

	// The starter's output is always exactly the run's input: dispatching it
	// through the registry would require the handler to know the per-run
	// input at construction time, which the shared, long-lived Engine does
	// not have. It is still logged like every other block for consistency.
	start := time.Now()
	out := engine.RawOutput(input)
	ectx.SetBlockState(starter.ID, out)
	ectx.MarkExecuted(starter.ID)
	ectx.AppendLog(engine.LogEntry{
		BlockID: starter.ID, BlockName: starter.Name, Kind: engine.KindStarter,
		StartTime: start, EndTime: time.Now(), Success: true, Output: &out,
	})
	e.tracker.Advance(wf, starter.ID, ectx)

	var terminal engine.BlockOutput
	var terminalSet bool

	for {
		if err := ctx.Err(); err != nil {
			return terminal, errs.Wrap(classifyCtxErr(err), "", err)
		}

		active := ectx.ActivePath()
		if len(active) == 0 {
			break
		}
		sort.Strings(active)
		blockID := active[0]

		block, ok := wf.BlocksByID[blockID]
		if !ok {
			ectx.Deactivate(blockID)
			continue
		}

		blockOut, err := e.execute(ctx, wf, block, ectx)
		if err != nil {
			return terminal, err
		}
		if block.Kind == engine.KindResponse {
			terminal = blockOut
			terminalSet = true
		}
	}

	if !terminalSet {
		return engine.BlockOutput{}, nil
	}
	return terminal, nil
}

func classifyCtxErr(err error) errs.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.DeadlineExceeded
	}
	return errs.Cancelled
}

func findStarter(wf *engine.SerializedWorkflow) *engine.Block {
	for _, id := range wf.SortedBlockIDs() {
		if wf.BlocksByID[id].Kind == engine.KindStarter {
			return wf.BlocksByID[id]
		}
	}
	return nil
}

// execute dispatches one active block and records its log entry,
// regardless of outcome.
func (e *Engine) execute(ctx context.Context, wf *engine.SerializedWorkflow, block *engine.Block, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	start := time.Now()
	var out engine.BlockOutput
	var err error

	switch block.Kind {
	case engine.KindLoop:
		out, err = e.stepLoop(ctx, wf, block, ectx)
	case engine.KindParallel:
		out, err = e.stepParallel(ctx, wf, block, ectx)
	default:
		out, err = e.stepBlock(ctx, wf, block, ectx)
	}

	entry := engine.LogEntry{
		BlockID: block.ID, BlockName: block.Name, Kind: block.Kind,
		StartTime: start, EndTime: time.Now(), Success: err == nil, Err: err,
	}
	if err == nil {
		entry.Output = &out
	}
	ectx.AppendLog(entry)
	if err != nil {
		e.log.Warn("block failed", "block_id", block.ID, "kind", block.Kind, "error", err)
	}
	return out, err
}

// stepBlock dispatches a regular (non-subflow-container) block: disabled
// blocks pass through a null output unchanged, otherwise the resolver
// substitutes templates and the registry dispatches to the matching
// handler. response blocks have no outgoing edges to advance; every other
// kind advances the path, folding in the loop-iteration-terminal check.
func (e *Engine) stepBlock(ctx context.Context, wf *engine.SerializedWorkflow, block *engine.Block, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	ectx.Deactivate(block.ID)

	var out engine.BlockOutput
	if !block.Enabled {
		out = engine.RawOutput(nil)
	} else {
		inputs, err := e.resolver.Resolve(block, ectx)
		if err != nil {
			return engine.BlockOutput{}, err
		}
		out, err = e.registry.Dispatch(ctx, block, inputs, ectx)
		if err != nil {
			return out, err
		}
	}

	ectx.SetBlockState(block.ID, out)
	ectx.MarkExecuted(block.ID)

	if block.Kind != engine.KindResponse {
		e.advanceRegular(wf, block, ectx)
	}
	return out, nil
}

// advanceRegular advances the path past a just-completed regular block. If
// the block is the iteration-terminal member of an active loop subflow
// (its live outgoing edges never target another node of the same
// subflow), the loop's iteration is finished and the loop container is
// re-activated directly rather than reached through an edge, since the
// graph never models an explicit "closing" edge back into the container.
func (e *Engine) advanceRegular(wf *engine.SerializedWorkflow, block *engine.Block, ectx *engine.ExecutionContext) {
	if subflowID, isLoop, ok := wf.SubflowOf(block.ID); ok && isLoop && !ectx.LoopCompleted(subflowID) {
		def := wf.Loops[subflowID]
		if def != nil && isIterationSink(wf, block.ID, toSet(def.Nodes), ectx) {
			result, _ := ectx.BlockState(block.ID)
			e.loops.FinishIteration(def, result.AsMap(), ectx)
			ectx.Activate(subflowID)
			return
		}
	}
	e.tracker.Advance(wf, block.ID, ectx)
}

// stepLoop visits a loop container: Visit advances or completes its
// bookkeeping, and the engine activates either this tick's entry nodes or,
// once complete, the subflow's exit targets.
func (e *Engine) stepLoop(ctx context.Context, wf *engine.SerializedWorkflow, block *engine.Block, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	def := wf.Loops[block.ID]
	if def == nil {
		return engine.BlockOutput{}, errs.New(errs.ValidationFailed, block.ID, "loop block has no matching LoopDef")
	}

	resolveForEach := func() (any, error) {
		return e.resolver.ResolveSingle(block.ID, def.ForEachItems, ectx)
	}
	out, err := e.loops.Visit(ctx, block, def, resolveForEach, ectx)
	if err != nil {
		return out, err
	}

	ectx.Deactivate(block.ID)
	ectx.SetBlockState(block.ID, out)
	ectx.MarkExecuted(block.ID)

	if out.Loop != nil && out.Loop.Completed {
		e.activateExits(wf, block.ID, def.Nodes, ectx)
	} else {
		for _, id := range entryNodes(wf, def.Nodes) {
			ectx.Activate(id)
		}
	}
	return out, nil
}

// stepParallel fans out a parallel container's branches, each against an
// independent clone of ectx confined to the subflow's enclosed nodes, then
// activates the subflow's exit targets once every branch has joined.
func (e *Engine) stepParallel(ctx context.Context, wf *engine.SerializedWorkflow, block *engine.Block, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	def := wf.Parallels[block.ID]
	if def == nil {
		return engine.BlockOutput{}, errs.New(errs.ValidationFailed, block.ID, "parallel block has no matching ParallelDef")
	}

	branchCount, err := e.branchCount(block, def, ectx)
	if err != nil {
		return engine.BlockOutput{}, err
	}

	nodes := toSet(def.Nodes)
	entries := entryNodes(wf, def.Nodes)

	runner := func(ctx context.Context, idx int, branchCtx *engine.ExecutionContext) (any, error) {
		return e.runSubgraph(ctx, wf, branchCtx, nodes, entries)
	}

	out, err := e.parallels.Run(ctx, block.ID, branchCount, def.Nodes, runner, ectx)
	if err != nil {
		return out, err
	}

	ectx.Deactivate(block.ID)
	ectx.SetBlockState(block.ID, out)
	ectx.MarkExecuted(block.ID)
	ectx.CompleteParallel(block.ID)

	e.activateExits(wf, block.ID, def.Nodes, ectx)
	return out, nil
}

func (e *Engine) branchCount(block *engine.Block, def *engine.ParallelDef, ectx *engine.ExecutionContext) (int, error) {
	if def.ParallelType != engine.ParallelCollection {
		return def.Count, nil
	}
	resolved, err := e.resolver.ResolveSingle(block.ID, def.Distribution, ectx)
	if err != nil {
		return 0, err
	}
	switch v := resolved.(type) {
	case []any:
		return len(v), nil
	case map[string]any:
		return len(v), nil
	default:
		return 0, errs.Newf(errs.ValidationFailed, block.ID, "parallel distribution must resolve to an array or object, got %T", resolved)
	}
}

// runSubgraph drives a confined region of the graph (a parallel branch)
// against its own cloned context: activate the entry nodes, then repeat
// dispatch-and-advance until no active node within the region remains.
// Activations that leak outside the region (a malformed subflow) are
// simply never dispatched, since only in-region ids are ever picked.
func (e *Engine) runSubgraph(ctx context.Context, wf *engine.SerializedWorkflow, branchCtx *engine.ExecutionContext, nodes map[string]bool, entries []string) (any, error) {
	for _, id := range entries {
		branchCtx.Activate(id)
	}

	var last engine.BlockOutput
	for {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(classifyCtxErr(err), "", err)
		}

		var inRegion []string
		for _, id := range branchCtx.ActivePath() {
			if nodes[id] {
				inRegion = append(inRegion, id)
			}
		}
		if len(inRegion) == 0 {
			break
		}
		sort.Strings(inRegion)
		blockID := inRegion[0]

		block, ok := wf.BlocksByID[blockID]
		if !ok {
			branchCtx.Deactivate(blockID)
			continue
		}
		out, err := e.execute(ctx, wf, block, branchCtx)
		if err != nil {
			return nil, err
		}
		last = out
	}
	return last.AsMap(), nil
}

// activateExits activates the targets of a subflow container's outgoing
// edges that lead outside the subflow (everything other than the edges
// targeting its own enclosed nodes), subject to the normal eligibility
// rule.
func (e *Engine) activateExits(wf *engine.SerializedWorkflow, containerID string, nodes []string, ectx *engine.ExecutionContext) {
	enclosed := toSet(nodes)
	for _, c := range wf.Outgoing(containerID) {
		if enclosed[c.Target] {
			continue
		}
		e.tracker.ActivateTarget(wf, c.Target, ectx)
	}
}

// isIterationSink reports whether blockID has no live outgoing edge
// targeting another member of the same subflow, i.e. it is where this
// iteration's inner subgraph bottoms out.
func isIterationSink(wf *engine.SerializedWorkflow, blockID string, nodes map[string]bool, ctx *engine.ExecutionContext) bool {
	for _, c := range router.LiveEdges(wf, blockID, ctx) {
		if nodes[c.Target] {
			return false
		}
	}
	return true
}

// entryNodes returns the members of nodeList that have no incoming edge
// from another member of nodeList, i.e. the roots of the subflow's inner
// subgraph.
func entryNodes(wf *engine.SerializedWorkflow, nodeList []string) []string {
	set := toSet(nodeList)
	var entries []string
	for _, id := range nodeList {
		isEntry := true
		for _, c := range wf.Incoming(id) {
			if set[c.Source] {
				isEntry = false
				break
			}
		}
		if isEntry {
			entries = append(entries, id)
		}
	}
	sort.Strings(entries)
	return entries
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
