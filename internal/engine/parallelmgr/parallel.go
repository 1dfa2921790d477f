// Package parallelmgr implements the Parallel Manager: fan-out into
// concurrent branches with join-on-all semantics and multi-error
// aggregation. Grounded on the teacher's branch/fan-out idiom
// (operators.BranchOperator) and the retrieval pack's stherrien-gorax
// parallel executor (BranchResult/ParallelResult shape, wait-all error
// strategy), adapted onto golang.org/x/sync/errgroup for bounded
// concurrency instead of hand-rolled channel plumbing.
package parallelmgr

import (
	"context"

	"golang.org/x/sync/errgroup"

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

// BranchRunner executes one parallel branch to completion against its
// branch-local cloned context and returns the branch's terminal value.
// Supplied by the top-level engine.
type BranchRunner func(ctx context.Context, branchIndex int, branchCtx *engine.ExecutionContext) (any, error)

// Manager drives parallel blocks through fan-out, concurrent branch
// execution, and join.
type Manager struct {
	log            Logger
	maxConcurrency int
}

// New builds a Manager. maxConcurrency <= 0 means unbounded (all branches
// launch at once), matching the teacher's "unlimited = all at once"
// default for MaxConcurrency == 0.
func New(log Logger, maxConcurrency int) *Manager {
	if log == nil {
		log = noopLogger{}
	}
	return &Manager{log: log, maxConcurrency: maxConcurrency}
}

// Run fans out branchCount branches, as computed by the caller (each
// against a shallow clone of parentCtx scoped to enclosedNodeIDs), waits
// for all of them, merges their contexts back into parentCtx, and returns
// the aggregated ParallelTick. Per SPEC_FULL §6.3, branchCount == 0
// completes immediately with an empty aggregate and no branches spawned.
func (m *Manager) Run(ctx context.Context, blockID string, branchCount int, enclosedNodeIDs []string, run BranchRunner, parentCtx *engine.ExecutionContext) (engine.BlockOutput, error) {
	if branchCount == 0 {
		m.log.Info("parallel completed immediately", "block_id", blockID, "branch_count", 0)
		return engine.BlockOutput{Parallel: &engine.ParallelTick{Aggregated: []any{}, Completed: true}}, nil
	}

	results := make([]any, branchCount)
	errsList := make([]error, branchCount)

	g, gctx := errgroup.WithContext(withoutCancelOnBranchError(ctx))
	if m.maxConcurrency > 0 {
		g.SetLimit(m.maxConcurrency)
	}

	branchCtxs := make([]*engine.ExecutionContext, branchCount)
	for i := 0; i < branchCount; i++ {
		i := i
		branchCtxs[i] = parentCtx.Clone(enclosedNodeIDs)
		branchCtxs[i].SetParallelState(blockID, i, nil)
		g.Go(func() error {
			out, err := run(gctx, i, branchCtxs[i])
			if err != nil {
				errsList[i] = err
				m.log.Warn("parallel branch failed", "block_id", blockID, "branch_index", i, "error", err)
				return nil // collected, not fail-fast: every branch still runs to completion
			}
			results[i] = out
			return nil
		})
	}
	// errgroup.Wait only ever returns non-nil if a Go func returned a
	// non-nil error, which we deliberately never do above (errors are
	// collected in errsList so every branch runs to completion even when
	// a sibling fails, per spec §4.6's join-on-all semantics).
	_ = g.Wait()

	for _, bc := range branchCtxs {
		parentCtx.MergeFrom(bc)
	}

	var failures []error
	for _, err := range errsList {
		if err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return engine.BlockOutput{}, errs.NewAggregate(blockID, failures)
	}

	return engine.BlockOutput{Parallel: &engine.ParallelTick{Aggregated: results, Completed: true}}, nil
}

// withoutCancelOnBranchError returns ctx as-is; kept as a named seam so a
// future cancellation policy (e.g. cancel siblings on first failure) can
// be swapped in without touching Run's call sites.
func withoutCancelOnBranchError(ctx context.Context) context.Context { return ctx }
