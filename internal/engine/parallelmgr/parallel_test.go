package parallelmgr_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
	"sim.studio/executor/internal/engine/parallelmgr"
)

func newCtx(t *testing.T) *engine.ExecutionContext {
	t.Helper()
	wf := &engine.Workflow{Blocks: map[string]*engine.Block{"starter": {ID: "starter", Kind: engine.KindStarter, Enabled: true}}}
	sw, err := engine.NewSerializer().Serialize(wf)
	require.NoError(t, err)
	return engine.NewExecutionContext("wf1", sw, engine.TriggerManual, nil)
}

func TestParallelManager_CountZeroCompletesImmediately(t *testing.T) {
	ectx := newCtx(t)
	mgr := parallelmgr.New(nil, 0)
	out, err := mgr.Run(context.Background(), "p1", 0, nil, nil, ectx)
	require.NoError(t, err)
	require.NotNil(t, out.Parallel)
	assert.True(t, out.Parallel.Completed)
	assert.Empty(t, out.Parallel.Aggregated)
}

func TestParallelManager_AllBranchesSucceed(t *testing.T) {
	ectx := newCtx(t)
	mgr := parallelmgr.New(nil, 0)
	run := func(ctx context.Context, idx int, bctx *engine.ExecutionContext) (any, error) {
		return idx * 10, nil
	}
	out, err := mgr.Run(context.Background(), "p1", 3, nil, run, ectx)
	require.NoError(t, err)
	require.Len(t, out.Parallel.Aggregated, 3)
	for i, v := range out.Parallel.Aggregated {
		assert.Equal(t, i*10, v)
	}
}

func TestParallelManager_OneBranchFailsOthersStillRecorded(t *testing.T) {
	ectx := newCtx(t)
	mgr := parallelmgr.New(nil, 0)
	run := func(ctx context.Context, idx int, bctx *engine.ExecutionContext) (any, error) {
		if idx == 1 {
			bctx.AppendLog(engine.LogEntry{BlockID: fmt.Sprintf("branch-%d", idx), Success: false})
			return nil, errs.New(errs.ProviderError, "inner", "boom")
		}
		bctx.AppendLog(engine.LogEntry{BlockID: fmt.Sprintf("branch-%d", idx), Success: true})
		return idx, nil
	}
	_, err := mgr.Run(context.Background(), "p1", 3, nil, run, ectx)
	require.Error(t, err)
	var agg *errs.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 1)

	// every branch's log entry was still merged back, including the two
	// that succeeded alongside the one that failed.
	assert.Len(t, ectx.Logs(), 3)
}
