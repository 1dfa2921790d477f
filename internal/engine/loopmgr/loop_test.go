package loopmgr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
	"sim.studio/executor/internal/engine/loopmgr"
)

func newCtx(t *testing.T) *engine.ExecutionContext {
	t.Helper()
	wf := &engine.Workflow{Blocks: map[string]*engine.Block{"starter": {ID: "starter", Kind: engine.KindStarter, Enabled: true}}}
	sw, err := engine.NewSerializer().Serialize(wf)
	require.NoError(t, err)
	return engine.NewExecutionContext("wf1", sw, engine.TriggerManual, nil)
}

func TestLoopManager_ForEachOverObject(t *testing.T) {
	ectx := newCtx(t)
	mgr := loopmgr.New(nil)
	def := &engine.LoopDef{ID: "loop1", Nodes: []string{"inner"}, LoopType: engine.LoopForEach}
	resolve := func() (any, error) { return map[string]any{"k1": "v1", "k2": "v2"}, nil }
	block := &engine.Block{ID: "loop1"}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		out, err := mgr.Visit(context.Background(), block, def, resolve, ectx)
		require.NoError(t, err)
		require.NotNil(t, out.Loop)
		assert.False(t, out.Loop.Completed)
		assert.Equal(t, 2, out.Loop.MaxIterations)
		item, _ := ectx.LoopItem("loop1")
		pair := item.([]any)
		seen[pair[0].(string)] = true
		mgr.FinishIteration(def, pair, ectx)
	}
	assert.True(t, seen["k1"] && seen["k2"])

	out, err := mgr.Visit(context.Background(), block, def, resolve, ectx)
	require.NoError(t, err)
	assert.True(t, out.Loop.Completed)
	assert.True(t, ectx.LoopCompleted("loop1"))
	assert.Len(t, ectx.LoopResults("loop1"), 2)
}

func TestLoopManager_ForEachEmptyCollection(t *testing.T) {
	ectx := newCtx(t)
	mgr := loopmgr.New(nil)
	def := &engine.LoopDef{ID: "loop1", Nodes: []string{"inner"}, LoopType: engine.LoopForEach}
	resolve := func() (any, error) { return []any{}, nil }
	_, err := mgr.Visit(context.Background(), &engine.Block{ID: "loop1"}, def, resolve, ectx)
	require.Error(t, err)
	assert.Equal(t, errs.ForEachEmpty, errs.KindOf(err))
}

func TestLoopManager_ForDrivesOffIterationsNotCollection(t *testing.T) {
	ectx := newCtx(t)
	mgr := loopmgr.New(nil)
	def := &engine.LoopDef{ID: "loop1", Nodes: []string{"inner"}, LoopType: engine.LoopFor, Iterations: 3}
	resolve := func() (any, error) { return nil, nil }
	block := &engine.Block{ID: "loop1"}

	for i := 0; i < 3; i++ {
		out, err := mgr.Visit(context.Background(), block, def, resolve, ectx)
		require.NoError(t, err)
		assert.False(t, out.Loop.Completed)
		mgr.FinishIteration(def, i, ectx)
	}
	out, err := mgr.Visit(context.Background(), block, def, resolve, ectx)
	require.NoError(t, err)
	assert.True(t, out.Loop.Completed)
}

func TestLoopManager_ResetsInnerStatesPerIteration(t *testing.T) {
	ectx := newCtx(t)
	ectx.SetBlockState("inner", engine.RawOutput(map[string]any{"x": 1}))
	mgr := loopmgr.New(nil)
	def := &engine.LoopDef{ID: "loop1", Nodes: []string{"inner"}, LoopType: engine.LoopFor, Iterations: 2}
	mgr.FinishIteration(def, "result0", ectx)
	_, ok := ectx.BlockState("inner")
	assert.False(t, ok)
}
