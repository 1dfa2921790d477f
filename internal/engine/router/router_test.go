package router_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/router"
)

func buildWorkflow(t *testing.T) *engine.SerializedWorkflow {
	t.Helper()
	wf := &engine.Workflow{
		Version: "1",
		Blocks: map[string]*engine.Block{
			"starter": {ID: "starter", Kind: engine.KindStarter, Enabled: true},
			"cond":    {ID: "cond", Kind: engine.KindCondition, Enabled: true},
			"ifb":     {ID: "ifb", Kind: engine.KindAgent, Enabled: true},
			"elseb":   {ID: "elseb", Kind: engine.KindAgent, Enabled: true},
			"loop":    {ID: "loop", Kind: engine.KindLoop, Enabled: true},
			"inner":   {ID: "inner", Kind: engine.KindAgent, Enabled: true},
		},
		Connections: []engine.Connection{
			{Source: "starter", Target: "cond"},
			{Source: "cond", Target: "ifb", SourceHandle: "condition-cond-if"},
			{Source: "cond", Target: "elseb", SourceHandle: "condition-cond-else"},
			{Source: "starter", Target: "loop"},
			{Source: "loop", Target: "inner", SourceHandle: engine.HandleLoopStart},
			{Source: "inner", Target: "loop", SourceHandle: engine.HandleLoopEnd},
		},
		Loops: map[string]*engine.LoopDef{
			"loop": {ID: "loop", Nodes: []string{"inner"}, LoopType: engine.LoopFor, Iterations: 2},
		},
	}
	s := engine.NewSerializer()
	sw, err := s.Serialize(wf)
	require.NoError(t, err)
	return sw
}

func TestShouldSkipConnection_ConditionBranch(t *testing.T) {
	wf := buildWorkflow(t)
	ctx := engine.NewExecutionContext("wf1", wf, engine.TriggerManual, nil)
	ctx.SetConditionDecision("cond", "if")

	for _, c := range wf.Outgoing("cond") {
		skip := router.ShouldSkipConnection(wf, c, ctx)
		if c.Target == "ifb" {
			assert.False(t, skip, "chosen branch must not be skipped")
		} else {
			assert.True(t, skip, "unchosen branch must be skipped")
		}
	}
}

func TestShouldSkipConnection_ScaffoldToNonContainer(t *testing.T) {
	wf := buildWorkflow(t)
	ctx := engine.NewExecutionContext("wf1", wf, engine.TriggerManual, nil)

	// loop-start-source targeting a non-container block: skipped.
	for _, c := range wf.Outgoing("loop") {
		if c.SourceHandle == engine.HandleLoopStart && c.Target == "inner" {
			assert.True(t, router.ShouldSkipConnection(wf, c, ctx))
		}
	}

	// loop-end-source targeting the loop container itself: not skipped.
	for _, c := range wf.Outgoing("inner") {
		if c.SourceHandle == engine.HandleLoopEnd {
			assert.False(t, router.ShouldSkipConnection(wf, c, ctx))
		}
	}
}

func TestLiveEdges_RouterDecisionOverridesEverything(t *testing.T) {
	wf := buildWorkflow(t)
	ctx := engine.NewExecutionContext("wf1", wf, engine.TriggerManual, nil)
	ctx.SetRouterDecision("starter", "loop")

	live := router.LiveEdges(wf, "starter", ctx)
	require.Len(t, live, 1)
	assert.Equal(t, "loop", live[0].Target)
}

func TestAdvance_EligibilityRequiresAllNonSkippedPredecessors(t *testing.T) {
	wf := &engine.Workflow{
		Version: "1",
		Blocks: map[string]*engine.Block{
			"starter": {ID: "starter", Kind: engine.KindStarter, Enabled: true},
			"a":       {ID: "a", Kind: engine.KindAgent, Enabled: true},
			"b":       {ID: "b", Kind: engine.KindAgent, Enabled: true},
			"join":    {ID: "join", Kind: engine.KindAgent, Enabled: true},
		},
		Connections: []engine.Connection{
			{Source: "starter", Target: "a"},
			{Source: "starter", Target: "b"},
			{Source: "a", Target: "join"},
			{Source: "b", Target: "join"},
		},
	}
	s := engine.NewSerializer()
	sw, err := s.Serialize(wf)
	require.NoError(t, err)

	ctx := engine.NewExecutionContext("wf1", sw, engine.TriggerManual, nil)
	tr := router.New(nil)

	ctx.MarkExecuted("starter")
	newly := tr.Advance(sw, "starter", ctx)
	assert.ElementsMatch(t, []string{"a", "b"}, newly)

	ctx.MarkExecuted("a")
	newly = tr.Advance(sw, "a", ctx)
	assert.Empty(t, newly, "join must wait on b too")

	ctx.MarkExecuted("b")
	newly = tr.Advance(sw, "b", ctx)
	assert.ElementsMatch(t, []string{"join"}, newly)
}
