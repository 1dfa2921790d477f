package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
	"sim.studio/executor/internal/engine/resolver"
)

func newCtx(t *testing.T) *engine.ExecutionContext {
	t.Helper()
	wf := &engine.Workflow{
		Blocks: map[string]*engine.Block{
			"starter": {ID: "starter", Kind: engine.KindStarter, Enabled: true},
		},
	}
	sw, err := engine.NewSerializer().Serialize(wf)
	require.NoError(t, err)
	return engine.NewExecutionContext("wf1", sw, engine.TriggerManual, map[string]string{"API_KEY": "secret"})
}

func TestResolve_EnvReference(t *testing.T) {
	ctx := newCtx(t)
	block := &engine.Block{ID: "b1", Config: engine.BlockConfig{Params: map[string]any{"key": "{{env.API_KEY}}"}}}
	out, err := resolver.New().Resolve(block, ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", out["key"])
}

func TestResolve_MissingEnvVarFails(t *testing.T) {
	ctx := newCtx(t)
	block := &engine.Block{ID: "b1", Config: engine.BlockConfig{Params: map[string]any{"key": "{{env.MISSING}}"}}}
	_, err := resolver.New().Resolve(block, ctx)
	require.Error(t, err)
	assert.Equal(t, errs.MissingEnvVar, errs.KindOf(err))
}

func TestResolve_BlockOutputPath(t *testing.T) {
	ctx := newCtx(t)
	ctx.SetBlockState("agent1", engine.BlockOutput{Agent: &engine.AgentResponse{Content: "hello", Model: "gpt"}})
	block := &engine.Block{ID: "b1", Config: engine.BlockConfig{Params: map[string]any{"greeting": "{{agent1.content}}"}}}
	out, err := resolver.New().Resolve(block, ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["greeting"])
}

func TestResolve_LoopItemAndIndex(t *testing.T) {
	ctx := newCtx(t)
	ctx.SetLoopItem("loop1", []any{"k1", "v1"})
	ctx.SetLoopIteration("loop1", 2)
	block := &engine.Block{ID: "b1", Config: engine.BlockConfig{Params: map[string]any{
		"item": "{{loop.loop1.item}}", "idx": "{{loop.loop1.index}}",
	}}}
	out, err := resolver.New().Resolve(block, ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"k1", "v1"}, out["item"])
	assert.Equal(t, 2, out["idx"])
}

func TestResolve_NumericCoercion(t *testing.T) {
	ctx := newCtx(t)
	block := &engine.Block{
		ID:     "b1",
		Inputs: map[string]string{"count": "number"},
		Config: engine.BlockConfig{Params: map[string]any{"count": "{{agentX.tokens.total}}"}},
	}
	ctx.SetBlockState("agentX", engine.BlockOutput{Agent: &engine.AgentResponse{Content: "x", Tokens: engine.NewTokenUsage(3, 4)}})
	out, err := resolver.New().Resolve(block, ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(7), out["count"])
}

func TestResolve_JSONBodyPreparse(t *testing.T) {
	ctx := newCtx(t)
	block := &engine.Block{ID: "b1", Config: engine.BlockConfig{Params: map[string]any{"body": `{"x": 1}`}}}
	out, err := resolver.New().Resolve(block, ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(1)}, out["body"])
}

func TestResolve_URLQuoteStripping(t *testing.T) {
	ctx := newCtx(t)
	block := &engine.Block{
		ID:     "b1",
		Inputs: map[string]string{"url": "url"},
		Config: engine.BlockConfig{Params: map[string]any{"url": `"https://example.com"`}},
	}
	out, err := resolver.New().Resolve(block, ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", out["url"])
}

func TestResolve_DoesNotMutateBlock(t *testing.T) {
	ctx := newCtx(t)
	block := &engine.Block{ID: "b1", Config: engine.BlockConfig{Params: map[string]any{"key": "{{env.API_KEY}}"}}}
	_, err := resolver.New().Resolve(block, ctx)
	require.NoError(t, err)
	assert.Equal(t, "{{env.API_KEY}}", block.Config.Params["key"])
}
