package condition_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sim.studio/executor/internal/engine/condition"
)

func TestEvaluate_Basic(t *testing.T) {
	ev, err := condition.New()
	require.NoError(t, err)

	ok, err := ev.Evaluate(condition.Expr{Expression: `output.score > 0.5`}, map[string]any{"score": 0.9}, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ev.Evaluate(condition.Expr{Expression: `output.score > 0.5`}, map[string]any{"score": 0.1}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_ShorthandDollarSyntax(t *testing.T) {
	ev, err := condition.New()
	require.NoError(t, err)
	ok, err := ev.Evaluate(condition.Expr{Expression: `$.status == "done"`}, map[string]any{"status": "done"}, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Invert(t *testing.T) {
	ev, err := condition.New()
	require.NoError(t, err)
	ok, err := ev.Evaluate(condition.Expr{Expression: `output.done`, Invert: true}, map[string]any{"done": true}, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_NonBooleanResultErrors(t *testing.T) {
	ev, err := condition.New()
	require.NoError(t, err)
	_, err = ev.Evaluate(condition.Expr{Expression: `output.score`}, map[string]any{"score": 1.0}, nil)
	require.Error(t, err)
}

func TestEvaluate_CachesCompiledPrograms(t *testing.T) {
	ev, err := condition.New()
	require.NoError(t, err)
	_, _ = ev.Evaluate(condition.Expr{Expression: `output.a == 1`}, map[string]any{"a": 1}, nil)
	_, _ = ev.Evaluate(condition.Expr{Expression: `output.a == 1`}, map[string]any{"a": 2}, nil)
	assert.Equal(t, 1, ev.CacheSize())
}
