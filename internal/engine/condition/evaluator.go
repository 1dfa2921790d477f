// Package condition implements CEL-based boolean expression evaluation for
// condition blocks and router/branch rules. Grounded directly on the
// teacher's cmd/workflow-runner/condition.Evaluator: a cached cel.Program
// compiled per expression, evaluated against an "output"/"ctx" variable
// pair.
package condition

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Expr is a single condition/branch-rule expression. Every expression is
// CEL, so Expr carries no type field (the teacher's taxonomy also names
// schema_validation / jsonpath, which this port does not support).
type Expr struct {
	Expression string
	Invert     bool
}

// Evaluator compiles and caches CEL programs keyed by expression text.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
	env   *cel.Env
}

func New() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("output", cel.DynType),
		cel.Variable("ctx", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &Evaluator{cache: make(map[string]cel.Program), env: env}, nil
}

// Evaluate compiles (or reuses a cached compilation of) expr.Expression and
// runs it against output/ctx, expecting a boolean result. Expressions may
// reference "output" or the shorthand "$." (normalized to "output.").
func (e *Evaluator) Evaluate(expr Expr, output any, runCtx map[string]any) (bool, error) {
	normalized := strings.ReplaceAll(expr.Expression, "$.", "output.")

	prg, err := e.programFor(normalized)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]any{"output": output, "ctx": runCtx})
	if err != nil {
		return false, fmt.Errorf("evaluate expression %q: %w", normalized, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not evaluate to a boolean, got %T", normalized, out.Value())
	}
	if expr.Invert {
		b = !b
	}
	return b, nil
}

func (e *Evaluator) programFor(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build program for %q: %w", expression, err)
	}
	e.cache[expression] = prg
	return prg, nil
}

// ClearCache drops all compiled programs; used by tests and by long-lived
// processes that want to bound cache growth.
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
