package handlers

import (
	"context"
	"fmt"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/condition"
	"sim.studio/executor/internal/engine/errs"
)

// ConditionRule is one branch of a condition block, evaluated in
// declaration order; the block's own config supplies these, already
// resolved by the serializer/resolver.
type ConditionRule struct {
	Label      string // e.g. "if", "elseIf-1"; "else" is reserved for the fallback
	Expression string
}

// ConditionHandler evaluates each branch's boolean expression in
// declaration order; first truthy wins. If none match, an "else" branch
// is used if declared, else ConditionUnsatisfied.
type ConditionHandler struct {
	Evaluator *condition.Evaluator
}

func (h *ConditionHandler) CanHandle(b *engine.Block) bool { return b.Kind == engine.KindCondition }

func (h *ConditionHandler) Execute(_ context.Context, block *engine.Block, inputs map[string]any, ectx *engine.ExecutionContext) (engine.BlockOutput, error) {
	rules, _ := block.Config.Params["rules"].([]ConditionRule)
	runCtx := map[string]any{"workflowId": ectx.WorkflowID}

	var elseLabel string
	for _, rule := range rules {
		if rule.Label == "else" {
			elseLabel = rule.Label
			continue
		}
		ok, err := h.Evaluator.Evaluate(condition.Expr{Expression: rule.Expression}, inputs, runCtx)
		if err != nil {
			return engine.BlockOutput{}, errs.Wrap(errs.ValidationFailed, block.ID, fmt.Errorf("condition %q: %w", rule.Label, err))
		}
		if ok {
			ectx.SetConditionDecision(block.ID, rule.Label)
			return engine.BlockOutput{Condition: &engine.ConditionDecision{Branch: rule.Label}}, nil
		}
	}
	if elseLabel != "" {
		ectx.SetConditionDecision(block.ID, elseLabel)
		return engine.BlockOutput{Condition: &engine.ConditionDecision{Branch: elseLabel}}, nil
	}
	return engine.BlockOutput{}, errs.New(errs.ConditionUnsatisfied, block.ID, "no branch condition matched and no else branch declared")
}
