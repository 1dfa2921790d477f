// Package resolver implements the template-substitution pass that runs on
// a block's params immediately before dispatch. Grounded on the teacher's
// cmd/workflow-runner/resolver.Resolver ($nodes.* / ${...} substitution
// via gjson), generalized to the spec's {{...}} placeholder grammar and
// extended with env/loop/parallel references and type-aware coercion.
package resolver

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"sim.studio/executor/internal/engine"
	"sim.studio/executor/internal/engine/errs"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Resolver substitutes {{...}} template references inside block params.
// It never mutates the underlying block; Resolve always returns a fresh
// map.
type Resolver struct{}

func New() *Resolver { return &Resolver{} }

// ResolveSingle resolves one standalone value (e.g. a LoopDef's
// ForEachItems or a ParallelDef's Distribution) against ctx, outside of
// any block's params map. blockID is used only for error attribution.
func (r *Resolver) ResolveSingle(blockID string, value any, ctx *engine.ExecutionContext) (any, error) {
	placeholder := &engine.Block{ID: blockID}
	v, err := r.resolveValue(placeholder, "", value, ctx)
	if err != nil {
		return nil, r.attachBlock(err, blockID)
	}
	return v, nil
}

// Resolve walks block.Config.Params and returns a fresh map with every
// placeholder substituted, type-aware per the declared input schema.
func (r *Resolver) Resolve(block *engine.Block, ctx *engine.ExecutionContext) (map[string]any, error) {
	out := make(map[string]any, len(block.Config.Params))
	for name, v := range block.Config.Params {
		resolved, err := r.resolveValue(block, name, v, ctx)
		if err != nil {
			return nil, err
		}
		out[name] = resolved
	}
	return out, nil
}

func (r *Resolver) resolveValue(block *engine.Block, paramName string, value any, ctx *engine.ExecutionContext) (any, error) {
	switch v := value.(type) {
	case string:
		return r.resolveString(block, paramName, v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, vv := range v {
			rv, err := r.resolveValue(block, paramName, vv, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, vv := range v {
			rv, err := r.resolveValue(block, paramName, vv, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return value, nil
	}
}

func (r *Resolver) resolveString(block *engine.Block, paramName, s string, ctx *engine.ExecutionContext) (any, error) {
	matches := placeholderPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return r.coerce(block, paramName, s), nil
	}

	// Whole-string single placeholder: return the typed value directly
	// rather than stringifying it, so e.g. {{node.tokens}} yields a number
	// not "42".
	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		expr := s[matches[0][2]:matches[0][3]]
		val, err := r.resolveExpr(expr, ctx)
		if err != nil {
			return nil, r.attachBlock(err, block.ID)
		}
		return r.coerceValue(block, paramName, val), nil
	}

	result := s
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		expr := s[m[2]:m[3]]
		val, err := r.resolveExpr(expr, ctx)
		if err != nil {
			return nil, r.attachBlock(err, block.ID)
		}
		result = result[:m[0]] + stringify(val) + result[m[1]:]
	}
	return r.coerce(block, paramName, result), nil
}

func (r *Resolver) attachBlock(err error, blockID string) error {
	if be, ok := err.(*errs.BlockError); ok && be.BlockID == "" {
		be.BlockID = blockID
		return be
	}
	return err
}

// resolveExpr resolves one {{...}} inner expression against ctx: env
// variables, block output paths, or loop/parallel state references.
func (r *Resolver) resolveExpr(expr string, ctx *engine.ExecutionContext) (any, error) {
	expr = strings.TrimSpace(expr)

	if rest, ok := cut(expr, "env."); ok {
		v, ok := ctx.EnvironmentVariables[rest]
		if !ok {
			return nil, errs.Newf(errs.MissingEnvVar, "", "missing required environment variable %q", rest)
		}
		return v, nil
	}

	if rest, ok := cut(expr, "loop."); ok {
		sub, field, ok := splitTwo(rest)
		if ok {
			switch field {
			case "item":
				item, _ := ctx.LoopItem(sub)
				return item, nil
			case "index":
				return int(ctx.LoopIteration(sub)), nil
			case "results":
				return ctx.LoopResults(sub), nil
			}
		}
		return nil, nil
	}

	if rest, ok := cut(expr, "parallel."); ok {
		sub, field, ok := splitTwo(rest)
		if ok {
			idx, item := ctx.ParallelState(sub)
			switch field {
			case "item":
				return item, nil
			case "index":
				return idx, nil
			}
		}
		return nil, nil
	}

	// {{blockId.path}} or {{blockId}}
	parts := strings.SplitN(expr, ".", 2)
	blockID := parts[0]
	out, ok := ctx.BlockState(blockID)
	if !ok {
		return nil, nil
	}
	if len(parts) == 1 {
		return out.AsMap(), nil
	}
	data, err := json.Marshal(out.AsMap())
	if err != nil {
		return nil, err
	}
	res := gjson.GetBytes(data, parts[1])
	if !res.Exists() {
		return nil, nil
	}
	return res.Value(), nil
}

func cut(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return strings.TrimPrefix(s, prefix), true
	}
	return "", false
}

func splitTwo(s string) (a, b string, ok bool) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// coerce applies type-aware post-processing to a resolved plain string
// value: numeric targets parse numeric strings, JSON-body params
// pre-parse strings starting with "{"/"[", and surrounding quotes on URL
// parameters are stripped.
func (r *Resolver) coerce(block *engine.Block, paramName, s string) any {
	return r.coerceValue(block, paramName, s)
}

func (r *Resolver) coerceValue(block *engine.Block, paramName string, v any) any {
	s, isString := v.(string)
	if !isString {
		return v
	}
	targetType := ""
	if block.Inputs != nil {
		targetType = block.Inputs[paramName]
	}

	trimmed := strings.TrimSpace(s)

	switch targetType {
	case "number", "integer", "float":
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
		return s
	case "boolean", "bool":
		if b, err := strconv.ParseBool(trimmed); err == nil {
			return b
		}
		return s
	case "json", "object", "array":
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed
			}
		}
		return s
	case "url":
		return strings.Trim(strings.Trim(trimmed, `"`), "'")
	default:
		// best-effort: body-shaped strings still pre-parse even without an
		// explicit declared type, matching the spec's "JSON-body
		// parameters parse strings that begin with { or [" rule for
		// params named body/payload.
		if (paramName == "body" || paramName == "payload") &&
			(strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return parsed
			}
		}
		return s
	}
}
