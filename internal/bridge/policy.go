package bridge

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// PolicyRule is one auto-approval rule: if its CEL expression evaluates
// true against a permission request, the session actor answers the
// request itself: option_id is selected (or the request is cancelled if
// option_id is empty).
type PolicyRule struct {
	Name       string
	Expression string
	OptionID   string

	program cel.Program
}

// Policy evaluates an ordered list of PolicyRules against incoming
// permission requests. The environment exposes three variables to rule
// expressions: tool_kind (string), tool_title (string), and agent (string).
type Policy struct {
	rules []PolicyRule
	env   *cel.Env
}

// NewPolicy compiles every rule's expression once up front; a rule with a
// syntax or type error is rejected immediately rather than failing lazily
// on the first matching request.
func NewPolicy(rules []PolicyRule) (*Policy, error) {
	env, err := cel.NewEnv(
		cel.Variable("tool_kind", cel.StringType),
		cel.Variable("tool_title", cel.StringType),
		cel.Variable("agent", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("bridge: policy environment: %w", err)
	}

	compiled := make([]PolicyRule, len(rules))
	for i, r := range rules {
		ast, issues := env.Compile(r.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("bridge: policy rule %q: %w", r.Name, issues.Err())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("bridge: policy rule %q: %w", r.Name, err)
		}
		r.program = prg
		compiled[i] = r
	}

	return &Policy{rules: compiled, env: env}, nil
}

// Evaluate returns the option id selected by the first matching rule, in
// order, and true. If no rule matches, it returns "" and false.
func (p *Policy) Evaluate(toolKind, toolTitle, agent string) (optionID string, matched bool) {
	vars := map[string]any{
		"tool_kind":  toolKind,
		"tool_title": toolTitle,
		"agent":      agent,
	}
	for _, r := range p.rules {
		out, _, err := r.program.Eval(vars)
		if err != nil {
			continue
		}
		if b, ok := out.Value().(bool); ok && b {
			return r.OptionID, true
		}
	}
	return "", false
}
