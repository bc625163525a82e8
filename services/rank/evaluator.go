package rank

import (
	"fmt"

	"taskpoint/pkg/celengine"
)

// Evaluator evaluates CEL eligibility expressions against a dynamic set of
// variables.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator instance.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate evaluates a CEL expression against the provided context map.
// The context map entries are exposed as top-level variables in the CEL
// program.
func (e *Evaluator) Evaluate(expression string, context map[string]any) (bool, error) {
	if expression == "" {
		return false, fmt.Errorf("expression must not be empty")
	}

	if context == nil {
		context = map[string]any{}
	}

	env, err := celengine.GetOrBuildEnv(context)
	if err != nil {
		return false, fmt.Errorf("failed to create CEL env: %w", err)
	}

	return celengine.Evaluate(env, expression, context)
}

// Validate compiles the expression against the same variables Evaluate
// exposes, without running it.
func (e *Evaluator) Validate(expression string, context map[string]any) error {
	env, err := celengine.GetOrBuildEnv(context)
	if err != nil {
		return fmt.Errorf("failed to create CEL env: %w", err)
	}
	return celengine.ValidateExpression(env, expression)
}
