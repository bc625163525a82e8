package celengine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	envCache     = sync.Map{}
	programCache = sync.Map{}
)

// GetOrBuildEnv returns a CEL env exposing each attribute as a top-level
// variable. Envs are cached per variable set.
func GetOrBuildEnv(attrs map[string]any) (*cel.Env, error) {
	key := envKey(attrs)
	if v, ok := envCache.Load(key); ok {
		return v.(*cel.Env), nil
	}

	env, err := BuildEnv(attrs)
	if err == nil {
		envCache.Store(key, env)
	}
	return env, err
}

// BuildEnv declares every attribute as a dyn variable so expressions can
// mix ints, floats and strings without a schema.
func BuildEnv(attrs map[string]any) (*cel.Env, error) {
	variables := make([]cel.EnvOption, 0, len(attrs))
	for key := range attrs {
		variables = append(variables, cel.Variable(key, cel.DynType))
	}
	return cel.NewEnv(variables...)
}

// ValidateExpression compiles without evaluating, for rejecting bad
// expressions at write time.
func ValidateExpression(env *cel.Env, expr string) error {
	_, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return issues.Err()
	}
	return nil
}

// Evaluate compiles (through the program cache) and runs expr, expecting
// a boolean result.
func Evaluate(env *cel.Env, expr string, attrs map[string]any) (bool, error) {
	prg, err := getOrBuildProgram(env, envKey(attrs), expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}

func getOrBuildProgram(env *cel.Env, envKey, expr string) (cel.Program, error) {
	key := envKey + "\x00" + expr
	if v, ok := programCache.Load(key); ok {
		return v.(cel.Program), nil
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	programCache.Store(key, prg)
	return prg, nil
}

func envKey(attrs map[string]any) string {
	names := make([]string, 0, len(attrs))
	for key := range attrs {
		names = append(names, key)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
