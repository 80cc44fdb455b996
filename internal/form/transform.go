package form

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExprEvaluator compiles transform expressions with expr-lang/expr.
// Compiled programs are cached by expression string.
type ExprEvaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

var defaultEvaluator = NewExprEvaluator()

func (e *ExprEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prog, ok := e.cache[expression]; ok {
		return prog, nil
	}
	prog, err := expr.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile transform: %w", err)
	}
	e.cache[expression] = prog
	return prog, nil
}

// Transform compiles expression into a TransformFunc. The entered value is
// available as `value`, e.g. `upper(trim(value))`.
func (e *ExprEvaluator) Transform(expression string) (TransformFunc, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("empty transform expression")
	}
	prog, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	return func(v any) (any, error) {
		out, err := expr.Run(prog, map[string]any{"value": v})
		if err != nil {
			return nil, fmt.Errorf("evaluate transform: %w", err)
		}
		return out, nil
	}, nil
}

// ExprTransform compiles expression with the package evaluator.
func ExprTransform(expression string) (TransformFunc, error) {
	return defaultEvaluator.Transform(expression)
}

// Upper is a ready-made transform for part numbers and codes.
func Upper(v any) (any, error) {
	if s, ok := v.(string); ok {
		return strings.ToUpper(strings.TrimSpace(s)), nil
	}
	return v, nil
}
