// Package calculator implements the calculator tool on top of govaluate.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/Knetic/govaluate"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Name is the registry key of the tool.
const Name = "calculator"

var descriptor = types.ToolDescriptor{
	Name:        Name,
	Description: "Evaluates a mathematical expression such as '(2 + 2) * 4' or 'sqrt(2) > 1'.",
	Parameters: types.Parameters{
		{Name: "expression", Type: types.TypeString, Description: "The expression to evaluate.", Required: true},
	},
}

// functions are available inside expressions in addition to govaluate's
// operators.
var functions = map[string]govaluate.ExpressionFunction{
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"round": unary(math.Round),
	"ln":    unary(math.Log),
	"log10": unary(math.Log10),
	"pow": func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, errors.New("pow takes 2 arguments")
		}
		x, ok1 := args[0].(float64)
		y, ok2 := args[1].(float64)
		if !ok1 || !ok2 {
			return nil, errors.New("pow takes numbers")
		}
		return math.Pow(x, y), nil
	},
}

func unary(fn func(float64) float64) govaluate.ExpressionFunction {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		x, ok := args[0].(float64)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", args[0])
		}
		return fn(x), nil
	}
}

// Eval evaluates expr. Results that are not finite numbers are errors.
func Eval(expr string) (types.Value, error) {
	e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, functions)
	if err != nil {
		return types.Value{}, fmt.Errorf("invalid expression: %w", err)
	}
	// Evaluate(nil) dereferences the parameter map on the first variable.
	out, err := e.Evaluate(map[string]any{})
	if err != nil {
		return types.Value{}, fmt.Errorf("evaluate: %w", err)
	}
	if f, ok := out.(float64); ok && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return types.Value{}, errors.New("result is not a finite number (division by zero?)")
	}
	return types.FromAny(out)
}

// New returns the tool.
func New() *tool.Func {
	return tool.MustFunc(descriptor, func(_ context.Context, args types.Arguments) (types.Value, error) {
		expr, _ := args.Str("expression")
		return Eval(expr)
	})
}
