// Package codeexec implements the code_interpreter tool: it runs a Starlark
// program (a Python dialect) and returns everything the program printed.
//
// Each call gets a fresh thread and output buffer, so concurrent calls share
// nothing. Runtime faults come back as "<Kind>: <message>" using Python
// exception class names; the caller never sees a Go error for bad code.
package codeexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Name is the registry key of the tool.
const Name = "code_interpreter"

func init() {
	// Scripts are written like Python snippets: top-level loops and
	// conditionals, rebinding globals, while loops and recursion.
	resolve.AllowSet = true
	resolve.AllowGlobalReassign = true
	resolve.AllowRecursion = true
}

// Config tunes the interpreter.
type Config struct {
	// MaxSteps bounds the number of Starlark steps per run. Zero is
	// unlimited.
	MaxSteps uint64

	// Timeout is the tool's default hub deadline.
	Timeout time.Duration
}

var descriptor = types.ToolDescriptor{
	Name: Name,
	Description: "Executes a Python-like (Starlark) program and returns everything it printed. " +
		"The math and json modules are available without import.",
	Parameters: types.Parameters{
		{Name: "code", Type: types.TypeString, Description: "Program source. print() output is captured.", Required: true},
	},
}

// New returns the in-process tool.
func New(cfg Config) *tool.Func {
	return tool.MustFunc(descriptor, func(_ context.Context, args types.Arguments) (types.Value, error) {
		code, _ := args.Str("code")
		out, err := Exec(code, cfg.MaxSteps)
		if err != nil {
			return types.Value{}, err
		}
		return types.String(out), nil
	}, tool.WithDefaultTimeout(cfg.Timeout))
}

// Exec runs code and returns its captured output. A failing program returns
// an error already formatted as "<Kind>: <message>"; partial output is
// discarded.
func Exec(code string, maxSteps uint64) (string, error) {
	var out strings.Builder
	thread := &starlark.Thread{
		Name: Name,
		Print: func(_ *starlark.Thread, msg string) {
			out.WriteString(msg)
			out.WriteByte('\n')
		},
	}
	if maxSteps > 0 {
		thread.SetMaxExecutionSteps(maxSteps)
	}
	predeclared := starlark.StringDict{
		"math": starmath.Module,
		"json": starjson.Module,
	}
	if _, err := starlark.ExecFile(thread, "<code>", code, predeclared); err != nil {
		return "", classify(err)
	}
	return out.String(), nil
}

// Fault is a classified program failure.
type Fault struct {
	Kind string
	Msg  string
}

func (f *Fault) Error() string { return f.Kind + ": " + f.Msg }

type rule struct {
	match []string
	kind  string
}

// Runtime messages are matched in order; the first rule with any matching
// substring wins.
var rules = []rule{
	{match: []string{"division by zero", "modulo by zero"}, kind: "ZeroDivisionError"},
	{match: []string{"referenced before assignment", "undefined:"}, kind: "NameError"},
	{match: []string{"out of range"}, kind: "IndexError"},
	{match: []string{"not in dict", "not in set", "key not found"}, kind: "KeyError"},
	{match: []string{"has no .", "no such field", "no such method"}, kind: "AttributeError"},
	{match: []string{
		"unknown binary op", "unknown unary op", "unhashable", "not callable",
		"invalid call of non-function", "has no len", "not iterable", ", want ",
	}, kind: "TypeError"},
	{match: []string{"invalid literal", "invalid syntax for"}, kind: "ValueError"},
}

func classify(err error) *Fault {
	var se syntax.Error
	if errors.As(err, &se) {
		return &Fault{Kind: "SyntaxError", Msg: se.Msg}
	}

	var rl resolve.ErrorList
	if errors.As(err, &rl) && len(rl) > 0 {
		msg := rl[0].Msg
		if name, ok := strings.CutPrefix(msg, "undefined: "); ok {
			return &Fault{Kind: "NameError", Msg: fmt.Sprintf("name '%s' is not defined", name)}
		}
		return &Fault{Kind: "SyntaxError", Msg: msg}
	}

	msg := err.Error()
	var ee *starlark.EvalError
	if errors.As(err, &ee) {
		msg = ee.Msg
	}
	if rest, ok := strings.CutPrefix(msg, "fail: "); ok {
		return &Fault{Kind: "Exception", Msg: rest}
	}
	for _, r := range rules {
		for _, m := range r.match {
			if !strings.Contains(msg, m) {
				continue
			}
			if r.kind == "ZeroDivisionError" {
				return &Fault{Kind: r.kind, Msg: "division by zero"}
			}
			return &Fault{Kind: r.kind, Msg: msg}
		}
	}
	return &Fault{Kind: "RuntimeError", Msg: msg}
}
