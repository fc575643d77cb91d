package calculator

import (
	"context"
	"strings"
	"testing"

	"github.com/MrWong99/toolhub/pkg/types"
)

func TestEval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr string
		want types.Value
	}{
		{expr: "(2 + 2) * 4", want: types.Number(16)},
		{expr: "10 / 4", want: types.Number(2.5)},
		{expr: "sqrt(16) + pow(2, 3)", want: types.Number(12)},
		{expr: "abs(-3)", want: types.Number(3)},
		{expr: "3 > 2", want: types.Bool(true)},
		{expr: "'a' + 'b'", want: types.String("ab")},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			got, err := Eval(tt.expr)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Eval(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr    string
		wantErr string
	}{
		{expr: "1 / 0", wantErr: "finite"},
		{expr: "(1 +", wantErr: "invalid expression"},
		{expr: "sqrt(1, 2)", wantErr: "expected 1 argument"},
		{expr: "undefined_var + 1", wantErr: "No parameter 'undefined_var' found"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			_, err := Eval(tt.expr)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Eval(%q) err = %v, want containing %q", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestToolEnvelope(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr    string
		wantErr string
	}{
		{expr: "1 / 0", wantErr: "finite"},
		{expr: "x + 1", wantErr: "No parameter 'x' found"},
	}
	for _, tt := range tests {
		res, err := New().Run(context.Background(), types.Arguments{"expression": types.String(tt.expr)})
		if err != nil {
			t.Fatalf("Run(%q): %v", tt.expr, err)
		}
		if !strings.Contains(res.Err, tt.wantErr) || strings.Contains(res.Err, "panic") {
			t.Errorf("Run(%q) envelope = %+v, want error containing %q", tt.expr, res, tt.wantErr)
		}
	}
}
