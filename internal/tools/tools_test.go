package tools

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/MrWong99/toolhub/internal/rendezvous"
	"github.com/MrWong99/toolhub/internal/tools/fileio"
	"github.com/MrWong99/toolhub/pkg/types"
)

func TestNamesSortedAndComplete(t *testing.T) {
	t.Parallel()
	names := Names()
	if !slices.IsSorted(names) {
		t.Errorf("names not sorted: %v", names)
	}
	for _, want := range []string{
		"api_caller", "calculator", "code_interpreter", "db_querier", "human_input",
		"hybrid_search", "list_directory", "log_notifier", "read_file", "write_file",
	} {
		if !slices.Contains(names, want) {
			t.Errorf("catalog lacks %q", want)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()
	sb, err := fileio.NewSandbox(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	deps := Deps{Sandbox: sb, Broker: rendezvous.NewBroker()}

	tests := []struct {
		name    string
		deps    Deps
		wantErr string
	}{
		{name: "calculator", deps: Deps{}},
		{name: "read_file", deps: deps},
		{name: "read_file", deps: Deps{}, wantErr: "files root"},
		{name: "human_input", deps: Deps{}, wantErr: "broker"},
		{name: "hybrid_search", deps: deps, wantErr: "stores"},
		{name: "nope", deps: deps, wantErr: "unknown builtin"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.wantErr, func(t *testing.T) {
			t.Parallel()
			f, err := Build(tt.name, tt.deps)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("err = %v, want substring %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			d, _ := f.Describe(context.Background())
			if d.Name != tt.name {
				t.Errorf("descriptor name = %q", d.Name)
			}
		})
	}
}

func TestBuildAvailableSkipsMissingDeps(t *testing.T) {
	t.Parallel()
	got := BuildAvailable(Deps{})
	var names []string
	for _, f := range got {
		d, _ := f.Describe(context.Background())
		names = append(names, d.Name)
	}
	want := []string{"api_caller", "calculator", "code_interpreter", "log_notifier"}
	if !slices.Equal(names, want) {
		t.Errorf("available = %v, want %v", names, want)
	}

	res, err := got[1].Run(context.Background(), types.Arguments{"expression": types.String("1 + 1")})
	if err != nil || res.IsError() {
		t.Fatalf("calculator: %+v, %v", res, err)
	}
}
