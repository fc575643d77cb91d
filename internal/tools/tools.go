// Package tools is the catalog of built-in tools. Each sub-package exports a
// constructor; [Build] turns a catalog name into a ready adapter given the
// shared dependencies in [Deps].
//
// The catalog is used both by the hub, which registers built-ins in-process,
// and by the toolserver command, which hosts one built-in behind the
// subprocess RPC service.
package tools

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/MrWong99/toolhub/internal/rendezvous"
	"github.com/MrWong99/toolhub/internal/resilience"
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/internal/tools/apicaller"
	"github.com/MrWong99/toolhub/internal/tools/calculator"
	"github.com/MrWong99/toolhub/internal/tools/codeexec"
	"github.com/MrWong99/toolhub/internal/tools/dbquery"
	"github.com/MrWong99/toolhub/internal/tools/fileio"
	"github.com/MrWong99/toolhub/internal/tools/humaninput"
	"github.com/MrWong99/toolhub/internal/tools/hybridsearch"
	"github.com/MrWong99/toolhub/internal/tools/lognotifier"
)

// Deps carries what the built-ins need. A nil field disables the tools that
// depend on it; Build reports which dependency is missing.
type Deps struct {
	// Sandbox roots read_file, write_file, list_directory and db_querier.
	Sandbox *fileio.Sandbox

	// Broker and HumanWait back human_input.
	Broker    *rendezvous.Broker
	HumanWait time.Duration

	// Searcher backs hybrid_search.
	Searcher *hybridsearch.Searcher

	// HTTPClient and Breakers back api_caller.
	HTTPClient *http.Client
	Breakers   *resilience.BreakerSet

	// Code tunes code_interpreter.
	Code codeexec.Config

	// Logger receives log_notifier output. Nil means the context logger.
	Logger *slog.Logger
}

type builder func(Deps) (*tool.Func, error)

var catalog = map[string]builder{
	codeexec.Name: func(d Deps) (*tool.Func, error) {
		return codeexec.New(d.Code), nil
	},
	humaninput.Name: func(d Deps) (*tool.Func, error) {
		if d.Broker == nil {
			return nil, errMissing("rendezvous broker")
		}
		return humaninput.New(d.Broker, d.HumanWait), nil
	},
	hybridsearch.Name: func(d Deps) (*tool.Func, error) {
		if d.Searcher == nil {
			return nil, errMissing("hybrid_search stores")
		}
		return hybridsearch.New(d.Searcher), nil
	},
	fileio.ReadName: func(d Deps) (*tool.Func, error) {
		if d.Sandbox == nil {
			return nil, errMissing("files root")
		}
		return d.Sandbox.ReadFile(), nil
	},
	fileio.WriteName: func(d Deps) (*tool.Func, error) {
		if d.Sandbox == nil {
			return nil, errMissing("files root")
		}
		return d.Sandbox.WriteFile(), nil
	},
	fileio.ListName: func(d Deps) (*tool.Func, error) {
		if d.Sandbox == nil {
			return nil, errMissing("files root")
		}
		return d.Sandbox.ListDirectory(), nil
	},
	dbquery.Name: func(d Deps) (*tool.Func, error) {
		if d.Sandbox == nil {
			return nil, errMissing("files root")
		}
		return dbquery.New(d.Sandbox), nil
	},
	calculator.Name: func(Deps) (*tool.Func, error) {
		return calculator.New(), nil
	},
	apicaller.Name: func(d Deps) (*tool.Func, error) {
		return apicaller.New(apicaller.Config{Client: d.HTTPClient, Breakers: d.Breakers}), nil
	},
	lognotifier.Name: func(d Deps) (*tool.Func, error) {
		return lognotifier.New(d.Logger), nil
	},
}

func errMissing(what string) error {
	return fmt.Errorf("requires %s", what)
}

// Names returns the catalog's tool names in sorted order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Build constructs the built-in called name.
func Build(name string, deps Deps) (*tool.Func, error) {
	b, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("tools: unknown builtin %q (available: %v)", name, Names())
	}
	f, err := b(deps)
	if err != nil {
		return nil, fmt.Errorf("tools: %s %w", name, err)
	}
	return f, nil
}

// BuildAvailable constructs every built-in whose dependencies are present
// and returns them in name order. Skipped tools are logged.
func BuildAvailable(deps Deps) []*tool.Func {
	var out []*tool.Func
	for _, n := range Names() {
		f, err := Build(n, deps)
		if err != nil {
			slog.Info("tools: builtin not available", "tool", n, "reason", err)
			continue
		}
		out = append(out, f)
	}
	return out
}
