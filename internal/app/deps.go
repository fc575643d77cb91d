package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MrWong99/toolhub/internal/config"
	"github.com/MrWong99/toolhub/internal/rendezvous"
	"github.com/MrWong99/toolhub/internal/resilience"
	"github.com/MrWong99/toolhub/internal/tools"
	"github.com/MrWong99/toolhub/internal/tools/codeexec"
	"github.com/MrWong99/toolhub/internal/tools/fileio"
	"github.com/MrWong99/toolhub/internal/tools/hybridsearch"
)

// ToolDeps builds the shared dependencies of the built-in tools from cfg:
// the file sandbox, the hybrid-search stores and the api_caller client.
// broker may be nil, which disables human_input.
//
// The returned close function releases the stores. It is never nil.
func ToolDeps(ctx context.Context, cfg *config.Config, reg *config.Registry, broker *rendezvous.Broker) (tools.Deps, func() error, error) {
	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	deps := tools.Deps{
		Broker:     broker,
		HumanWait:  cfg.Operator.HumanWait,
		HTTPClient: &http.Client{},
		Breakers:   resilience.NewBreakerSet(resilience.Config{}),
		Code:       codeexec.Config{MaxSteps: cfg.Code.MaxSteps, Timeout: cfg.Code.Timeout},
	}

	if root := cfg.Files.Root; root != "" {
		sb, err := fileio.NewSandbox(root)
		if err != nil {
			return tools.Deps{}, closeAll, fmt.Errorf("files root: %w", err)
		}
		deps.Sandbox = sb
	}

	if hs := cfg.HybridSearch; hs.Enabled() {
		emb, err := reg.CreateEmbeddings(cfg.Embeddings)
		if err != nil {
			return tools.Deps{}, closeAll, fmt.Errorf("embeddings: %w", err)
		}
		sem, err := reg.CreateSemantic(ctx, hs.Semantic, emb)
		if err != nil {
			return tools.Deps{}, closeAll, fmt.Errorf("semantic store: %w", err)
		}
		closers = append(closers, sem.Close)
		rel, err := reg.CreateRelational(ctx, hs.Relational)
		if err != nil {
			return tools.Deps{}, closeAll, fmt.Errorf("relational store: %w", err)
		}
		closers = append(closers, rel.Close)

		deps.Searcher = &hybridsearch.Searcher{
			Embedder:   emb,
			Semantic:   sem,
			Relational: rel,
			TopK:       hs.TopK,
			MinScore:   hs.MinScore,
		}
		slog.Info("hybrid search ready",
			"embeddings", emb.ModelID(),
			"semantic", hs.Semantic.Backend,
			"relational", hs.Relational.Backend,
		)
	}
	return deps, closeAll, nil
}
