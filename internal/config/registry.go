package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/store"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// SemanticFactory builds a document store. p embeds documents that ship
// without a vector.
type SemanticFactory func(ctx context.Context, cfg SemanticStoreConfig, p embeddings.Provider) (store.SemanticStore, error)

// RelationalFactory builds a record store.
type RelationalFactory func(ctx context.Context, cfg RelationalStoreConfig) (store.RelationalStore, error)

// Registry maps backend names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	embeddings map[string]func(EmbeddingsConfig) (embeddings.Provider, error)
	semantic   map[string]SemanticFactory
	relational map[string]RelationalFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		embeddings: make(map[string]func(EmbeddingsConfig) (embeddings.Provider, error)),
		semantic:   make(map[string]SemanticFactory),
		relational: make(map[string]RelationalFactory),
	}
}

// RegisterEmbeddings registers an embeddings provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEmbeddings(name string, factory func(EmbeddingsConfig) (embeddings.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterSemantic registers a document store backend.
func (r *Registry) RegisterSemantic(name string, factory SemanticFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.semantic[name] = factory
}

// RegisterRelational registers a record store backend.
func (r *Registry) RegisterRelational(name string, factory RelationalFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relational[name] = factory
}

// CreateEmbeddings instantiates the provider named by cfg.Provider.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateEmbeddings(cfg EmbeddingsConfig) (embeddings.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}

// CreateSemantic instantiates the document store named by cfg.Backend.
func (r *Registry) CreateSemantic(ctx context.Context, cfg SemanticStoreConfig, p embeddings.Provider) (store.SemanticStore, error) {
	r.mu.RLock()
	factory, ok := r.semantic[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: semantic/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg, p)
}

// CreateRelational instantiates the record store named by cfg.Backend.
func (r *Registry) CreateRelational(ctx context.Context, cfg RelationalStoreConfig) (store.RelationalStore, error) {
	r.mu.RLock()
	factory, ok := r.relational[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: relational/%q", ErrProviderNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}

// Names lists registered names per kind ("embeddings", "semantic",
// "relational"), sorted. Used for startup logging.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string][]string{
		"embeddings": slices.Sorted(maps.Keys(r.embeddings)),
		"semantic":   slices.Sorted(maps.Keys(r.semantic)),
		"relational": slices.Sorted(maps.Keys(r.relational)),
	}
}
