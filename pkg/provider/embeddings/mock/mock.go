// Package mock provides a test double for embeddings.Provider.
//
// Vectors maps exact texts to canned vectors; unknown texts get
// DefaultVector (or a zero vector of DimensionsValue). Every call is
// recorded.
//
//	p := &mock.Provider{
//	    Vectors:         map[string][]float32{"query": {1, 0}},
//	    DimensionsValue: 2,
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider is a scripted embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Vectors holds canned results keyed by input text.
	Vectors map[string][]float32

	// DefaultVector is returned for texts missing from Vectors.
	DefaultVector []float32

	// Err, if set, fails every call.
	Err error

	DimensionsValue int
	ModelIDValue    string

	// Texts records every embedded text in call order.
	Texts []string
}

func (p *Provider) lookup(text string) []float32 {
	if v, ok := p.Vectors[text]; ok {
		return slices.Clone(v)
	}
	if p.DefaultVector != nil {
		return slices.Clone(p.DefaultVector)
	}
	return make([]float32, p.DimensionsValue)
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.Err != nil {
		return nil, p.Err
	}
	return p.lookup(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, texts...)
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.lookup(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock"
	}
	return p.ModelIDValue
}

// Calls returns a copy of the recorded texts.
func (p *Provider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.Texts)
}
