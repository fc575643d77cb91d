// Package hashing is a dependency-free embeddings provider for offline use.
//
// Text is lower-cased and split into words; every word and every adjacent
// word pair is hashed (FNV-1a) into one of Dimensions buckets with a
// hash-derived sign. The vector is L2-normalized. Similar wording yields
// similar vectors, which is enough for local testing and small corpora
// where calling a hosted model is not an option.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
)

// DefaultDimensions is used when New gets a non-positive width.
const DefaultDimensions = 256

var _ embeddings.Provider = (*Provider)(nil)

// Provider is stateless and safe for concurrent use.
type Provider struct {
	dims int
}

// New returns a provider producing vectors of the given width.
func New(dims int) *Provider {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &Provider{dims: dims}
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.vector(text), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = p.vector(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dims }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return "hashing-fnv1a" }

func (p *Provider) vector(text string) []float32 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	acc := make([]float64, p.dims)
	for i, w := range words {
		p.add(acc, w, 1)
		if i > 0 {
			p.add(acc, words[i-1]+" "+w, 0.5)
		}
	}
	var norm float64
	for _, x := range acc {
		norm += x * x
	}
	out := make([]float32, p.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range acc {
		out[i] = float32(x / norm)
	}
	return out
}

func (p *Provider) add(acc []float64, token string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	sum := h.Sum64()
	idx := int(sum % uint64(p.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}
