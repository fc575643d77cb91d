// Package embeddings defines the Provider interface for text-embedding
// backends. The hybrid-search tool embeds queries with it, and the vector
// file store embeds documents that ship without a precomputed vector.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider maps text to dense float32 vectors.
//
// Every vector from one Provider has length Dimensions(). Vectors from
// different providers are not comparable.
type Provider interface {
	// Embed returns the vector for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in order. On error the whole
	// batch fails.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed vector length.
	Dimensions() int

	// ModelID identifies the model, for logs and config validation.
	ModelID() string
}
