// Package vectorfile is an in-memory semantic store loaded from a JSON file.
//
// The file holds an array of documents:
//
//	[{"id": "1", "text": "...", "embedding": [0.1, 0.2, ...]}, ...]
//
// Documents without an embedding are embedded once at load time with the
// configured provider.
package vectorfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/store"
)

var _ store.SemanticStore = (*Store)(nil)

// Store holds every document in memory. It is read-only after construction
// and safe for concurrent use.
type Store struct {
	docs []store.Document
}

// New builds a store from docs. Documents missing an embedding are embedded
// with p in one batch; p may be nil when every document carries one.
func New(ctx context.Context, docs []store.Document, p embeddings.Provider) (*Store, error) {
	var (
		missing []int
		texts   []string
		seen    = make(map[string]struct{}, len(docs))
	)
	for i, d := range docs {
		if d.ID == "" {
			return nil, fmt.Errorf("vectorfile: document #%d has no id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return nil, fmt.Errorf("vectorfile: duplicate document id %q", d.ID)
		}
		seen[d.ID] = struct{}{}
		if len(d.Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, d.Text)
		}
	}
	if len(missing) > 0 {
		if p == nil {
			return nil, errors.New("vectorfile: documents without embeddings need an embeddings provider")
		}
		vecs, err := p.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("vectorfile: embed documents: %w", err)
		}
		if len(vecs) != len(missing) {
			return nil, fmt.Errorf("vectorfile: provider returned %d vectors for %d documents", len(vecs), len(missing))
		}
		for j, i := range missing {
			docs[i].Embedding = vecs[j]
		}
	}
	return &Store{docs: docs}, nil
}

// Load reads a JSON document file.
func Load(ctx context.Context, path string, p embeddings.Provider) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vectorfile: %w", err)
	}
	var docs []store.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("vectorfile: parse %s: %w", path, err)
	}
	return New(ctx, docs, p)
}

// Len returns the number of documents.
func (s *Store) Len() int { return len(s.docs) }

// Rank implements store.SemanticStore.
func (s *Store) Rank(ctx context.Context, query []float32) ([]store.Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]store.Scored, len(s.docs))
	for i, d := range s.docs {
		out[i] = store.Scored{ID: d.ID, Score: store.Cosine(query, d.Embedding)}
	}
	store.SortScored(out)
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
