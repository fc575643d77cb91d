// Package hybridsearch implements the hybrid_search tool. It merges a
// semantic ranking with an exact relational filter: a document is returned
// only if it matches every filter, and results keep the semantic order.
package hybridsearch

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
	"github.com/MrWong99/toolhub/pkg/store"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Name is the registry key of the tool.
const Name = "hybrid_search"

// Defaults for calls that omit top_k and min_score.
const (
	DefaultTopK     = 10
	DefaultMinScore = 0.0
)

// Searcher joins the two stores. It is safe for concurrent use when its
// stores and embedder are.
type Searcher struct {
	Embedder   embeddings.Provider
	Semantic   store.SemanticStore
	Relational store.RelationalStore

	// TopK and MinScore are the per-call defaults. Zero TopK means
	// DefaultTopK.
	TopK     int
	MinScore float64
}

// Query is one search request.
type Query struct {
	Text     string
	Filters  map[string]types.Value
	TopK     int
	MinScore float64
}

// Hit is one merged result.
type Hit struct {
	ID     string
	Score  float64
	Record store.Record
}

// Search runs the merge:
//
//  1. embed the query text and rank every document by cosine similarity
//     (score descending, id ascending on ties);
//  2. fetch the relational records matching all filters;
//  3. walk the ranking, keep documents that have a matching record and
//     score at least MinScore, stop after TopK.
//
// An impossible filter yields an empty slice, not an error.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	vec, err := s.Embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	ranked, err := s.Semantic.Rank(ctx, vec)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	records, err := s.Relational.Filter(ctx, q.Filters)
	if err != nil {
		if errors.Is(err, store.ErrUnknownField) {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
		return nil, fmt.Errorf("relational filter: %w", err)
	}

	byID := make(map[string]store.Record, len(records))
	idField := s.Relational.IDField()
	for _, r := range records {
		if id, ok := store.IDOf(r, idField); ok {
			byID[id] = r
		}
	}

	hits := []Hit{}
	for _, sc := range ranked {
		if len(hits) == q.TopK || sc.Score < q.MinScore {
			break
		}
		if r, ok := byID[sc.ID]; ok {
			hits = append(hits, Hit{ID: sc.ID, Score: sc.Score, Record: r})
		}
	}
	return hits, nil
}

var descriptor = types.ToolDescriptor{
	Name:        Name,
	Description: "Searches documents by meaning and filters them by exact attribute values.",
	Parameters: types.Parameters{
		{Name: "semantic_query", Type: types.TypeString, Description: "Free-text query ranked by semantic similarity.", Required: true},
		{Name: "filters", Type: types.TypeObject, Description: "Exact-match attribute filters, all of which must hold."},
		{Name: "top_k", Type: types.TypeInteger, Description: "Maximum number of results."},
		{Name: "min_score", Type: types.TypeNumber, Description: "Minimum cosine similarity in [-1, 1]."},
		{Name: "include_scores", Type: types.TypeBoolean, Description: "Add a score field to each result."},
	},
}

// New returns the in-process tool.
func New(s *Searcher) *tool.Func {
	return tool.MustFunc(descriptor, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		q := Query{
			TopK:     args.IntOr("top_k", s.TopK),
			MinScore: s.MinScore,
		}
		q.Text, _ = args.Str("semantic_query")
		if ms, ok := args.Number("min_score"); ok {
			q.MinScore = ms
		}
		if f, ok := args.Object("filters"); ok {
			q.Filters = f
		}
		hits, err := s.Search(ctx, q)
		if err != nil {
			return types.Value{}, err
		}

		withScores := args.BoolOr("include_scores", false)
		out := make([]types.Value, len(hits))
		for i, h := range hits {
			rec := maps.Clone(map[string]types.Value(h.Record))
			if withScores {
				rec["score"] = types.Number(h.Score)
			}
			out[i] = types.Object(rec)
		}
		return types.Array(out...), nil
	})
}
