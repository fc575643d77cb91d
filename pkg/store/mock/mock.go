// Package mock provides in-memory store doubles for tests.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/toolhub/pkg/store"
	"github.com/MrWong99/toolhub/pkg/types"
)

var (
	_ store.SemanticStore   = (*Semantic)(nil)
	_ store.RelationalStore = (*Relational)(nil)
)

// Semantic ranks Docs by cosine similarity.
type Semantic struct {
	Docs []store.Document

	// Err, if set, is returned by Rank.
	Err error

	mu        sync.Mutex
	RankCalls int
}

// Rank implements store.SemanticStore.
func (s *Semantic) Rank(_ context.Context, query []float32) ([]store.Scored, error) {
	s.mu.Lock()
	s.RankCalls++
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]store.Scored, len(s.Docs))
	for i, d := range s.Docs {
		out[i] = store.Scored{ID: d.ID, Score: store.Cosine(query, d.Embedding)}
	}
	store.SortScored(out)
	return out, nil
}

// Close is a no-op.
func (s *Semantic) Close() error { return nil }

// Relational filters Records by exact equality. Columns lists the known
// columns; when empty, the union of record keys is used.
type Relational struct {
	Records []store.Record
	Columns []string

	// ID defaults to "id".
	ID string

	// Err, if set, is returned by Filter.
	Err error
}

// IDField implements store.RelationalStore.
func (r *Relational) IDField() string {
	if r.ID == "" {
		return "id"
	}
	return r.ID
}

// Filter implements store.RelationalStore.
func (r *Relational) Filter(_ context.Context, filters map[string]types.Value) ([]store.Record, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	known := r.known()
	for k := range filters {
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("%w: %q", store.ErrUnknownField, k)
		}
	}
	out := []store.Record{}
	for _, rec := range r.Records {
		if matches(rec, filters) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *Relational) known() map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range r.Columns {
		set[c] = struct{}{}
	}
	if len(set) > 0 {
		return set
	}
	for _, rec := range r.Records {
		for k := range rec {
			set[k] = struct{}{}
		}
	}
	return set
}

func matches(rec store.Record, filters map[string]types.Value) bool {
	for k, want := range filters {
		got, ok := rec[k]
		if !ok {
			got = types.Null()
		}
		if !got.Equal(want) {
			return false
		}
	}
	return true
}

// Close is a no-op.
func (r *Relational) Close() error { return nil }
