// Package store defines the two read contracts the search tools consume: a
// semantic store that ranks documents by embedding similarity and a
// relational store that returns records matching exact-equality filters.
//
// Tools only read through these interfaces; loading and migrating data is
// the business of the concrete backends (vectorfile, sqlite, postgres).
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/MrWong99/toolhub/pkg/types"
)

// ErrUnknownField is wrapped by relational stores when a filter names a
// column that does not exist.
var ErrUnknownField = errors.New("store: unknown field")

// Document is one entry of a semantic store.
type Document struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Scored is a document id with its similarity to a query. Higher is closer.
type Scored struct {
	ID    string
	Score float64
}

// SemanticStore ranks documents against a query embedding.
type SemanticStore interface {
	// Rank scores every document and returns them sorted with [SortScored].
	Rank(ctx context.Context, query []float32) ([]Scored, error)
	Close() error
}

// Record is one relational row keyed by column name.
type Record map[string]types.Value

// RelationalStore returns rows matching every filter by exact equality.
type RelationalStore interface {
	// Filter returns the rows whose columns equal all filters. A filter on an
	// unknown column returns an error wrapping [ErrUnknownField]. An empty
	// filter set returns every row.
	Filter(ctx context.Context, filters map[string]types.Value) ([]Record, error)

	// IDField names the column that joins rows to semantic documents.
	IDField() string

	Close() error
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SortScored orders by score descending, then by id ascending. Ids that both
// parse as integers compare numerically.
func SortScored(s []Scored) {
	slices.SortStableFunc(s, func(a, b Scored) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return CompareIDs(a.ID, b.ID)
	})
}

// CompareIDs compares document ids, numerically when both are integers.
func CompareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return cmp.Compare(ai, bi)
	}
	return cmp.Compare(a, b)
}

// IDOf renders the id column of r as a string for joining with documents.
func IDOf(r Record, field string) (string, bool) {
	v, ok := r[field]
	if !ok || v.IsNull() {
		return "", false
	}
	if s, ok := v.Str(); ok {
		return s, true
	}
	if n, ok := v.Integer(); ok {
		return strconv.FormatInt(n, 10), true
	}
	return v.String(), true
}

// ValueFromColumn converts a database scan result to a Value. Types the
// value model has no tag for (timestamps, decimals, UUIDs) become strings.
func ValueFromColumn(x any) types.Value {
	if t, ok := x.(time.Time); ok {
		return types.String(t.UTC().Format(time.RFC3339Nano))
	}
	v, err := types.FromAny(x)
	if err != nil {
		return types.String(fmt.Sprint(x))
	}
	return v
}
