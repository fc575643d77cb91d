package vectorfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings/mock"
	"github.com/MrWong99/toolhub/pkg/store"
)

func TestLoadAndRank(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "docs.json")
	data := `[
		{"id": "2", "text": "b", "embedding": [0, 1]},
		{"id": "1", "text": "a", "embedding": [1, 0]},
		{"id": "10", "text": "c", "embedding": [1, 0]}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ranked, err := s.Rank(context.Background(), []float32{1, 0})
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	want := []string{"1", "10", "2"}
	for i, id := range want {
		if ranked[i].ID != id {
			t.Fatalf("ranked = %v, want ids %v", ranked, want)
		}
	}
}

func TestNewEmbedsMissingVectors(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Vectors: map[string][]float32{"hello": {1, 0}}, DimensionsValue: 2}
	s, err := New(context.Background(), []store.Document{{ID: "a", Text: "hello"}}, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ranked, _ := s.Rank(context.Background(), []float32{1, 0})
	if len(ranked) != 1 || ranked[0].Score < 0.999 {
		t.Errorf("ranked = %v", ranked)
	}
}

func TestNewRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		docs []store.Document
	}{
		{name: "missing id", docs: []store.Document{{Embedding: []float32{1}}}},
		{name: "duplicate id", docs: []store.Document{{ID: "a", Embedding: []float32{1}}, {ID: "a", Embedding: []float32{1}}}},
		{name: "no embedder", docs: []store.Document{{ID: "a", Text: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(context.Background(), tt.docs, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
