package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/MrWong99/toolhub/pkg/store"
)

func TestEmbedIsDeterministicAndNormalized(t *testing.T) {
	t.Parallel()
	p := New(64)
	a, _ := p.Embed(context.Background(), "Concurrency patterns in Go")
	b, _ := p.Embed(context.Background(), "concurrency PATTERNS in go!")

	if len(a) != 64 {
		t.Fatalf("len = %d, want 64", len(a))
	}
	if sim := store.Cosine(a, b); math.Abs(sim-1) > 1e-6 {
		t.Errorf("case and punctuation changed the vector: cosine = %v", sim)
	}
	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("|v|^2 = %v, want 1", norm)
	}
}

func TestSimilarTextScoresHigher(t *testing.T) {
	t.Parallel()
	p := New(0)
	q, _ := p.Embed(context.Background(), "goroutines and channels")
	vecs, err := p.EmbedBatch(context.Background(), []string{
		"a guide to goroutines and channels in go",
		"growing tomatoes in a small garden",
	})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if store.Cosine(q, vecs[0]) <= store.Cosine(q, vecs[1]) {
		t.Errorf("related text did not outrank unrelated text")
	}
	if p.Dimensions() != DefaultDimensions {
		t.Errorf("Dimensions = %d", p.Dimensions())
	}
}

func TestEmptyTextIsZeroVector(t *testing.T) {
	t.Parallel()
	v, _ := New(8).Embed(context.Background(), "  ...  ")
	for _, x := range v {
		if x != 0 {
			t.Fatalf("v = %v, want zeros", v)
		}
	}
}
