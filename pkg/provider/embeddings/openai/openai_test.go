package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeAPI answers /embeddings with one vector per input. The vector's first
// component is the input's position within its request and the second is
// the input text's length. Data entries are sent in reverse order, and the
// server records the size of every request.
type fakeAPI struct {
	dims int // vector width; 0 means 2

	mu    sync.Mutex
	sizes []int
}

func (f *fakeAPI) start(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input any    `json:"input"`
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var inputs []string
		switch in := req.Input.(type) {
		case string:
			inputs = []string{in}
		case []any:
			for _, v := range in {
				s, _ := v.(string)
				inputs = append(inputs, s)
			}
		}
		f.mu.Lock()
		f.sizes = append(f.sizes, len(inputs))
		f.mu.Unlock()

		width := max(f.dims, 2)
		data := make([]map[string]any, 0, len(inputs))
		for i := len(inputs) - 1; i >= 0; i-- {
			vec := make([]float64, width)
			vec[0], vec[1] = float64(i), float64(len(inputs[i]))
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/v1/"
}

// ─── New ─────────────────────────────────────────────────────────────────────

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		key       string
		model     string
		opts      []Option
		wantErr   bool
		wantModel string
		wantDims  int
	}{
		{name: "missing key", model: "text-embedding-3-small", wantErr: true},
		{name: "negative dimensions", key: "sk", opts: []Option{WithDimensions(-1)}, wantErr: true},
		{name: "defaults", key: "sk", wantModel: DefaultModel, wantDims: 1536},
		{name: "large", key: "sk", model: "text-embedding-3-large", wantModel: "text-embedding-3-large", wantDims: 3072},
		{name: "unknown model", key: "sk", model: "nomic-embed-text", wantModel: "nomic-embed-text", wantDims: 1536},
		{
			name: "shortened", key: "sk", model: "text-embedding-3-large",
			opts:      []Option{WithDimensions(256), WithOrganization("org-1"), WithMaxRetries(0)},
			wantModel: "text-embedding-3-large", wantDims: 256,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New(tt.key, tt.model, tt.opts...)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.ModelID() != tt.wantModel || p.Dimensions() != tt.wantDims {
				t.Errorf("ModelID = %q, Dimensions = %d; want %q, %d", p.ModelID(), p.Dimensions(), tt.wantModel, tt.wantDims)
			}
		})
	}
}

// ─── Embed ───────────────────────────────────────────────────────────────────

func TestEmbed(t *testing.T) {
	t.Parallel()

	var api fakeAPI
	p, err := New("sk-test", "", WithBaseURL(api.start(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v, err := p.Embed(t.Context(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 2 || v[1] != 5 {
		t.Errorf("Embed = %v, want [0 5]", v)
	}
}

func TestEmbedBatch_SplitsAndOrders(t *testing.T) {
	t.Parallel()

	var api fakeAPI
	p, err := New("sk-test", "", WithBaseURL(api.start(t)), WithMaxBatch(2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := p.EmbedBatch(t.Context(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if int(v[1]) != len(texts[i]) || int(v[0]) != i%2 {
			t.Errorf("vecs[%d] = %v, out of order", i, v)
		}
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if got := api.sizes; len(got) != 3 || got[0] != 2 || got[1] != 2 || got[2] != 1 {
		t.Errorf("request sizes = %v, want [2 2 1]", got)
	}
}

func TestEmbedBatch_Empty(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test", "", WithBaseURL("http://127.0.0.1:1/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	vecs, err := p.EmbedBatch(t.Context(), nil)
	if err != nil || len(vecs) != 0 {
		t.Errorf("EmbedBatch(nil) = %v, %v", vecs, err)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	t.Parallel()

	api := fakeAPI{dims: 8}
	p, err := New("sk-test", "text-embedding-3-small", WithBaseURL(api.start(t)), WithDimensions(16))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(t.Context(), "x"); err == nil || !strings.Contains(err.Error(), "want 16") {
		t.Errorf("err = %v, want dimension mismatch", err)
	}
}

func TestEmbed_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Embed(t.Context(), "x"); err == nil || !strings.Contains(err.Error(), "openai embeddings") {
		t.Errorf("err = %v, want wrapped API error", err)
	}
}
