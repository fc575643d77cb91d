// Package openai embeds text with the OpenAI embeddings API or any server
// that speaks the same protocol (set WithBaseURL).
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/toolhub/pkg/provider/embeddings"
)

// DefaultModel is used when New is given no model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// DefaultMaxBatch is the largest input array the API accepts per request.
const DefaultMaxBatch = 2048

var _ embeddings.Provider = (*Provider)(nil)

// Provider is an [embeddings.Provider] backed by the embeddings endpoint.
type Provider struct {
	client   oai.Client
	model    string
	dims     int // requested width, 0 for the model's native width
	maxBatch int
}

type settings struct {
	reqOpts  []option.RequestOption
	dims     int
	maxBatch int
}

// Option configures a [Provider].
type Option func(*settings)

// WithBaseURL points the client at a compatible server, e.g. a local
// inference gateway at "http://localhost:8000/v1/".
func WithBaseURL(url string) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithBaseURL(url)) }
}

// WithOrganization sends the organization header.
func WithOrganization(org string) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithOrganization(org)) }
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithRequestTimeout(d)) }
}

// WithMaxRetries sets how often the client retries 429 and 5xx answers.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.reqOpts = append(s.reqOpts, option.WithMaxRetries(n)) }
}

// WithDimensions asks the model to shorten its vectors to n. Only the
// text-embedding-3 family supports it. Returned vectors are checked against n.
func WithDimensions(n int) Option {
	return func(s *settings) { s.dims = n }
}

// WithMaxBatch caps the number of texts sent in one request. Larger batches
// are split.
func WithMaxBatch(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// New returns a provider for model, or [DefaultModel] when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai embeddings: api key is required")
	}
	if model == "" {
		model = DefaultModel
	}
	s := settings{maxBatch: DefaultMaxBatch}
	for _, o := range opts {
		o(&s)
	}
	if s.dims < 0 {
		return nil, fmt.Errorf("openai embeddings: dimensions %d is negative", s.dims)
	}
	return &Provider{
		client:   oai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.reqOpts...)...),
		model:    model,
		dims:     s.dims,
		maxBatch: s.maxBatch,
	}, nil
}

// Embed returns the vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in chunks of at most the configured batch size and
// returns the vectors in input order.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.maxBatch {
		end := min(start+p.maxBatch, len(texts))
		vecs, err := p.request(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w (texts %d-%d)", err, start, end-1)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// request embeds one chunk. The response is reordered by index; a missing,
// repeated or out-of-range index fails the chunk.
func (p *Provider) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := oai.EmbeddingNewParams{
		Model:          p.model,
		EncodingFormat: oai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if len(texts) == 1 {
		params.Input = oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(texts[0])}
	} else {
		params.Input = oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts}
	}
	if p.dims > 0 {
		params.Dimensions = param.NewOpt(int64(p.dims))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(vecs) || vecs[i] != nil {
			return nil, fmt.Errorf("openai embeddings: bad or repeated index %d", d.Index)
		}
		if p.dims > 0 && len(d.Embedding) != p.dims {
			return nil, fmt.Errorf("openai embeddings: vector %d has %d dimensions, want %d", i, len(d.Embedding), p.dims)
		}
		vecs[i] = narrow(d.Embedding)
	}
	return vecs, nil
}

// Dimensions is the requested width, else the model's native one.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	return nativeDimensions(p.model)
}

// ModelID returns the model name.
func (p *Provider) ModelID() string { return p.model }

// nativeDimensions knows the OpenAI models; anything else is assumed to be
// as wide as text-embedding-3-small.
func nativeDimensions(model string) int {
	if strings.Contains(strings.ToLower(model), "text-embedding-3-large") {
		return 3072
	}
	return 1536
}

func narrow(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
