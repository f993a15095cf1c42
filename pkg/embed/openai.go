package embed

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// ModelSmall is the default embedding model (1536 dims).
	ModelSmall = "text-embedding-3-small"

	defaultDim = 1536
)

// OpenAI implements [Embedder] using the OpenAI embeddings API. It also
// works with any OpenAI-compatible provider via WithBaseURL.
type OpenAI struct {
	client *openai.Client
	model  string
	dim    int
}

var _ Embedder = (*OpenAI)(nil)

// Option configures an OpenAI embedder.
type Option func(*OpenAI, *[]option.RequestOption)

// WithModel overrides the embedding model.
func WithModel(model string, dim int) Option {
	return func(o *OpenAI, _ *[]option.RequestOption) {
		o.model = model
		o.dim = dim
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(_ *OpenAI, reqOpts *[]option.RequestOption) {
		*reqOpts = append(*reqOpts, option.WithBaseURL(url))
	}
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(apiKey string, opts ...Option) *OpenAI {
	o := &OpenAI{model: ModelSmall, dim: defaultDim}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		opt(o, &reqOpts)
	}
	client := openai.NewClient(reqOpts...)
	o.client = &client
	return o
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: empty response for model %s", o.model)
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (o *OpenAI) Dimension() int {
	return o.dim
}
