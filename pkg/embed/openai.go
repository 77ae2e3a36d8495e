package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultOpenAIModel is used when OpenAIOpts.Model is empty.
const DefaultOpenAIModel = "text-embedding-ada-002"

// OpenAIOpts configures NewOpenAI.
type OpenAIOpts struct {
	// BaseURL overrides the API root, e.g. for an OpenAI-compatible server.
	BaseURL string
	Model   string
	APIKey  string
}

// OpenAI embeds through langchaingo's OpenAI client.
type OpenAI struct {
	embedder *embeddings.EmbedderImpl
	model    string
}

// NewOpenAI creates an OpenAI embedder.
func NewOpenAI(opts OpenAIOpts) (*OpenAI, error) {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key required", ErrBadConfig)
	}
	llmOpts := []openai.Option{
		openai.WithToken(opts.APIKey),
		openai.WithEmbeddingModel(opts.Model),
	}
	if opts.BaseURL != "" {
		llmOpts = append(llmOpts, openai.WithBaseURL(opts.BaseURL))
	}
	llm, err := openai.New(llmOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai embed: create client: %w", err)
	}
	e, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("openai embed: create embedder: %w", err)
	}
	return &OpenAI{embedder: e, model: opts.Model}, nil
}

// Embed implements Embedder.
func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}
	vec, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("openai embed (%s): %w", c.model, err)
	}
	return vec, nil
}

// EmbedBatch implements BatchEmbedder.
func (c *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vecs, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embed batch (%s): %w", c.model, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("openai embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
