// Package embed turns text into embedding vectors. Providers are Ollama over
// HTTP and any OpenAI-compatible API through langchaingo; Cached and Guarded
// decorate either one.
package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyInput = errors.New("embed: empty input")
	ErrBadConfig  = errors.New("embed: invalid configuration")
)

// Embedder maps one text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder also embeds many texts in one call, in input order.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider names accepted by Config.Provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config selects and configures a provider.
type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
}

// New builds the provider named by cfg.Provider.
func New(cfg Config) (BatchEmbedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		if cfg.BaseURL == "" || cfg.Model == "" {
			return nil, fmt.Errorf("%w: ollama needs base_url and model", ErrBadConfig)
		}
		return NewOllama(cfg.BaseURL, cfg.Model), nil
	case ProviderOpenAI, "":
		return NewOpenAI(OpenAIOpts{BaseURL: cfg.BaseURL, Model: cfg.Model, APIKey: cfg.APIKey})
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrBadConfig, cfg.Provider)
	}
}
