// Package assistant answers free-form guest prompts with a chat model.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/stayhub/stayhub/pkg/metrics"
)

// DefaultModel is the chat model used when Options.Model is empty.
const DefaultModel = "gpt-4o"

// RoleAssistant is the role reported on every reply.
const RoleAssistant = "assistant"

// ErrEmptyPrompt is returned for a blank prompt.
var ErrEmptyPrompt = errors.New("assistant: empty prompt")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options configures the Service.
type Options struct {
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
	Logger      *slog.Logger
	Metrics     *metrics.Registry
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{Timeout: 60 * time.Second, Temperature: 0.7}
}

// Service sends single prompts to a model.
type Service struct {
	model llms.Model
	opts  Options
	log   *slog.Logger

	requests *metrics.Counter
	failures *metrics.Counter
	latency  *metrics.Histogram
}

// NewOpenAIModel builds an OpenAI chat model. baseURL may be empty.
func NewOpenAIModel(apiKey, model, baseURL string) (*openai.LLM, error) {
	if model == "" {
		model = DefaultModel
	}
	opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("assistant: create client: %w", err)
	}
	return llm, nil
}

// New creates a Service over model.
func New(model llms.Model, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Service{
		model:    model,
		opts:     opts,
		log:      opts.Logger,
		requests: opts.Metrics.Counter("stayhub_assistant_requests_total", "Assistant prompts received."),
		failures: opts.Metrics.Counter("stayhub_assistant_errors_total", "Assistant prompts that failed."),
		latency:  opts.Metrics.Histogram("stayhub_assistant_duration_seconds", "Assistant completion latency.", nil),
	}
}

// Chat sends prompt as a single user message and returns the reply.
func (s *Service) Chat(ctx context.Context, prompt string) (Message, error) {
	if strings.TrimSpace(prompt) == "" {
		return Message{}, ErrEmptyPrompt
	}
	s.requests.Inc()
	start := time.Now()
	defer s.latency.Since(start)

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var callOpts []llms.CallOption
	if s.opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(s.opts.Temperature))
	}
	if s.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(s.opts.MaxTokens))
	}

	reply, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, callOpts...)
	if err != nil {
		s.failures.Inc()
		s.log.Error("assistant completion failed", "err", err)
		return Message{}, fmt.Errorf("assistant: generate: %w", err)
	}
	s.log.Debug("assistant reply", "prompt_len", len(prompt), "reply_len", len(reply), "took", time.Since(start))
	return Message{Role: RoleAssistant, Content: reply}, nil
}
