// Package openai implements parley handlers and classifiers on top of any
// OpenAI-compatible chat completions endpoint, including Gemini's.
package openai

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash-lite"

// Config selects the endpoint and model.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	MaxTokens  int
}

// Backend is a configured chat completions client shared by generators and the classifier.
type Backend struct {
	client     openai.Client
	model      string
	maxTokens  int
	routerName string
	logger     *slog.Logger
}

// Option configures the Backend.
type Option func(*Backend)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRouterName sets the handler name under which classifier decisions are recorded.
// Those records are routing metadata and are left out of every prompt.
func WithRouterName(name string) Option {
	return func(b *Backend) {
		b.routerName = name
	}
}

// New creates a Backend. An API key is required.
func New(cfg Config, opts ...Option) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	b := &Backend{
		client:     openai.NewClient(reqOpts...),
		model:      model,
		maxTokens:  maxTokens,
		routerName: "Router",
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Model returns the model identifier used for every request.
func (b *Backend) Model() string {
	return b.model
}
