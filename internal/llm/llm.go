// Package llm is the completion endpoint used by the classifier, the SQL
// synthesizer, the extractor and the resource suggester.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Completer turns one system instruction and one user message into the
// model's raw text reply. Implementations never retry.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultBaseURL     = "https://api.groq.com/openai/v1"
	DefaultModel       = "llama-3.3-70b-versatile"
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultTimeout     = 60 * time.Second
)

var ErrNoAPIKey = errors.New("llm api key not configured")

type Config struct {
	Provider string
	BaseURL  string
	Model    string
	APIKey   string
	Timeout  time.Duration
	Logger   *zap.Logger
}

// New builds the completer for cfg.Provider ("openai" when empty).
func New(ctx context.Context, cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "groq", "":
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = DefaultModel
		}
		return NewOpenAIClient(cfg), nil
	case ProviderGemini:
		if cfg.Model == "" || cfg.Model == DefaultModel {
			cfg.Model = DefaultGeminiModel
		}
		return NewGeminiClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
