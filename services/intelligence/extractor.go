// Package intelligence turns a free-text reply into a structured Extraction.
package intelligence

import (
	"context"
	"fmt"
	"io"
	"strings"

	"parley/config"
	"parley/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Extractor reads one reply. Implementations may return an error; callers
// treat any error as an unclear reply.
type Extractor interface {
	Extract(ctx context.Context, raw string, ectx models.ExtractionContext) (*models.Extraction, error)
}

// Completer sends one prompt to a language model and returns its raw text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ModelExtractor drives a Completer with the extraction prompt and decodes
// its answer.
type ModelExtractor struct {
	Completer Completer
	Backend   string
	Logger    *zap.Logger
}

func (m *ModelExtractor) Extract(ctx context.Context, raw string, ectx models.ExtractionContext) (*models.Extraction, error) {
	text, err := m.Completer.Complete(ctx, SystemPrompt, BuildPrompt(raw, ectx))
	if err != nil {
		return nil, fmt.Errorf("%s completion: %w", m.Backend, err)
	}
	ext, err := DecodeExtraction(text)
	if err != nil {
		m.Logger.Warn("Model answer could not be decoded",
			zap.String("backend", m.Backend),
			zap.String("answer", truncate(text, 200)),
			zap.Error(err))
		return nil, err
	}
	return ext, nil
}

// Close releases the model client behind ext, if it holds one.
func Close(ext Extractor) error {
	switch e := ext.(type) {
	case *CachingExtractor:
		return Close(e.Next)
	case *ModelExtractor:
		if c, ok := e.Completer.(io.Closer); ok {
			return c.Close()
		}
	}
	return nil
}

// NewExtractor selects the backend named by EXTRACTOR_BACKEND. cache may be
// nil; it only wraps model backends.
func NewExtractor(ctx context.Context, cfg config.Config, cache *redis.Client, logger *zap.Logger) (Extractor, error) {
	logger = logger.Named("extractor")

	var completer Completer
	backend := strings.ToLower(cfg.ExtractorBackend)
	switch backend {
	case "", "local":
		return &LocalExtractor{}, nil
	case "anthropic", "claude":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic extractor")
		}
		completer = NewAnthropicCompleter(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini extractor")
		}
		c, err := NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		completer = c
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai extractor")
		}
		completer = NewOpenAICompleter(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown extractor backend %q", cfg.ExtractorBackend)
	}

	logger.Info("Using model extractor", zap.String("backend", backend))
	var ext Extractor = &ModelExtractor{Completer: completer, Backend: backend, Logger: logger}
	if cache != nil && cfg.ExtractionCacheTTL() > 0 {
		ext = &CachingExtractor{
			Next:   ext,
			Store:  NewRedisExtractionStore(cache, cfg.ExtractionCacheTTL()),
			Logger: logger,
		}
	}
	return ext, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
