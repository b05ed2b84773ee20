package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"neowhatai/internal/config"
	"neowhatai/internal/interfaces"
)

// LLM bundles the completion and embedding backends selected by LLM_PROVIDER.
type LLM struct {
	Completer interfaces.Completer
	Embedder  interfaces.Embedder
	close     func() error
}

func (l *LLM) Close() error {
	if l.close == nil {
		return nil
	}
	return l.close()
}

func NewLLM(ctx context.Context, cfg config.Config, logger *slog.Logger) (*LLM, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenRouter:
		p, err := NewOpenAIProvider(cfg, logger.With("component", "openrouter"))
		if err != nil {
			return nil, err
		}
		return &LLM{Completer: p, Embedder: p}, nil

	case config.ProviderGemini:
		p, err := NewGeminiProvider(ctx, cfg, logger.With("component", "gemini"))
		if err != nil {
			return nil, err
		}
		return &LLM{Completer: p, Embedder: p, close: p.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}
