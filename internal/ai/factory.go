package ai

import (
	"fmt"

	"github.com/kiranshivaraju/phrasetracker/internal/ai/anthropic"
	"github.com/kiranshivaraju/phrasetracker/internal/ai/ollama"
	"github.com/kiranshivaraju/phrasetracker/internal/ai/openai"
	"github.com/kiranshivaraju/phrasetracker/internal/ai/vllm"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
	"golang.org/x/time/rate"
)

// NewProvider constructs the appropriate completion provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.CompletionProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic", cfg.Provider)
	}
}

// NewClassifierFromConfig builds the provider and wraps it in a Classifier.
func NewClassifierFromConfig(cfg config.AIConfig) (*Classifier, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return NewClassifier(provider, ClassifierOptions{
		Timeout:      cfg.InferenceTimeout,
		Temperature:  cfg.Temperature,
		MaxRetryTime: cfg.MaxRetryTime,
		Limiter:      limiter,
	}), nil
}
