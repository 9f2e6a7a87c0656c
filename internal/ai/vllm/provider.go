package vllm

import (
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/ai/openai"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// Provider implements models.CompletionProvider using vLLM's OpenAI-compatible server.
type Provider struct {
	*openai.Provider
}

func NewProvider(cfg config.VLLMConfig, timeout time.Duration) *Provider {
	return &Provider{Provider: openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model, timeout)}
}

var _ models.CompletionProvider = (*Provider)(nil)
