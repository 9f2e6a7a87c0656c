package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/ai/transport"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// Provider implements models.CompletionProvider against an OpenAI-compatible
// chat completions endpoint.
type Provider struct {
	name    string
	baseURL string
	model   string
	client  *transport.Client
}

// NewProvider creates a provider for the OpenAI API.
func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model, timeout)
}

// NewCompatible creates a provider for any server speaking the OpenAI chat
// completions protocol. apiKey may be empty for unauthenticated servers.
func NewCompatible(name, baseURL, apiKey, model string, timeout time.Duration) *Provider {
	headers := http.Header{}
	if apiKey != "" {
		headers.Set("Authorization", "Bearer "+apiKey)
	}
	return &Provider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  transport.New(timeout, headers),
	}
}

func (p *Provider) Name() string { return p.name }

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/v1/chat/completions", body, &resp); err != nil {
		return "", fmt.Errorf("%s chat completion: %w", p.name, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", models.ErrInvalidResponse, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in %s response", models.ErrInvalidResponse, p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

var _ models.CompletionProvider = (*Provider)(nil)
