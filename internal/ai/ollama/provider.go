package ollama

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/ai/transport"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// Provider implements models.CompletionProvider using Ollama's chat API.
type Provider struct {
	baseURL string
	model   string
	client  *transport.Client
}

func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *Provider {
	return &Provider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  transport.New(timeout, nil),
	}
}

func (p *Provider) Name() string { return "ollama" }

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
}

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	body := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Options: chatOptions{Temperature: req.Temperature, NumPredict: req.MaxTokens},
	}
	if req.JSONMode {
		body.Format = "json"
	}

	var resp chatResponse
	if err := p.client.PostJSON(ctx, p.baseURL+"/api/chat", body, &resp); err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("%w: %s", models.ErrInvalidResponse, resp.Error)
	}
	if !resp.Done {
		return "", fmt.Errorf("%w: ollama reply not marked done", models.ErrInvalidResponse)
	}
	return resp.Message.Content, nil
}

var _ models.CompletionProvider = (*Provider)(nil)
