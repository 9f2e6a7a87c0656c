package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/kiranshivaraju/phrasetracker/internal/ai/transport"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

const defaultMaxTokens = 4096

// Provider implements models.CompletionProvider using the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// NewProvider creates an Anthropic provider. Extra request options (for example a
// base URL in tests) are appended after the defaults.
func NewProvider(cfg config.AnthropicConfig, timeout time.Duration, opts ...option.RequestOption) *Provider {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// retries are driven by the classifier's backoff
		option.WithMaxRetries(0),
	}
	if timeout > 0 {
		base = append(base, option.WithRequestTimeout(timeout))
	}
	return &Provider{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	system := req.System
	if req.JSONMode {
		system += "\n\nRespond with a single JSON object only. Do not wrap it in markdown."
	}

	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(req.Temperature),
	})
	if err != nil {
		return "", classifyError(err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content in anthropic response", models.ErrInvalidResponse)
}

// classifyError maps SDK errors onto the provider sentinels.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var header http.Header
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		return fmt.Errorf("anthropic messages: %w", transport.ClassifyStatus(apiErr.StatusCode, header, []byte(apiErr.Error())))
	}
	return fmt.Errorf("anthropic messages: %w", transport.ClassifyError(err))
}

var _ models.CompletionProvider = (*Provider)(nil)
