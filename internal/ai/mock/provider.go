package mock

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"sync/atomic"

	"github.com/kiranshivaraju/phrasetracker/internal/ai"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// MockProvider satisfies models.CompletionProvider for testing.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (string, error)

	calls atomic.Int64
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	m.calls.Add(1)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "", nil
}

// Calls returns how many times Complete has been invoked.
func (m *MockProvider) Calls() int { return int(m.calls.Load()) }

var reIndexedLine = regexp.MustCompile(`(?m)^\[(\d+)\] (.+)$`)

// Reply builds a well-formed classification reply that labels every indexed
// sentence in prompt with tracker.
func Reply(prompt string, tracker models.Tracker) string {
	type row struct {
		SentenceIndex int     `json:"sentenceIndex"`
		Text          string  `json:"text"`
		Tracker       string  `json:"tracker"`
		Confidence    float64 `json:"confidence"`
	}
	rows := []row{}
	for _, m := range reIndexedLine.FindAllStringSubmatch(prompt, -1) {
		idx, _ := strconv.Atoi(m[1])
		rows = append(rows, row{SentenceIndex: idx, Text: m[2], Tracker: string(tracker), Confidence: 0.9})
	}
	b, _ := json.Marshal(map[string]any{"classifications": rows})
	return string(b)
}

// NewMockProvider returns a MockProvider that labels every sentence as discovery.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, req models.CompletionRequest) (string, error) {
			return Reply(req.User, models.TrackerDiscovery), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return "", err
		},
	}
}

// NewInvalidJSONProvider returns a MockProvider whose replies are not JSON.
func NewInvalidJSONProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-invalid",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (string, error) {
			return "Sure! Here are the classifications you asked for.", nil
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (string, error) {
			<-ctx.Done()
			return "", ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements CompletionProvider.
var _ models.CompletionProvider = (*MockProvider)(nil)
