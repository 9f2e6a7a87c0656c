package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/ai/ollama"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, "json", body["format"])
		opts := body["options"].(map[string]any)
		assert.InDelta(t, 0.1, opts["temperature"], 0.0001)

		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"{\"classifications\":[]}"},"done":true}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, time.Second)
	out, err := p.Complete(context.Background(), models.CompletionRequest{
		System: "s", User: "u", Temperature: 0.1, JSONMode: true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"classifications":[]}`, out)
	assert.Equal(t, "ollama", p.Name())
}

func TestProvider_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "missing"}, time.Second)
	_, err := p.Complete(context.Background(), models.CompletionRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
	assert.Contains(t, err.Error(), "model not found")
}

func TestProvider_NotDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":{"content":"{\"class"},"done":false}`))
	}))
	defer srv.Close()

	p := ollama.NewProvider(config.OllamaConfig{BaseURL: srv.URL, Model: "llama3"}, time.Second)
	_, err := p.Complete(context.Background(), models.CompletionRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestProvider_Unreachable(t *testing.T) {
	p := ollama.NewProvider(config.OllamaConfig{BaseURL: "http://127.0.0.1:1", Model: "llama3"}, time.Second)
	_, err := p.Complete(context.Background(), models.CompletionRequest{})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}
