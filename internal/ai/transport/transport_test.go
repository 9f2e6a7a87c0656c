package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/phrasetracker/internal/ai/transport"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Value string `json:"value"`
}

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var in echo
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(echo{Value: in.Value + "!"})
	}))
	defer srv.Close()

	c := transport.New(time.Second, http.Header{"Authorization": {"Bearer secret"}})
	var out echo
	err := c.PostJSON(context.Background(), srv.URL, echo{Value: "hi"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "hi!", out.Value)
}

func TestPostJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := transport.New(time.Second, nil).PostJSON(context.Background(), srv.URL, echo{}, &echo{})

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	var rl *models.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestPostJSON_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := transport.New(time.Second, nil).PostJSON(context.Background(), srv.URL, echo{}, &echo{})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "model loading")
}

func TestPostJSON_ClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := transport.New(time.Second, nil).PostJSON(context.Background(), srv.URL, echo{}, &echo{})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestPostJSON_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	err := transport.New(time.Second, nil).PostJSON(context.Background(), srv.URL, echo{}, &echo{})
	assert.ErrorIs(t, err, models.ErrInvalidResponse)
}

func TestPostJSON_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := transport.New(0, nil).PostJSON(ctx, srv.URL, echo{}, &echo{})
	assert.ErrorIs(t, err, models.ErrInferenceTimeout)
}

func TestPostJSON_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := transport.New(time.Second, nil).PostJSON(context.Background(), url, echo{}, &echo{})
	assert.ErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestClassifyError_CanceledPassesThrough(t *testing.T) {
	err := transport.ClassifyError(context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrInferenceTimeout)
	assert.NotErrorIs(t, err, models.ErrProviderUnavailable)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 3*time.Second, transport.ParseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter("-4", now))
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter("soon", now))

	date := now.Add(90 * time.Second).Format(http.TimeFormat)
	assert.Equal(t, 90*time.Second, transport.ParseRetryAfter(date, now))

	past := now.Add(-time.Minute).Format(http.TimeFormat)
	assert.Equal(t, time.Duration(0), transport.ParseRetryAfter(past, now))
}
