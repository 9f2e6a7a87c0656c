// Package transport holds the HTTP plumbing shared by the JSON-over-HTTP
// model providers: request encoding, response decoding and error classification.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// maxErrorBody caps how much of a failed response body ends up in an error message.
const maxErrorBody = 512

// Client posts JSON to a model endpoint and decodes the JSON reply.
type Client struct {
	http    *http.Client
	headers http.Header
}

// New creates a Client. A zero timeout leaves the deadline to the request context.
func New(timeout time.Duration, headers http.Header) *Client {
	if headers == nil {
		headers = http.Header{}
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		headers: headers,
	}
}

// PostJSON sends body to url and decodes a 2xx reply into out.
// Failures are wrapped with the sentinel errors in pkg/models.
func (c *Client) PostJSON(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vals := range c.headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return ClassifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return ClassifyStatus(resp.StatusCode, resp.Header, snippet)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ClassifyError(ctxErr)
		}
		return fmt.Errorf("%w: decoding response: %v", models.ErrInvalidResponse, err)
	}
	return nil
}

// ClassifyStatus maps a non-2xx HTTP status to a provider error.
func ClassifyStatus(status int, header http.Header, body []byte) error {
	msg := strings.TrimSpace(string(body))
	switch {
	case status == http.StatusTooManyRequests:
		var retryAfter time.Duration
		if header != nil {
			retryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
		}
		return &models.RateLimitError{RetryAfter: retryAfter}
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", models.ErrProviderUnavailable, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", models.ErrInvalidResponse, status, msg)
	}
}

// ClassifyError maps transport-level errors to provider sentinel errors.
// Cancellation is kept distinct from timeouts so shutdown is not retried.
func ClassifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrInferenceTimeout, err)
	}

	return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
}

// ParseRetryAfter reads a Retry-After header given either as delay seconds or
// as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
