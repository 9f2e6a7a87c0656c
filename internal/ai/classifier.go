// Package ai classifies transcript chunks with a language-model provider.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kiranshivaraju/phrasetracker/internal/transcript"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
	"golang.org/x/time/rate"
)

// ClassifierOptions tunes outbound calls. Zero values select the defaults.
type ClassifierOptions struct {
	Timeout      time.Duration // per provider call; default 60s
	Temperature  float64       // sent as is; zero is deterministic sampling
	MaxTokens    int
	MaxRetryTime time.Duration // 0 disables retries
	Limiter      *rate.Limiter // nil means unlimited
}

// Classifier turns one chunk of sentences into classified sentences.
type Classifier struct {
	provider     models.CompletionProvider
	opts         ClassifierOptions
	systemPrompt string
}

// NewClassifier creates a Classifier for provider.
func NewClassifier(provider models.CompletionProvider, opts ClassifierOptions) *Classifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Classifier{
		provider:     provider,
		opts:         opts,
		systemPrompt: buildSystemPrompt(),
	}
}

// Provider returns the name of the underlying provider.
func (c *Classifier) Provider() string { return c.provider.Name() }

// ClassifyChunk classifies every sentence of chunk. The result holds at most
// len(chunk.Sentences) records, ordered by sentence index. Offsets come from tl.
func (c *Classifier) ClassifyChunk(ctx context.Context, chunk transcript.Chunk, tl transcript.Timeline) ([]models.ClassifiedSentence, error) {
	if len(chunk.Sentences) == 0 {
		return []models.ClassifiedSentence{}, nil
	}

	raw, err := c.complete(ctx, models.CompletionRequest{
		System:      c.systemPrompt,
		User:        buildUserPrompt(chunk),
		Temperature: c.opts.Temperature,
		JSONMode:    true,
		MaxTokens:   c.opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	rows, err := parseReply(raw)
	if err != nil {
		return nil, err
	}
	return assemble(chunk, tl, rows), nil
}

// complete calls the provider, retrying rate-limited and unavailable errors
// until MaxRetryTime has elapsed.
func (c *Classifier) complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.opts.MaxRetryTime > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxInterval = 10 * time.Second
		exp.MaxElapsedTime = c.opts.MaxRetryTime
		policy = exp
	}
	hinted := &retryAfterBackOff{BackOff: policy, max: c.opts.MaxRetryTime}

	var out string
	attempt := 0
	op := func() error {
		attempt++
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		text, err := c.provider.Complete(callCtx, req)
		if err == nil {
			out = text
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}

		var rl *models.RateLimitError
		if errors.As(err, &rl) {
			hinted.hint = rl.RetryAfter
		}
		slog.Warn("classification call failed, retrying",
			"provider", c.provider.Name(), "attempt", attempt, "error", err)
		return err
	}

	if err := backoff.Retry(op, backoff.WithContext(hinted, ctx)); err != nil {
		return "", fmt.Errorf("classifying chunk with %s: %w", c.provider.Name(), err)
	}
	return out, nil
}

func retryable(err error) bool {
	return errors.Is(err, models.ErrRateLimited) || errors.Is(err, models.ErrProviderUnavailable)
}

// retryAfterBackOff stretches the next wait to a provider's Retry-After hint.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
	max  time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return backoff.Stop
	}
	hint := b.hint
	b.hint = 0
	if hint > b.max {
		hint = b.max
	}
	return max(next, hint)
}

// assemble maps reply rows onto the chunk's sentences.
func assemble(chunk transcript.Chunk, tl transcript.Timeline, rows []classificationRow) []models.ClassifiedSentence {
	seen := make(map[int]bool, len(rows))
	out := make([]models.ClassifiedSentence, 0, min(len(rows), len(chunk.Sentences)))

	for i, row := range rows {
		idx := chunk.Start + i
		if row.SentenceIndex != nil {
			idx = *row.SentenceIndex
		}
		if idx < chunk.Start || idx >= chunk.End() {
			idx = matchText(chunk, row.Text, seen)
			if idx < 0 {
				continue
			}
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true

		start, end := tl.Span(idx)
		out = append(out, models.ClassifiedSentence{
			Index:      idx,
			Text:       chunk.Sentences[idx-chunk.Start],
			Tracker:    models.ParseTracker(row.Tracker),
			Confidence: clampConfidence(row.Confidence),
			Start:      start,
			End:        end,
			Timestamp:  transcript.FormatTimestamp(start),
		})
	}

	slices.SortFunc(out, func(a, b models.ClassifiedSentence) int { return a.Index - b.Index })
	return out
}

// matchText finds an unclaimed sentence of chunk equal to text, or returns -1.
func matchText(chunk transcript.Chunk, text string, seen map[int]bool) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return -1
	}
	for i, s := range chunk.Sentences {
		idx := chunk.Start + i
		if s == text && !seen[idx] {
			return idx
		}
	}
	return -1
}
