// Package analysis holds the summarization provider clients. The
// orchestration around them (preconditions, retries, persistence) lives in
// the services package.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Summarizer turns a prompt into an HTML summary.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// ErrTimeout marks a summarization call aborted by its deadline. It is not
// retried: the caller is told to try with fewer responses.
var ErrTimeout = errors.New("summarization request timed out")

// RateLimitError is a provider 429. RetryAfter carries the provider's
// suggested wait when present.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("summarization provider rate limited, retry after %s", e.RetryAfter)
	}
	return "summarization provider rate limited"
}

// RetryDelay implements the retry package's delay hint.
func (e *RateLimitError) RetryDelay() time.Duration { return e.RetryAfter }

// UpstreamError is a terminal provider failure with the HTTP status when
// one was received.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("summarization provider returned status %d: %s", e.Status, e.Message)
}
