// Package llm holds the text-generation providers used to write the daily quote.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ent0n29/dailyquote/internal/reliability"
)

const defaultTimeout = 30 * time.Second

// Prompt is one completion request.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
}

// Provider turns a prompt into text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// StatusError is a non-2xx reply from a provider API.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ErrEmptyResponse is returned when a provider answers 2xx without any text.
var ErrEmptyResponse = errors.New("empty completion")

// IsTransient reports whether err is worth retrying: rate limiting, server
// errors and network failures.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return reliability.IsRetryableHTTPStatus(se.StatusCode)
	}
	return reliability.IsRetryableNetworkError(err)
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}
