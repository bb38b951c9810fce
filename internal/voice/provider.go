// Package voice synthesizes narration for a record, cascading across voice
// identities and quality tiers until one strategy succeeds.
package voice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ent0n29/dailyquote/internal/reliability"
)

// Request is a single synthesis call against one voice at one encoding.
type Request struct {
	Text     string
	VoiceID  string
	Encoding string
}

// SpeechProvider synthesizes text into encoded audio bytes.
type SpeechProvider interface {
	Name() string
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// ProviderError is a failure reported by the speech provider.
type ProviderError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status %d", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

var voiceUnavailableCodes = map[string]bool{
	"voice_not_found":      true,
	"voice_unavailable":    true,
	"voice_not_fine_tuned": true,
	"invalid_voice_id":     true,
	"voice_does_not_exist": true,
}

var transientCodes = map[string]bool{
	"rate_limited":        true,
	"too_many_requests":   true,
	"system_busy":         true,
	"server_error":        true,
	"internal_error":      true,
	"service_unavailable": true,
	"timeout":             true,
}

// IsVoiceUnavailable reports whether err says the requested voice identity does
// not exist or cannot be used. Such errors are never retried against the same voice.
func IsVoiceUnavailable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if pe.StatusCode == http.StatusNotFound {
		return true
	}
	return voiceUnavailableCodes[strings.ToLower(pe.Code)]
}

// IsTransient reports rate limiting, server-side and network failures.
func IsTransient(err error) bool {
	if IsVoiceUnavailable(err) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if reliability.IsRetryableHTTPStatus(pe.StatusCode) {
			return true
		}
		return transientCodes[strings.ToLower(pe.Code)]
	}
	return reliability.IsRetryableNetworkError(err)
}
