package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/observability"
)

// Checker is satisfied by *Limiter.
type Checker interface {
	Check(ctx context.Context, clientID string, class Class, limit Limit) (Decision, error)
}

// Guard wraps handlers with a Checker. Any limiter failure lets the request through.
type Guard struct {
	checker Checker
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func NewGuard(checker Checker, logger zerolog.Logger, metrics *observability.Metrics) *Guard {
	return &Guard{checker: checker, logger: logger, metrics: metrics}
}

type rejection struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware enforces limit for class on the wrapped handler.
func (g *Guard) Middleware(class Class, limit Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ClientID(r)
			d, err := g.check(r.Context(), clientID, class, limit)
			if err != nil {
				g.logger.Warn().Err(err).
					Str("client_id", clientID).
					Str("endpoint_class", string(class)).
					Msg("rate limiter failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			g.metrics.ObserveRateLimit(string(class), d.Allowed)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetTime.Unix(), 10))
			if d.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := d.RetryAfterSeconds()
			g.logger.Info().
				Str("client_id", clientID).
				Str("endpoint_class", string(class)).
				Int("retry_after_s", retryAfter).
				Msg("rate limit exceeded")
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rejection{
				Success:    false,
				Message:    fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
				RetryAfter: retryAfter,
			})
		})
	}
}

// check converts a panicking checker into an error so the caller can fail open.
func (g *Guard) check(ctx context.Context, clientID string, class Class, limit Limit) (d Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rate limiter panic: %v", rec)
		}
	}()
	if g.checker == nil {
		return Decision{}, fmt.Errorf("rate limiter not configured")
	}
	return g.checker.Check(ctx, clientID, class, limit)
}
