// Package quote generates the daily text with a text-generation provider and
// validates it before it is persisted.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/llm"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/reliability"
)

const DefaultMaxTokens = 120

// Quote is a validated generated text.
type Quote struct {
	Content  string
	Category content.Category
}

type Generator struct {
	provider  llm.Provider
	logger    zerolog.Logger
	metrics   *observability.Metrics
	policy    reliability.Policy
	maxTokens int
}

type Option func(*Generator)

// WithPolicy overrides the retry policy. Retryable and OnRetry are always set by the generator.
func WithPolicy(p reliability.Policy) Option {
	return func(g *Generator) { g.policy = p }
}

func WithMaxTokens(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

func NewGenerator(provider llm.Provider, logger zerolog.Logger, metrics *observability.Metrics, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		policy: reliability.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    10 * time.Second,
			Exponential: true,
		},
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.policy.Name = "generate_text"
	g.policy.Retryable = retryable
	g.policy.OnRetry = func(a reliability.Attempt) {
		g.metrics.ObserveRetry(g.policy.Name)
		g.logger.Warn().Err(a.Err).
			Int("attempt", a.Number).
			Int64("delay_ms", a.Delay.Milliseconds()).
			Msg("quote attempt failed, retrying")
	}
	return g
}

// retryable accepts transient provider failures and quality gate rejections.
func retryable(err error) bool {
	var qe *QualityError
	if errors.As(err, &qe) || errors.Is(err, llm.ErrEmptyResponse) {
		return true
	}
	return llm.IsTransient(err)
}

// Generate writes a quote for category. After the last failed attempt it
// returns *reliability.ExhaustedError; non-retryable errors are returned at once.
func (g *Generator) Generate(ctx context.Context, category content.Category) (Quote, error) {
	prompt, ok := PromptFor(category)
	if !ok {
		return Quote{}, fmt.Errorf("no prompt for category %q", category)
	}
	p := llm.Prompt{System: systemInstruction, User: prompt, MaxTokens: g.maxTokens}

	text, err := reliability.Do(ctx, g.policy, func(ctx context.Context, attempt int) (string, error) {
		raw, err := g.provider.Complete(ctx, p)
		if err != nil {
			var se *llm.StatusError
			if errors.As(err, &se) {
				g.metrics.ObserveProviderError(se.Provider, fmt.Sprint(se.StatusCode))
			}
			return "", err
		}
		text := Sanitize(raw)
		if err := Validate(text); err != nil {
			return "", err
		}
		return text, nil
	})
	if err != nil {
		return Quote{}, err
	}
	g.logger.Debug().Str("category", string(category)).Int("length", len(text)).Msg("quote generated")
	return Quote{Content: text, Category: category}, nil
}
