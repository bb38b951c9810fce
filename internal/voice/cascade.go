package voice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/audio"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/reliability"
)

const (
	MaxTextLength        = 500
	DefaultStrategyDelay = 500 * time.Millisecond
)

var (
	ErrEmptyText   = errors.New("voice text is empty")
	ErrTextTooLong = fmt.Errorf("voice text exceeds %d characters", MaxTextLength)
)

// Quality is an output tier mapped to a provider encoding.
type Quality string

const (
	QualityHigh       Quality = "high"
	QualityStandard   Quality = "standard"
	QualityCompressed Quality = "compressed"
)

var qualityEncodings = map[Quality]string{
	QualityHigh:       "mp3_44100_192",
	QualityStandard:   "mp3_44100_128",
	QualityCompressed: "mp3_22050_32",
}

// Encoding returns the provider encoding identifier of q, defaulting to standard.
func (q Quality) Encoding() string {
	if enc, ok := qualityEncodings[q]; ok {
		return enc
	}
	return qualityEncodings[QualityStandard]
}

func ParseQuality(raw string) (Quality, error) {
	q := Quality(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := qualityEncodings[q]; !ok {
		return "", fmt.Errorf("unknown voice quality %q", raw)
	}
	return q, nil
}

// Voices are the configured voice identities in fallback order.
type Voices struct {
	Primary   string
	Secondary string
	Tertiary  string
}

// Strategy is one step of the cascade.
type Strategy struct {
	Role    string
	VoiceID string
	Quality Quality
}

func (s Strategy) String() string {
	return s.Role + "/" + string(s.Quality)
}

// Strategies expands the fixed cascade: every voice at the requested quality,
// then the primary voice at standard and compressed quality. Unconfigured
// voices and repeated steps are dropped.
func Strategies(v Voices, requested Quality) []Strategy {
	candidates := []Strategy{
		{Role: "primary", VoiceID: v.Primary, Quality: requested},
		{Role: "secondary", VoiceID: v.Secondary, Quality: requested},
		{Role: "tertiary", VoiceID: v.Tertiary, Quality: requested},
		{Role: "primary", VoiceID: v.Primary, Quality: QualityStandard},
		{Role: "primary", VoiceID: v.Primary, Quality: QualityCompressed},
	}
	seen := make(map[Strategy]bool, len(candidates))
	out := make([]Strategy, 0, len(candidates))
	for _, s := range candidates {
		if strings.TrimSpace(s.VoiceID) == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Result is synthesized audio plus the strategy that produced it.
type Result struct {
	Audio    []byte
	Format   audio.Format
	Strategy Strategy
}

// CascadeError is returned when every strategy failed.
type CascadeError struct {
	Tried int
	Last  error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("all %d voice strategies failed: %v", e.Tried, e.Last)
}

func (e *CascadeError) Unwrap() error { return e.Last }

type Generator struct {
	provider SpeechProvider
	voices   Voices
	quality  Quality
	logger   zerolog.Logger
	metrics  *observability.Metrics
	policy   reliability.Policy
	delay    time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

type Option func(*Generator)

// WithPolicy overrides the per-strategy retry policy. Retryable is always set by the generator.
func WithPolicy(p reliability.Policy) Option {
	return func(g *Generator) { g.policy = p }
}

// WithStrategyDelay sets the pause between strategies and the function used to wait.
func WithStrategyDelay(d time.Duration, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) {
		g.delay = d
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

func NewGenerator(provider SpeechProvider, voices Voices, quality Quality, logger zerolog.Logger, metrics *observability.Metrics, opts ...Option) *Generator {
	if _, ok := qualityEncodings[quality]; !ok {
		quality = QualityHigh
	}
	g := &Generator{
		provider: provider,
		voices:   voices,
		quality:  quality,
		logger:   logger,
		metrics:  metrics,
		policy: reliability.Policy{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    8 * time.Second,
			Exponential: true,
		},
		delay: DefaultStrategyDelay,
		sleep: reliability.SleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.policy.Retryable = IsTransient
	return g
}

// Synthesize runs the cascade for text. Voice-identity errors move straight to
// the next strategy; transient errors are retried in place first.
func (g *Generator) Synthesize(ctx context.Context, text string) (Result, error) {
	raw := strings.TrimSpace(text)
	switch {
	case raw == "":
		return Result{}, ErrEmptyText
	case utf8.RuneCountInString(raw) > MaxTextLength:
		return Result{}, ErrTextTooLong
	}
	if text = speechText(raw); text == "" {
		return Result{}, ErrEmptyText
	}

	strategies := Strategies(g.voices, g.quality)
	if len(strategies) == 0 {
		return Result{}, &CascadeError{Last: errors.New("no voice configured")}
	}

	var last error
	for i, s := range strategies {
		if i > 0 {
			if err := g.sleep(ctx, g.delay); err != nil {
				return Result{}, fmt.Errorf("voice cascade interrupted before %s: %w", s, err)
			}
		}
		res, err := g.try(ctx, text, s)
		if err == nil {
			g.metrics.ObserveVoiceAttempt(s.Role, string(s.Quality), "success")
			if i > 0 {
				g.logger.Info().Str("strategy", s.String()).Int("attempt", i+1).Msg("voice fallback succeeded")
			}
			return res, nil
		}
		last = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, fmt.Errorf("voice cascade: %w", err)
		}
		result := "error"
		if IsVoiceUnavailable(err) {
			result = "voice_unavailable"
		}
		g.metrics.ObserveVoiceAttempt(s.Role, string(s.Quality), result)
		g.logger.Warn().Err(err).
			Str("strategy", s.String()).
			Int("attempt", i+1).
			Msg("voice strategy failed")
	}
	return Result{}, &CascadeError{Tried: len(strategies), Last: last}
}

func (g *Generator) try(ctx context.Context, text string, s Strategy) (Result, error) {
	encoding := s.Quality.Encoding()
	format, err := audio.ParseEncoding(encoding)
	if err != nil {
		return Result{}, err
	}
	p := g.policy
	p.Name = "synthesize_voice:" + s.String()
	p.OnRetry = func(a reliability.Attempt) {
		g.metrics.ObserveRetry("synthesize_voice")
		g.logger.Debug().Err(a.Err).
			Str("strategy", s.String()).
			Int("attempt", a.Number).
			Int64("delay_ms", a.Delay.Milliseconds()).
			Msg("retrying voice strategy")
	}
	data, err := reliability.Do(ctx, p, func(ctx context.Context, _ int) ([]byte, error) {
		b, err := g.provider.Synthesize(ctx, Request{Text: text, VoiceID: s.VoiceID, Encoding: encoding})
		if err != nil {
			var pe *ProviderError
			if errors.As(err, &pe) {
				g.metrics.ObserveProviderError(pe.Provider, providerErrorLabel(pe))
			}
			return nil, err
		}
		if len(b) == 0 {
			return nil, &ProviderError{Provider: g.provider.Name(), Code: "empty_audio", Message: "provider returned no audio"}
		}
		return b, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Audio: data, Format: format, Strategy: s}, nil
}

func providerErrorLabel(pe *ProviderError) string {
	if pe.Code != "" {
		return pe.Code
	}
	return fmt.Sprint(pe.StatusCode)
}
