package voice

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/audio"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/reliability"
)

var testVoices = Voices{Primary: "v-primary", Secondary: "v-secondary", Tertiary: "v-tertiary"}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func newTestGenerator(p SpeechProvider, q Quality) (*Generator, *sleepRecorder, *sleepRecorder) {
	cascadeSleeps := &sleepRecorder{}
	retrySleeps := &sleepRecorder{}
	g := NewGenerator(p, testVoices, q, zerolog.Nop(), observability.NopMetrics(),
		WithPolicy(reliability.Policy{MaxAttempts: 3, BaseDelay: time.Second, Exponential: true, Sleep: retrySleeps.Sleep}),
		WithStrategyDelay(DefaultStrategyDelay, cascadeSleeps.Sleep),
	)
	return g, cascadeSleeps, retrySleeps
}

func voiceMissing() error {
	return &ProviderError{Provider: "mock", StatusCode: http.StatusNotFound, Code: "voice_not_found"}
}

func TestStrategiesOrder(t *testing.T) {
	got := Strategies(testVoices, QualityHigh)
	want := []string{"primary/high", "secondary/high", "tertiary/high", "primary/standard", "primary/compressed"}
	if len(got) != len(want) {
		t.Fatalf("strategies = %v", got)
	}
	for i := range want {
		if got[i].String() != want[i] {
			t.Fatalf("strategy %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStrategiesDropDuplicatesAndMissingVoices(t *testing.T) {
	got := Strategies(Voices{Primary: "p"}, QualityStandard)
	if len(got) != 2 || got[0].String() != "primary/standard" || got[1].String() != "primary/compressed" {
		t.Fatalf("strategies = %v", got)
	}
}

func TestVoiceUnavailableAdvancesWithoutRetry(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext(testVoices.Primary, voiceMissing())
	g, cascade, retries := newTestGenerator(mock, QualityHigh)

	res, err := g.Synthesize(context.Background(), "Stay the course.")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	calls := mock.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[1].VoiceID != testVoices.Secondary || calls[1].Encoding != calls[0].Encoding {
		t.Fatalf("second call = %+v, want secondary voice at %s", calls[1], calls[0].Encoding)
	}
	if res.Strategy.Role != "secondary" || res.Format.BitrateKbps != 192 {
		t.Fatalf("result strategy=%s format=%+v", res.Strategy, res.Format)
	}
	if len(retries.delays) != 0 {
		t.Fatalf("voice-identity error was retried in place: %v", retries.delays)
	}
	if len(cascade.delays) != 1 || cascade.delays[0] != 500*time.Millisecond {
		t.Fatalf("cascade delays = %v, want one 500ms pause", cascade.delays)
	}
}

func TestTransientErrorRetriedInPlace(t *testing.T) {
	mock := NewMockProvider()
	busy := &ProviderError{Provider: "mock", StatusCode: http.StatusTooManyRequests}
	mock.FailNext(testVoices.Primary, busy, busy)
	g, cascade, retries := newTestGenerator(mock, QualityHigh)

	res, err := g.Synthesize(context.Background(), "Stay the course.")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	for _, c := range mock.Calls() {
		if c.VoiceID != testVoices.Primary {
			t.Fatalf("call went to %s before primary recovered", c.VoiceID)
		}
	}
	if len(mock.Calls()) != 3 || res.Strategy.Role != "primary" {
		t.Fatalf("calls = %d strategy = %s", len(mock.Calls()), res.Strategy)
	}
	if len(retries.delays) != 2 || len(cascade.delays) != 0 {
		t.Fatalf("retry delays = %v cascade delays = %v", retries.delays, cascade.delays)
	}
}

func TestQualityFallbackAfterVoices(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext(testVoices.Primary, voiceMissing())
	mock.FailAlways(testVoices.Secondary, voiceMissing())
	mock.FailAlways(testVoices.Tertiary, voiceMissing())
	g, _, _ := newTestGenerator(mock, QualityHigh)

	res, err := g.Synthesize(context.Background(), "Stay the course.")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if res.Strategy.String() != "primary/standard" {
		t.Fatalf("strategy = %s, want primary/standard", res.Strategy)
	}
	if res.Format != (audio.Format{Encoding: "mp3_44100_128", Container: audio.ContainerMP3, SampleRate: 44100, BitrateKbps: 128}) {
		t.Fatalf("format = %+v", res.Format)
	}
}

func TestAllStrategiesFail(t *testing.T) {
	mock := NewMockProvider()
	for _, v := range []string{testVoices.Primary, testVoices.Secondary, testVoices.Tertiary} {
		mock.FailAlways(v, voiceMissing())
	}
	g, cascade, _ := newTestGenerator(mock, QualityHigh)

	_, err := g.Synthesize(context.Background(), "Stay the course.")
	var ce *CascadeError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want CascadeError", err)
	}
	if ce.Tried != 5 || !IsVoiceUnavailable(err) {
		t.Fatalf("cascade error = %+v", ce)
	}
	if !strings.Contains(err.Error(), "voice_not_found") {
		t.Fatalf("error %q does not name the last cause", err)
	}
	if len(mock.Calls()) != 5 || len(cascade.delays) != 4 {
		t.Fatalf("calls = %d delays = %d", len(mock.Calls()), len(cascade.delays))
	}
}

func TestPreconditionsRejectBeforeCalling(t *testing.T) {
	mock := NewMockProvider()
	g, _, _ := newTestGenerator(mock, QualityHigh)

	if _, err := g.Synthesize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("empty text error = %v", err)
	}
	if _, err := g.Synthesize(context.Background(), strings.Repeat("a", 501)); !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("long text error = %v", err)
	}
	// Collapsing the doubled spaces would bring this under the limit.
	if _, err := g.Synthesize(context.Background(), strings.Repeat("word  ", 84)); !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("long spaced text error = %v, want ErrTextTooLong", err)
	}
	if _, err := g.Synthesize(context.Background(), "\u2728\u2728"); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("symbol-only text error = %v, want ErrEmptyText", err)
	}
	if _, err := g.Synthesize(context.Background(), strings.Repeat("a", 500)); err != nil {
		t.Fatalf("500 chars rejected: %v", err)
	}
	if len(mock.Calls()) != 1 {
		t.Fatalf("calls = %d, want 1", len(mock.Calls()))
	}
}

func TestCanceledContextStopsCascade(t *testing.T) {
	mock := NewMockProvider()
	mock.FailAlways(testVoices.Primary, voiceMissing())
	ctx, cancel := context.WithCancel(context.Background())
	g := NewGenerator(mock, testVoices, QualityHigh, zerolog.Nop(), observability.NopMetrics(),
		WithStrategyDelay(time.Hour, func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)
	if _, err := g.Synthesize(ctx, "Stay the course."); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(mock.Calls()) != 1 {
		t.Fatalf("calls = %d, want 1", len(mock.Calls()))
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		unavailable bool
		transient   bool
	}{
		{"404", &ProviderError{StatusCode: 404}, true, false},
		{"voice code", &ProviderError{Code: "voice_not_found"}, true, false},
		{"rate limited", &ProviderError{StatusCode: 429}, false, true},
		{"server", &ProviderError{StatusCode: 503}, false, true},
		{"busy code", &ProviderError{Code: "system_busy"}, false, true},
		{"auth", &ProviderError{StatusCode: 401}, false, false},
		{"plain", errors.New("x"), false, false},
	}
	for _, tc := range cases {
		if IsVoiceUnavailable(tc.err) != tc.unavailable || IsTransient(tc.err) != tc.transient {
			t.Fatalf("%s: unavailable=%v transient=%v", tc.name, IsVoiceUnavailable(tc.err), IsTransient(tc.err))
		}
	}
}
