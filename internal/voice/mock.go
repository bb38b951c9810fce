package voice

import (
	"context"
	"sync"
)

// MockProvider is the local stand-in used when no speech backend is configured
// and in tests. Failures can be scripted per voice.
type MockProvider struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    []Request
}

func NewMockProvider() *MockProvider {
	return &MockProvider{failures: make(map[string][]error)}
}

// FailNext queues errs to be returned, in order, by the next calls for voiceID.
func (p *MockProvider) FailNext(voiceID string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[voiceID] = append(p.failures[voiceID], errs...)
}

// FailAlways makes every call for voiceID fail with err.
func (p *MockProvider) FailAlways(voiceID string, err error) {
	p.FailNext(voiceID, repeat(err, 1024)...)
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, req)
	if queued := p.failures[req.VoiceID]; len(queued) > 0 {
		p.failures[req.VoiceID] = queued[1:]
		return nil, queued[0]
	}
	// A silent, even-length payload sized after the text keeps PCM framing valid.
	return make([]byte, 64*(len(req.Text)+1)), nil
}

// Calls returns every request received so far.
func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.calls...)
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}
