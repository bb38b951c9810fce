package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock replays scripted replies in order, then repeats the last one. A reply
// with a non-nil Err is returned as an error.
type Mock struct {
	mu      sync.Mutex
	replies []MockReply
	prompts []Prompt
}

type MockReply struct {
	Text string
	Err  error
}

func NewMock(replies ...MockReply) *Mock {
	return &Mock{replies: replies}
}

// NewFixedMock always answers text. Used when no provider is configured.
func NewFixedMock(text string) *Mock {
	return NewMock(MockReply{Text: text})
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, p)
	if len(m.replies) == 0 {
		return "", fmt.Errorf("mock provider has no scripted replies")
	}
	idx := len(m.prompts) - 1
	if idx >= len(m.replies) {
		idx = len(m.replies) - 1
	}
	r := m.replies[idx]
	return r.Text, r.Err
}

// Prompts returns every prompt received so far.
func (m *Mock) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}
