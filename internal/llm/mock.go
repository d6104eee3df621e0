package llm

import (
	"context"
	"sync"
)

// Mock is a scripted, concurrency-safe Client for tests.
type Mock struct {
	mu      sync.Mutex
	handler func(prompt string) (string, error)
	prompts []string
}

// NewMock answers each call with handler.
func NewMock(handler func(prompt string) (string, error)) *Mock {
	return &Mock{handler: handler}
}

// StaticMock answers every call with text.
func StaticMock(text string) *Mock {
	return NewMock(func(string) (string, error) { return text, nil })
}

// FailingMock fails every call with err.
func FailingMock(err error) *Mock {
	return NewMock(func(string) (string, error) { return "", err })
}

// SequenceMock answers calls with responses in order and repeats the last
// one once exhausted. Only meaningful for sequential callers.
func SequenceMock(responses ...string) *Mock {
	var (
		mu sync.Mutex
		i  int
	)
	return NewMock(func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(responses) == 0 {
			return "", nil
		}
		r := responses[min(i, len(responses)-1)]
		i++
		return r, nil
	})
}

// Complete records prompt and delegates to the handler.
func (m *Mock) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.handler(prompt)
}

// Calls returns the number of calls made.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (m *Mock) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
