package tool

import (
	"context"
	"sync"
)

// MockTool is a scripted Tool for tests.
//
// Each call returns the next entry of Responses and the last one repeats.
// Handler, when set, takes precedence over Responses. Err fails every call.
//
//	search := &tool.MockTool{
//	    ToolName:  "paper_search",
//	    Responses: []map[string]any{{"results": []any{}}},
//	}
type MockTool struct {
	ToolName  string
	Responses []map[string]any
	Handler   func(input map[string]any) (map[string]any, error)
	Err       error

	mu    sync.Mutex
	calls []map[string]any
	next  int
}

func (m *MockTool) Name() string { return m.ToolName }

// Call implements Tool. Every call is recorded, including failed ones.
func (m *MockTool) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, input)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Handler != nil {
		return m.Handler(input)
	}
	if len(m.Responses) == 0 {
		return map[string]any{}, nil
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

// Calls returns the inputs of every call so far.
func (m *MockTool) Calls() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.calls...)
}

// CallCount returns the number of calls so far.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and rewinds Responses.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
