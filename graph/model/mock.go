package model

import (
	"context"
	"sync"
)

// MockChatModel is a scripted ChatModel for tests.
//
// When Handler is set it answers every call. Otherwise Responses are
// returned in order and the last one repeats once the script runs out.
// Err, when set, fails every call. All calls are recorded.
//
// Example:
//
//	mock := &model.MockChatModel{Responses: []model.ChatOut{
//	    {Text: `{"score": 5}`},
//	    {Text: `{"score": 8}`},
//	}}
type MockChatModel struct {
	Responses []ChatOut
	Handler   func(messages []Message) (ChatOut, error)
	Err       error

	mu    sync.Mutex
	calls []MockChatCall
	next  int
}

// MockChatCall records one call to Chat.
type MockChatCall struct {
	Messages []Message
	Tools    []ToolSpec
}

// Chat implements ChatModel.
func (m *MockChatModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return ChatOut{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockChatCall{
		Messages: append([]Message(nil), messages...),
		Tools:    append([]ToolSpec(nil), tools...),
	})

	if m.Err != nil {
		return ChatOut{}, m.Err
	}
	if m.Handler != nil {
		return m.Handler(messages)
	}
	if len(m.Responses) == 0 {
		return ChatOut{}, nil
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

// Calls returns a copy of the recorded calls.
func (m *MockChatModel) Calls() []MockChatCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockChatCall(nil), m.calls...)
}

// CallCount returns the number of calls made.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears the call history and rewinds the script.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
