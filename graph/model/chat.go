// Package model defines the chat-model collaborator used by workflow nodes.
//
// Nodes depend only on the ChatModel interface. Provider adapters live in
// the anthropic, openai and google subpackages; MockChatModel serves tests.
package model

import (
	"context"
	"errors"
	"strings"
)

// ChatModel is a chat-completion provider.
//
// Implementations must respect ctx cancellation and be safe for
// concurrent use, since one model is typically shared by every run.
//
// Example:
//
//	m := openai.NewChatModel(apiKey, "gpt-4o-mini")
//	out, err := m.Chat(ctx, []model.Message{
//	    model.System("You are a research planner."),
//	    model.User("Plan a literature search on retrieval-augmented generation."),
//	}, nil)
type ChatModel interface {
	// Chat sends messages and returns the reply. tools may be nil.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// ChatFunc adapts a function to the ChatModel interface.
type ChatFunc func(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)

// Chat implements ChatModel.
func (f ChatFunc) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	return f(ctx, messages, tools)
}

// Message is one turn of a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// Standard roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// ToolSpec describes a tool the model may call. Schema is a JSON Schema
// object describing the input.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ChatOut is a model reply.
type ChatOut struct {
	// Text is the generated text. Empty when the model only called tools.
	Text string

	// ToolCalls lists tool invocations requested by the model.
	ToolCalls []ToolCall

	// Usage reports token consumption when the provider returns it.
	Usage Usage
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider's call identifier, if any.
	ID string

	Name  string
	Input map[string]any
}

// ErrEmptyResponse is returned by Ask when the model produced no text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Ask sends a system prompt and a single user prompt and returns the
// trimmed reply text. An empty system prompt is omitted.
func Ask(ctx context.Context, m ChatModel, system, prompt string) (string, error) {
	msgs := make([]Message, 0, 2)
	if system != "" {
		msgs = append(msgs, System(system))
	}
	msgs = append(msgs, User(prompt))

	out, err := m.Chat(ctx, msgs, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// SplitSystem separates system messages from the conversation. Multiple
// system messages are joined with a blank line. Providers that take the
// system prompt as a separate parameter use this.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}
