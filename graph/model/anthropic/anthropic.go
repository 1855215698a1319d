// Package anthropic adapts Anthropic's Messages API to model.ChatModel.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/loopgraph/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "claude-3-5-sonnet-20241022"

// DefaultMaxTokens bounds each reply unless WithMaxTokens says otherwise.
const DefaultMaxTokens = 4096

// ChatModel implements model.ChatModel with the official SDK client.
// It is safe for concurrent use.
//
// Example:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "")
//	text, err := model.Ask(ctx, m, "You are a strict reviewer.", draft)
type ChatModel struct {
	messages  messagesAPI
	modelName string
	maxTokens int64
}

// messagesAPI is the part of the SDK the adapter calls.
type messagesAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Option configures a ChatModel.
type Option func(*ChatModel)

// WithMaxTokens sets the reply token limit.
func WithMaxTokens(n int64) Option {
	return func(m *ChatModel) {
		if n > 0 {
			m.maxTokens = n
		}
	}
}

// NewChatModel returns a ChatModel for modelName authenticated with apiKey.
// Extra SDK request options, such as option.WithBaseURL, may be appended.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	return NewChatModelWithRequestOptions(modelName, opts, option.WithAPIKey(apiKey))
}

// NewChatModelWithRequestOptions builds a ChatModel from raw SDK request options.
func NewChatModelWithRequestOptions(modelName string, opts []Option, reqOpts ...option.RequestOption) *ChatModel {
	client := anthropic.NewClient(reqOpts...)
	return newChatModel(&client.Messages, modelName, opts...)
}

func newChatModel(api messagesAPI, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	m := &ChatModel{messages: api, modelName: modelName, maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Model returns the configured model name.
func (m *ChatModel) Model() string { return m.modelName }

// Chat implements model.ChatModel. System messages are sent through the
// separate system parameter the Messages API expects.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("anthropic: at least one user or assistant message is required")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
		Messages:  convertMessages(conversation),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	msg, err := m.messages.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return model.ChatOut{}, model.Classify("anthropic", status, err)
	}
	return convertResponse(msg), nil
}

func convertMessages(messages []model.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}

func convertTools(tools []model.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		tool := &anthropic.ToolParam{
			Name: t.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Schema["properties"],
				Required:   requiredFields(t.Schema),
			},
		}
		if t.Description != "" {
			tool.Description = anthropic.String(t.Description)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: tool})
	}
	return out
}

func requiredFields(schema map[string]any) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func convertResponse(msg *anthropic.Message) model.ChatOut {
	var out model.ChatOut
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			call := model.ToolCall{ID: block.ID, Name: block.Name}
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &call.Input)
			}
			out.ToolCalls = append(out.ToolCalls, call)
		}
	}
	out.Usage = model.Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return out
}
