// Package openai adapts the OpenAI Chat Completions API to model.ChatModel.
//
// Any OpenAI-compatible endpoint, such as OpenRouter, works by passing its
// base URL to NewChatModel.
package openai

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/loopgraph/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel with the official SDK client.
// It is safe for concurrent use.
//
// Example:
//
//	m := openai.NewChatModel(os.Getenv("OPENROUTER_API_KEY"), "openai/gpt-4o-mini",
//	    "https://openrouter.ai/api/v1")
type ChatModel struct {
	completions completionsAPI
	modelName   string
	temperature *float64
}

// completionsAPI is the part of the SDK the adapter calls.
type completionsAPI interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// NewChatModel returns a ChatModel for modelName. baseURL may be empty to
// use the OpenAI endpoint. The SDK retries transient failures twice.
func NewChatModel(apiKey, modelName, baseURL string) *ChatModel {
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(2)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return newChatModel(&client.Chat.Completions, modelName)
}

func newChatModel(api completionsAPI, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{completions: api, modelName: modelName}
}

// WithTemperature sets the sampling temperature and returns m.
func (m *ChatModel) WithTemperature(t float64) *ChatModel {
	m.temperature = &t
	return m
}

// Model returns the configured model name.
func (m *ChatModel) Model() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.modelName),
		Messages: convertMessages(messages),
	}
	if m.temperature != nil {
		params.Temperature = openai.Float(*m.temperature)
	}
	if len(tools) > 0 {
		params.Tools = convertTools(tools)
	}

	completion, err := m.completions.New(ctx, params)
	if err != nil {
		status := 0
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return model.ChatOut{}, model.Classify("openai", status, err)
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, model.Classify("openai", 0, errors.New("no choices in response"))
	}
	return convertResponse(completion), nil
}

func convertMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func convertTools(tools []model.ToolSpec) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.Schema),
		}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func convertResponse(c *openai.ChatCompletion) model.ChatOut {
	msg := c.Choices[0].Message
	out := model.ChatOut{
		Text: msg.Content,
		Usage: model.Usage{
			InputTokens:  int(c.Usage.PromptTokens),
			OutputTokens: int(c.Usage.CompletionTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		call := model.ToolCall{ID: tc.ID, Name: tc.Function.Name}
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &call.Input)
		}
		out.ToolCalls = append(out.ToolCalls, call)
	}
	return out
}
