// Package google adapts the Gemini API to model.ChatModel.
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/dshills/loopgraph/graph/model"
)

// DefaultModel is used when NewChatModel is given an empty model name.
const DefaultModel = "gemini-2.5-flash"

// ChatModel implements model.ChatModel for Gemini.
//
// System messages become the model's system instruction; earlier turns
// become chat history and the last message is sent. Responses stopped by
// the safety filters are reported as *SafetyFilterError.
type ChatModel struct {
	modelName string
	client    generator
}

type request struct {
	system  string
	history []*genai.Content
	parts   []genai.Part
	tools   []*genai.Tool
}

// generator performs one Gemini call.
type generator interface {
	generate(ctx context.Context, modelName string, req request) (*genai.GenerateContentResponse, error)
}

// NewChatModel returns a ChatModel for modelName authenticated with apiKey.
func NewChatModel(apiKey, modelName string) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &ChatModel{modelName: modelName, client: &sdkClient{apiKey: apiKey}}
}

// Model returns the configured model name.
func (m *ChatModel) Model() string { return m.modelName }

// Chat implements model.ChatModel.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	if err := ctx.Err(); err != nil {
		return model.ChatOut{}, err
	}

	system, conversation := model.SplitSystem(messages)
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("google: at least one user or assistant message is required")
	}

	req := request{system: system}
	for _, msg := range conversation[:len(conversation)-1] {
		req.history = append(req.history, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	req.parts = []genai.Part{genai.Text(conversation[len(conversation)-1].Content)}
	if len(tools) > 0 {
		req.tools = convertTools(tools)
	}

	resp, err := m.client.generate(ctx, m.modelName, req)
	if err != nil {
		return model.ChatOut{}, model.Classify("google", 0, err)
	}
	if serr := safetyBlock(resp); serr != nil {
		return model.ChatOut{}, &model.ProviderError{Provider: "google", Code: model.CodeBlocked, Err: serr}
	}
	return convertResponse(resp), nil
}

func geminiRole(role string) string {
	if role == model.RoleAssistant {
		return "model"
	}
	return "user"
}

// sdkClient opens a client per call; genai clients hold a gRPC connection
// that must be closed.
type sdkClient struct {
	apiKey string
}

func (c *sdkClient) generate(ctx context.Context, modelName string, req request) (*genai.GenerateContentResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	defer func() { _ = client.Close() }()

	gm := client.GenerativeModel(modelName)
	if req.system != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	gm.Tools = req.tools

	session := gm.StartChat()
	session.History = req.history
	return session.SendMessage(ctx, req.parts...)
}

func convertTools(tools []model.ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  convertSchema(t.Schema),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// convertSchema converts a JSON Schema map, recursing into object
// properties and array items.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	out := &genai.Schema{Type: genai.TypeObject}
	if typ, ok := schema["type"].(string); ok {
		out.Type = convertType(typ)
	}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			if pm, ok := p.(map[string]any); ok {
				out.Properties[name] = convertSchema(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		out.Items = convertSchema(items)
	}
	switch req := schema["required"].(type) {
	case []string:
		out.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				out.Required = append(out.Required, s)
			}
		}
	}
	return out
}

func convertType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

func convertResponse(resp *genai.GenerateContentResponse) model.ChatOut {
	var out model.ChatOut
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return out
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			if out.Text != "" {
				out.Text += "\n"
			}
			out.Text += string(p)
		case genai.FunctionCall:
			out.ToolCalls = append(out.ToolCalls, model.ToolCall{Name: p.Name, Input: p.Args})
		}
	}
	return out
}

// safetyBlock reports a prompt or candidate stopped by the safety filters.
func safetyBlock(resp *genai.GenerateContentResponse) *SafetyFilterError {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != genai.BlockReasonUnspecified {
		return &SafetyFilterError{reason: fb.BlockReason.String(), category: blockedCategory(fb.SafetyRatings)}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return &SafetyFilterError{reason: "SAFETY", category: blockedCategory(resp.Candidates[0].SafetyRatings)}
	}
	return nil
}

func blockedCategory(ratings []*genai.SafetyRating) string {
	for _, r := range ratings {
		if r != nil && r.Blocked {
			return r.Category.String()
		}
	}
	return "unknown"
}

// SafetyFilterError reports content blocked by Gemini's safety filters.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the harm category that triggered the block.
func (e *SafetyFilterError) Category() string { return e.category }

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string { return e.reason }
