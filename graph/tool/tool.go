// Package tool defines external actions a workflow node can invoke, such as
// querying a search service.
package tool

import (
	"context"
	"fmt"
)

// Tool is an external action invoked with structured input.
//
// Implementations must respect ctx cancellation and should return
// descriptive errors for invalid input. Output maps are owned by the
// caller.
type Tool interface {
	// Name returns the identifier the tool is registered under, e.g.
	// "paper_search".
	Name() string

	// Call executes the tool. input may be nil for parameterless tools.
	Call(ctx context.Context, input map[string]any) (map[string]any, error)
}

// Func adapts a function to Tool.
type Func struct {
	ToolName string
	Fn       func(ctx context.Context, input map[string]any) (map[string]any, error)
}

func (f Func) Name() string { return f.ToolName }

func (f Func) Call(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f.Fn(ctx, input)
}

// StringInput returns input[key] as a non-empty string.
func StringInput(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s parameter required (string)", key)
	}
	return v, nil
}
