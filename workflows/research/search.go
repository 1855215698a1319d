package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/dshills/loopgraph/graph/tool"
)

// Paper is one search hit.
type Paper struct {
	Title     string   `json:"title" mapstructure:"title"`
	Authors   []string `json:"authors,omitempty" mapstructure:"authors"`
	Abstract  string   `json:"abstract" mapstructure:"abstract"`
	Published string   `json:"published,omitempty" mapstructure:"published"`
	URL       string   `json:"url,omitempty" mapstructure:"url"`
}

// Searcher finds papers relevant to a query.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Paper, error)
}

// StaticSearcher returns a fixed list of papers for every query.
type StaticSearcher []Paper

// Search implements Searcher.
func (s StaticSearcher) Search(ctx context.Context, query string, max int) ([]Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max > 0 && len(s) > max {
		return append([]Paper(nil), s[:max]...), nil
	}
	return append([]Paper(nil), s...), nil
}

// ToolSearcher queries a JSON search endpoint through a tool.Tool, normally
// a *tool.HTTPTool.
//
// The endpoint receives GET <URL>?q=<query>&max_results=<max> and must answer
// with either a JSON array of papers or an object holding one under
// "papers" or "results".
type ToolSearcher struct {
	Tool tool.Tool
	URL  string
}

// Search implements Searcher.
func (s ToolSearcher) Search(ctx context.Context, query string, max int) ([]Paper, error) {
	out, err := s.Tool.Call(ctx, map[string]any{
		"url":    s.URL,
		"method": "GET",
		"query":  map[string]any{"q": query, "max_results": max},
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if status, ok := out["status_code"].(int); ok && status >= 400 {
		return nil, fmt.Errorf("search %q: endpoint returned status %d", query, status)
	}

	raw, ok := out["json"]
	if !ok {
		return nil, fmt.Errorf("search %q: response is not JSON", query)
	}
	if obj, ok := raw.(map[string]any); ok {
		raw = obj["papers"]
		if raw == nil {
			raw = obj["results"]
		}
	}

	var papers []Paper
	if err := mapstructure.WeakDecode(raw, &papers); err != nil {
		return nil, fmt.Errorf("search %q: decode papers: %w", query, err)
	}
	if max > 0 && len(papers) > max {
		papers = papers[:max]
	}
	return papers, nil
}

// searchQuery strips question marks and surrounding space from a task.
func searchQuery(task string) string {
	return strings.TrimSpace(strings.ReplaceAll(task, "?", ""))
}
