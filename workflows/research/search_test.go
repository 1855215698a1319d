package research

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dshills/loopgraph/graph/tool"
)

func TestToolSearcherHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "graph agents" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("max_results"); got != "2" {
			t.Errorf("max_results = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"papers": []map[string]any{
			{"title": "A", "authors": []string{"x"}, "abstract": "aa"},
			{"title": "B", "abstract": "bb"},
			{"title": "C", "abstract": "cc"},
		}})
	}))
	defer server.Close()

	s := ToolSearcher{Tool: tool.NewHTTPTool(tool.WithName("paper_search")), URL: server.URL}
	papers, err := s.Search(context.Background(), searchQuery("graph agents?"), 2)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(papers) != 2 || papers[0].Title != "A" || papers[0].Authors[0] != "x" {
		t.Errorf("papers = %+v", papers)
	}
}

func TestToolSearcherResponses(t *testing.T) {
	tests := []struct {
		name    string
		out     map[string]any
		err     error
		want    int
		wantErr bool
	}{
		{
			name: "top-level array",
			out:  map[string]any{"status_code": 200, "json": []any{map[string]any{"title": "A"}}},
			want: 1,
		},
		{
			name: "results key",
			out:  map[string]any{"status_code": 200, "json": map[string]any{"results": []any{map[string]any{"title": "A"}, map[string]any{"title": "B"}}}},
			want: 2,
		},
		{
			name: "empty object",
			out:  map[string]any{"status_code": 200, "json": map[string]any{}},
			want: 0,
		},
		{name: "server error", out: map[string]any{"status_code": 500, "body": "oops"}, wantErr: true},
		{name: "not json", out: map[string]any{"status_code": 200, "body": "<html>"}, wantErr: true},
		{name: "tool error", err: errors.New("dial tcp"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &tool.MockTool{ToolName: "search", Err: tt.err}
			if tt.out != nil {
				mock.Responses = []map[string]any{tt.out}
			}
			papers, err := ToolSearcher{Tool: mock, URL: "http://search"}.Search(context.Background(), "q", 10)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(papers) != tt.want {
				t.Errorf("papers = %+v, want %d", papers, tt.want)
			}
			if mock.Calls()[0]["url"] != "http://search" {
				t.Errorf("input = %v", mock.Calls()[0])
			}
		})
	}
}

func TestStaticSearcher(t *testing.T) {
	got, err := testPapers.Search(context.Background(), "q", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("Search() = %v, %v", got, err)
	}
	got[0].Title = "changed"
	if testPapers[0].Title == "changed" {
		t.Error("Search() returned shared storage")
	}
}

func TestSearchQuery(t *testing.T) {
	if got := searchQuery("  What is RAG?  "); got != "What is RAG" {
		t.Errorf("searchQuery() = %q", got)
	}
}
