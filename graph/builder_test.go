package graph

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func noop() Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult { return NodeResult{} })
}

// buildErrorCodes extracts the codes of every *BuildError joined into err.
func buildErrorCodes(err error) []string {
	var codes []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if be, ok := e.(*BuildError); ok {
			codes = append(codes, be.Code)
			return
		}
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range j.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return codes
}

func TestBuilderBuildsCyclicGraph(t *testing.T) {
	b := NewBuilder()
	_ = b.AddNode("producer", noop())
	_ = b.AddNode("critic", noop())
	_ = b.AddNode("refiner", noop())
	_ = b.AddEdge("producer", "critic")
	_ = b.AddConditionalEdge("critic", RouterFunc(func(State) string { return End }), []string{"refiner", End}, "")
	_ = b.AddEdge("refiner", "critic")
	b.SetEntry("producer")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if g.Entry() != "producer" {
		t.Errorf("Entry() = %q", g.Entry())
	}
	if got := g.Nodes(); !slices.Equal(got, []string{"producer", "critic", "refiner"}) {
		t.Errorf("Nodes() = %v", got)
	}
	e, ok := g.Edge("critic")
	if !ok || !e.Conditional() || e.Default != "refiner" {
		t.Errorf("critic edge = %+v, %v", e, ok)
	}
	if w := g.Warnings(); len(w) != 0 {
		t.Errorf("unexpected warnings: %v", w)
	}
	if m := g.Mermaid(); !strings.Contains(m, "refiner --> critic") || !strings.Contains(m, "critic -.->") {
		t.Errorf("Mermaid() missing edges:\n%s", m)
	}
}

func TestBuilderRejectsUndeclaredTarget(t *testing.T) {
	b := NewBuilder()
	_ = b.AddNode("writer", noop())
	_ = b.AddConditionalEdge("writer", RouterFunc(func(State) string { return "reviewer" }), []string{"reviewer", End}, End)
	b.SetEntry("writer")

	g, err := b.Build()
	if err == nil {
		t.Fatal("Build() succeeded with unregistered target")
	}
	if g != nil {
		t.Error("Build() returned a graph alongside an error")
	}
	if !errors.Is(err, ErrGraphInvalid) {
		t.Errorf("error %v does not match ErrGraphInvalid", err)
	}
	if !strings.Contains(err.Error(), `"reviewer"`) {
		t.Errorf("error does not name the missing target: %v", err)
	}
	if codes := buildErrorCodes(err); !slices.Contains(codes, CodeUnknownTarget) {
		t.Errorf("codes = %v, want %s", codes, CodeUnknownTarget)
	}
}

func TestBuilderCollectsProblems(t *testing.T) {
	tests := []struct {
		name  string
		setup func(b *Builder)
		want  []string
	}{
		{
			name:  "no entry",
			setup: func(b *Builder) { _ = b.AddNode("a", noop()); _ = b.AddEdge("a", End) },
			want:  []string{CodeNoEntry},
		},
		{
			name: "entry not registered",
			setup: func(b *Builder) {
				_ = b.AddNode("a", noop())
				_ = b.AddEdge("a", End)
				b.SetEntry("missing")
			},
			want: []string{CodeEntryNotFound},
		},
		{
			name: "duplicate node",
			setup: func(b *Builder) {
				_ = b.AddNode("a", noop())
				_ = b.AddNode("a", noop())
				_ = b.AddEdge("a", End)
				b.SetEntry("a")
			},
			want: []string{CodeDuplicateNode},
		},
		{
			name: "reserved and empty names",
			setup: func(b *Builder) {
				_ = b.AddNode(End, noop())
				_ = b.AddNode("", noop())
				_ = b.AddNode("nil", nil)
				_ = b.AddNode("a", noop())
				_ = b.AddEdge("a", End)
				b.SetEntry("a")
			},
			want: []string{CodeReservedNodeID, CodeEmptyNodeID, CodeNilNode},
		},
		{
			name: "missing outgoing edge",
			setup: func(b *Builder) {
				_ = b.AddNode("a", noop())
				_ = b.AddNode("b", noop())
				_ = b.AddEdge("a", "b")
				b.SetEntry("a")
			},
			want: []string{CodeMissingEdge},
		},
		{
			name: "duplicate edge and unknown source",
			setup: func(b *Builder) {
				_ = b.AddNode("a", noop())
				_ = b.AddEdge("a", End)
				_ = b.AddEdge("a", End)
				_ = b.AddEdge("ghost", End)
				b.SetEntry("a")
			},
			want: []string{CodeDuplicateEdge, CodeUnknownSource},
		},
		{
			name: "bad conditional edges",
			setup: func(b *Builder) {
				_ = b.AddNode("a", noop())
				_ = b.AddNode("b", noop())
				_ = b.AddNode("c", noop())
				_ = b.AddConditionalEdge("a", nil, []string{End}, "")
				_ = b.AddConditionalEdge("b", RouterFunc(func(State) string { return End }), nil, "")
				_ = b.AddConditionalEdge("c", RouterFunc(func(State) string { return End }), []string{End}, "elsewhere")
				b.SetEntry("a")
			},
			want: []string{CodeNilRouter, CodeNoTargets, CodeUnknownTarget},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			tt.setup(b)
			_, err := b.Build()
			if err == nil {
				t.Fatal("Build() succeeded")
			}
			codes := buildErrorCodes(err)
			for _, want := range tt.want {
				if !slices.Contains(codes, want) {
					t.Errorf("codes = %v, missing %s", codes, want)
				}
			}
		})
	}
}

func TestBuilderWarnsOnUnreachableNodes(t *testing.T) {
	b := NewBuilder()
	_ = b.AddNode("a", noop())
	_ = b.AddNode("orphan", noop())
	_ = b.AddEdge("a", End)
	_ = b.AddEdge("orphan", "a")
	b.SetEntry("a")

	g, err := b.Build()
	if err != nil {
		t.Fatalf("unreachable node should not fail the build: %v", err)
	}
	w := g.Warnings()
	if len(w) != 1 || !strings.Contains(w[0], "orphan") {
		t.Errorf("Warnings() = %v", w)
	}
}
