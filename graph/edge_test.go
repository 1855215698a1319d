package graph

import (
	"slices"
	"testing"
)

func TestEdgeAllows(t *testing.T) {
	fixed := Edge{From: "a", To: "b"}
	if fixed.Conditional() {
		t.Error("fixed edge reported as conditional")
	}
	if !fixed.Allows("b") || fixed.Allows("c") {
		t.Error("fixed edge Allows mismatch")
	}

	cond := Edge{From: "a", Router: RouterFunc(func(State) string { return "b" }), Targets: []string{"b", End}, Default: "b"}
	if !cond.Conditional() {
		t.Error("conditional edge not reported as conditional")
	}
	if !cond.Allows(End) || cond.Allows("reviewer") {
		t.Error("conditional edge Allows mismatch")
	}
	if got := cond.Destinations(); !slices.Equal(got, []string{"b", End}) {
		t.Errorf("Destinations() = %v", got)
	}
}

func TestSwitchRouter(t *testing.T) {
	r := SwitchRouter{
		Cases: []Case{
			{Name: "done", When: func(s State) bool { return s.HasFinalOutput() }, To: End},
			{Name: "loop", When: func(s State) bool { return s.IterationCount < 2 }, To: "worker"},
		},
		Default: "synthesizer",
	}

	tests := []struct {
		name     string
		state    State
		want     string
		fallback bool
	}{
		{"first case wins", State{FinalOutput: "x", IterationCount: 0}, End, false},
		{"second case", State{IterationCount: 1}, "worker", false},
		{"default", State{IterationCount: 5}, "synthesizer", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := r.Route(tt.state)
			if d.Target != tt.want || d.Fallback != tt.fallback {
				t.Errorf("Route() = %+v, want target %q fallback %v", d, tt.want, tt.fallback)
			}
		})
	}
}

func TestKeywordRouter(t *testing.T) {
	r := KeywordRouter{
		Rules: []KeywordRule{
			{Keyword: "finish", Target: End},
			{Keyword: "research", Target: "researcher"},
			{Keyword: "analy", Target: "analyst"},
			{Keyword: "synth", Target: "synthesizer"},
		},
		Default: "researcher",
	}

	tests := []struct {
		text     string
		want     string
		fallback bool
	}{
		{"  FINISH  ", End, false},
		{"research", "researcher", false},
		{"Analyze the data", "analyst", false},
		{"analysis", "analyst", false},
		{"synthesize", "synthesizer", false},
		// First match wins: "research" precedes "synth" in rule order.
		{"research then synthesize", "researcher", false},
		{"finish the research", End, false},
		{"", "researcher", true},
		{"something else", "researcher", true},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d := r.Parse(tt.text)
			if d.Target != tt.want || d.Fallback != tt.fallback {
				t.Errorf("Parse(%q) = %+v, want %q fallback=%v", tt.text, d, tt.want, tt.fallback)
			}
		})
	}

	wantTargets := []string{End, "researcher", "analyst", "synthesizer"}
	if got := r.Targets(); !slices.Equal(got, wantTargets) {
		t.Errorf("Targets() = %v, want %v", got, wantTargets)
	}
}

func TestKeywordRouterReadsState(t *testing.T) {
	r := KeywordRouter{
		Text: func(s State) string {
			v, _ := s.MetaString("decision")
			return v
		},
		Rules:   []KeywordRule{{Keyword: "stop", Target: End}},
		Default: "loop",
	}
	if d := r.Route(NewState("t", map[string]any{"decision": "Stop now"})); d.Target != End {
		t.Errorf("Route() = %+v", d)
	}
	if d := (KeywordRouter{Default: "x"}).Route(State{}); d.Target != "x" || !d.Fallback {
		t.Errorf("nil Text should fall back: %+v", d)
	}
}
