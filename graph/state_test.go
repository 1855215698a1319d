package graph

import (
	"reflect"
	"testing"
)

func TestNewState(t *testing.T) {
	meta := map[string]any{"topic": "llm agents", "nested": map[string]any{"k": 1}}
	s := NewState("summarize papers", meta)

	if s.Task != "summarize papers" {
		t.Errorf("Task = %q, want %q", s.Task, "summarize papers")
	}
	if s.IterationCount != 0 || s.StepCount != 0 {
		t.Errorf("counters = (%d, %d), want (0, 0)", s.IterationCount, s.StepCount)
	}
	if len(s.Log) != 0 {
		t.Errorf("Log = %v, want empty", s.Log)
	}
	if s.HasFinalOutput() {
		t.Error("new state should not have a final output")
	}

	// The caller's map must not alias the state's.
	meta["topic"] = "changed"
	meta["nested"].(map[string]any)["k"] = 2
	if got, _ := s.MetaString("topic"); got != "llm agents" {
		t.Errorf("metadata aliased caller map: topic = %q", got)
	}
	if got := s.Metadata["nested"].(map[string]any)["k"]; got != 1 {
		t.Errorf("nested metadata aliased caller map: k = %v", got)
	}
}

func TestMerge(t *testing.T) {
	base := NewState("task", map[string]any{"a": 1})
	base.Log = []LogEntry{{Source: "planner", Role: RoleAssistant, Content: "plan"}}

	t.Run("empty update is identity", func(t *testing.T) {
		got := Merge(base, Update{})
		if !reflect.DeepEqual(got, base) {
			t.Errorf("Merge(s, {}) = %+v, want %+v", got, base)
		}
	})

	t.Run("empty update on zero state is identity", func(t *testing.T) {
		var zero State
		if got := Merge(zero, Update{}); !reflect.DeepEqual(got, zero) {
			t.Errorf("Merge(zero, {}) = %+v, want zero", got)
		}
	})

	t.Run("log appends", func(t *testing.T) {
		got := Merge(base, Update{Log: []LogEntry{{Role: RoleAssistant, Content: "second"}}})
		if len(got.Log) != 2 {
			t.Fatalf("len(Log) = %d, want 2", len(got.Log))
		}
		if got.Log[0] != base.Log[0] {
			t.Errorf("existing entry changed: %+v", got.Log[0])
		}
		if len(base.Log) != 1 {
			t.Errorf("input state mutated: len(Log) = %d", len(base.Log))
		}
	})

	t.Run("iterations only grow", func(t *testing.T) {
		got := Merge(base, Update{Iterations: 1})
		if got.IterationCount != 1 {
			t.Errorf("IterationCount = %d, want 1", got.IterationCount)
		}
		got = Merge(got, Update{Iterations: -5})
		if got.IterationCount != 1 {
			t.Errorf("negative delta applied: IterationCount = %d", got.IterationCount)
		}
	})

	t.Run("metadata overwrites per key", func(t *testing.T) {
		got := Merge(base, Update{Metadata: map[string]any{"b": "two"}})
		if got.Metadata["a"] != 1 || got.Metadata["b"] != "two" {
			t.Errorf("Metadata = %v", got.Metadata)
		}
		got = Merge(got, Update{Metadata: map[string]any{"a": 3}})
		if got.Metadata["a"] != 3 {
			t.Errorf("a = %v, want 3", got.Metadata["a"])
		}
		if _, ok := base.Metadata["b"]; ok {
			t.Error("input state metadata mutated")
		}
	})

	t.Run("final output overwrites", func(t *testing.T) {
		got := Merge(base, Update{FinalOutput: Output("done")})
		if got.FinalOutput != "done" {
			t.Errorf("FinalOutput = %q", got.FinalOutput)
		}
		got = Merge(got, Update{})
		if got.FinalOutput != "done" {
			t.Errorf("nil FinalOutput cleared existing value")
		}
	})

	t.Run("task and engine fields untouched", func(t *testing.T) {
		s := base
		s.StepCount = 4
		s.CurrentNode = "critic"
		got := Merge(s, Update{Iterations: 1, Log: []LogEntry{{Content: "x"}}})
		if got.Task != s.Task || got.StepCount != 4 || got.CurrentNode != "critic" {
			t.Errorf("engine-owned fields changed: %+v", got)
		}
	})
}

func TestMergeLogMonotonic(t *testing.T) {
	s := NewState("t", nil)
	updates := []Update{
		{},
		{Log: []LogEntry{{Content: "1"}}},
		{Metadata: map[string]any{"x": 1}},
		{Log: []LogEntry{{Content: "2"}, {Content: "3"}}},
		{Iterations: 1},
	}
	prev := 0
	for i, u := range updates {
		s = Merge(s, u)
		if len(s.Log) < prev {
			t.Fatalf("update %d shrank the log: %d -> %d", i, prev, len(s.Log))
		}
		prev = len(s.Log)
	}
	if prev != 3 {
		t.Errorf("final log length = %d, want 3", prev)
	}
}

func TestStateMetaAccessors(t *testing.T) {
	s := NewState("t", map[string]any{
		"score":      "7.5",
		"int_score":  8,
		"garbage":    "not valid json",
		"flag":       "true",
		"name":       "planner",
		"nil_value":  nil,
		"structured": map[string]any{"score": 6.0, "explanation": "ok"},
	})

	if f, ok := s.MetaFloat("score"); !ok || f != 7.5 {
		t.Errorf("MetaFloat(score) = %v, %v", f, ok)
	}
	if f, ok := s.MetaFloat("int_score"); !ok || f != 8 {
		t.Errorf("MetaFloat(int_score) = %v, %v", f, ok)
	}
	if _, ok := s.MetaFloat("garbage"); ok {
		t.Error("MetaFloat(garbage) should fail")
	}
	if _, ok := s.MetaFloat("missing"); ok {
		t.Error("MetaFloat(missing) should fail")
	}
	if _, ok := s.MetaFloat("nil_value"); ok {
		t.Error("MetaFloat(nil_value) should fail")
	}
	if b, ok := s.MetaBool("flag"); !ok || !b {
		t.Errorf("MetaBool(flag) = %v, %v", b, ok)
	}
	if v, ok := s.MetaString("name"); !ok || v != "planner" {
		t.Errorf("MetaString(name) = %q, %v", v, ok)
	}

	var c struct {
		Score       float64
		Explanation string
	}
	if !s.MetaInto("structured", &c) {
		t.Fatal("MetaInto(structured) failed")
	}
	if c.Score != 6 || c.Explanation != "ok" {
		t.Errorf("decoded = %+v", c)
	}
}
