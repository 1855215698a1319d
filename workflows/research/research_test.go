package research

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/loopgraph/graph"
	"github.com/dshills/loopgraph/graph/model"
)

var testPapers = StaticSearcher{
	{Title: "Graph Agents", Authors: []string{"Ada"}, Abstract: "Agents as graphs."},
	{Title: "Reflective Loops", Authors: []string{"Bo", "Cy"}, Abstract: "Critique and refine."},
}

func reply(texts ...string) *model.MockChatModel {
	m := &model.MockChatModel{}
	for _, t := range texts {
		m.Responses = append(m.Responses, model.ChatOut{Text: t})
	}
	return m
}

type stageModels struct {
	planner, summarizer, synthesizer, critic, reflector *model.MockChatModel
}

func newStages(critiques ...string) stageModels {
	return stageModels{
		planner:     reply("1. search graph agents"),
		summarizer:  reply("summary A", "summary B"),
		synthesizer: reply("draft synthesis"),
		critic:      reply(critiques...),
		reflector:   reply("improved 1", "improved 2", "improved 3"),
	}
}

func (m stageModels) models() Models {
	return Models{
		Planner:     m.planner,
		Summarizer:  m.summarizer,
		Synthesizer: m.synthesizer,
		Critic:      m.critic,
		Reflector:   m.reflector,
	}
}

func runWorkflow(t *testing.T, wf *Workflow, query string) *graph.Result {
	t.Helper()
	g, err := wf.Graph()
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	res := graph.New().Run(context.Background(), g, "", NewState(query), graph.Limits{})
	if res.Outcome != graph.Completed {
		t.Fatalf("Outcome = %v, err = %v", res.Outcome, res.Err)
	}
	return res
}

func TestWorkflowAcceptsFirstDraft(t *testing.T) {
	stages := newStages(`{"score": 8.5, "explanation": "well grounded", "needs_refinement": false}`)
	wf, err := New(stages.models(), testPapers, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := runWorkflow(t, wf, "How do agent graphs refine answers?")

	want := []string{NodePlanner, NodeSearcher, NodeSummarizer, NodeSynthesizer, NodeCritic, NodeFinalize}
	if got := res.Trace.Nodes(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("trace = %v, want %v", got, want)
	}
	if res.State.FinalOutput != "draft synthesis" {
		t.Errorf("FinalOutput = %q", res.State.FinalOutput)
	}
	if stages.reflector.CallCount() != 0 {
		t.Errorf("reflector called %d times", stages.reflector.CallCount())
	}
	if plan, _ := res.State.MetaString(KeySearchPlan); plan != "1. search graph agents" {
		t.Errorf("search_plan = %q", plan)
	}
	if got := Summaries(res.State); len(got) != 2 || got[1].PaperTitle != "Reflective Loops" || got[1].Summary != "summary B" {
		t.Errorf("summaries = %+v", got)
	}
	if first := res.State.Log[0].Content; !strings.HasPrefix(first, "PLANNER: Created research plan") {
		t.Errorf("first log entry = %q", first)
	}

	call := stages.planner.Calls()[0]
	if call.Messages[1].Content != "Research Query: How do agent graphs refine answers?" {
		t.Errorf("planner prompt = %q", call.Messages[1].Content)
	}
}

func TestWorkflowRefinesUntilBudgetExhausted(t *testing.T) {
	stages := newStages(
		`{"score": 5, "explanation": "thin", "needs_refinement": true}`,
		`{"score": 7, "explanation": "better", "needs_refinement": true}`,
		`{"score": 7, "explanation": "still 7", "needs_refinement": true}`,
	)
	wf, err := New(stages.models(), testPapers, Config{Threshold: 7, MaxIterations: 3})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := runWorkflow(t, wf, "q")

	if res.State.IterationCount != 2 {
		t.Errorf("IterationCount = %d, want 2", res.State.IterationCount)
	}
	if res.State.FinalOutput != "improved 2" {
		t.Errorf("FinalOutput = %q", res.State.FinalOutput)
	}
	if refl, _ := res.State.MetaString(KeyReflection); refl != "improved 2" {
		t.Errorf("reflection = %q", refl)
	}
	if stages.critic.CallCount() != 3 {
		t.Errorf("critic calls = %d, want 3", stages.critic.CallCount())
	}
	if v := wf.Gate().Verdict(res.State); v != graph.Exhausted {
		t.Errorf("final verdict = %v", v)
	}

	// The reflector sees the latest critique.
	last := stages.reflector.Calls()[1].Messages[1].Content
	if !strings.Contains(last, "better") {
		t.Errorf("reflector prompt missing critique: %q", last)
	}
}

func TestWorkflowMalformedCritique(t *testing.T) {
	stages := newStages("I cannot score this.", `{"score": 9}`)
	wf, err := New(stages.models(), testPapers, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := runWorkflow(t, wf, "q")

	if res.State.IterationCount != 1 {
		t.Errorf("IterationCount = %d, want 1", res.State.IterationCount)
	}
	if res.State.FinalOutput != "improved 1" {
		t.Errorf("FinalOutput = %q", res.State.FinalOutput)
	}
}

func TestWorkflowWithoutPapers(t *testing.T) {
	stages := newStages(`{"score": 8}`)
	wf, err := New(stages.models(), StaticSearcher(nil), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := runWorkflow(t, wf, "obscure topic")

	if res.State.FinalOutput != noPapersSynthesis {
		t.Errorf("FinalOutput = %q", res.State.FinalOutput)
	}
	if stages.summarizer.CallCount() != 0 || stages.synthesizer.CallCount() != 0 {
		t.Error("summarizer or synthesizer called without papers")
	}
}

func TestWorkflowModelFailure(t *testing.T) {
	stages := newStages(`{"score": 8}`)
	stages.synthesizer = &model.MockChatModel{Err: errors.New("invalid api key")}
	wf, err := New(stages.models(), testPapers, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	g, err := wf.Graph()
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}

	res := graph.New().Run(context.Background(), g, "", NewState("q"), graph.Limits{})

	if res.Outcome != graph.Failed || res.FailedNode != NodeSynthesizer {
		t.Fatalf("Outcome = %v, FailedNode = %q", res.Outcome, res.FailedNode)
	}
	if len(Summaries(res.State)) != 2 {
		t.Error("last good state lost the summaries")
	}
}

func TestWorkflowRetriesTransientErrors(t *testing.T) {
	stages := newStages(`{"score": 8}`)
	calls := 0
	stages.planner = &model.MockChatModel{Handler: func([]model.Message) (model.ChatOut, error) {
		calls++
		if calls == 1 {
			return model.ChatOut{}, model.Classify("test", 503, errors.New("overloaded"))
		}
		return model.ChatOut{Text: "plan"}, nil
	}}
	wf, err := New(stages.models(), testPapers, Config{Retry: graph.RetryPolicy{MaxAttempts: 2}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	res := runWorkflow(t, wf, "q")
	if calls != 2 {
		t.Errorf("planner calls = %d, want 2", calls)
	}
	if plan, _ := res.State.MetaString(KeySearchPlan); plan != "plan" {
		t.Errorf("search_plan = %q", plan)
	}
}

func TestNewValidation(t *testing.T) {
	m := reply("x")
	tests := []struct {
		name     string
		models   Models
		searcher Searcher
		cfg      Config
	}{
		{name: "no models", searcher: testPapers},
		{name: "no searcher", models: Models{Default: m}},
		{name: "bad retry", models: Models{Default: m}, searcher: testPapers,
			cfg: Config{Retry: graph.RetryPolicy{MaxAttempts: 2, BaseDelay: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.models, tt.searcher, tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}

	wf, err := New(Models{Default: m}, testPapers, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	gate := wf.Gate()
	if gate.Threshold != DefaultThreshold || gate.MaxIterations != DefaultMaxIterations || gate.Exit != NodeFinalize {
		t.Errorf("gate = %+v", gate)
	}
	if wf.models.Critic != m {
		t.Error("Default model not applied to critic")
	}
}

func TestStateSurvivesJSONRoundTrip(t *testing.T) {
	s := graph.Merge(NewState("q"), graph.Update{Metadata: map[string]any{
		KeyPapers: papersMeta(testPapers),
	}})
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var back graph.State
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	got := Papers(back)
	if len(got) != 2 || got[1].Title != "Reflective Loops" || len(got[1].Authors) != 2 {
		t.Errorf("Papers() = %+v", got)
	}
}
