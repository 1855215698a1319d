package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/loopgraph/graph"
	"github.com/dshills/loopgraph/graph/model"
)

// Summary is the summarizer's digest of one paper.
type Summary struct {
	PaperTitle string   `json:"paper_title" mapstructure:"paper_title"`
	Summary    string   `json:"summary" mapstructure:"summary"`
	Authors    []string `json:"authors,omitempty" mapstructure:"authors"`
	URL        string   `json:"url,omitempty" mapstructure:"url"`
}

const noPapersSynthesis = "No papers found for synthesis."

func logEntry(source, format string, args ...any) graph.LogEntry {
	return graph.LogEntry{Source: source, Role: graph.RoleAssistant, Content: fmt.Sprintf(format, args...)}
}

func (w *Workflow) plan(ctx context.Context, s graph.State) graph.NodeResult {
	plan, err := model.Ask(ctx, w.models.Planner, plannerSystem, "Research Query: "+s.Task)
	if err != nil {
		return graph.Fail(fmt.Errorf("plan research: %w", err))
	}
	return graph.NodeResult{Update: graph.Update{
		Metadata: map[string]any{KeySearchPlan: plan},
		Log:      []graph.LogEntry{logEntry(NodePlanner, "PLANNER: Created research plan\n%s", plan)},
	}}
}

func (w *Workflow) search(ctx context.Context, s graph.State) graph.NodeResult {
	papers, err := w.searcher.Search(ctx, searchQuery(s.Task), w.cfg.MaxPapers)
	if err != nil {
		return graph.Fail(err)
	}
	return graph.NodeResult{Update: graph.Update{
		Metadata: map[string]any{KeyPapers: papersMeta(papers)},
		Log:      []graph.LogEntry{logEntry(NodeSearcher, "SEARCHER: Found %d relevant papers", len(papers))},
	}}
}

func (w *Workflow) summarize(ctx context.Context, s graph.State) graph.NodeResult {
	papers := Papers(s)
	if len(papers) > w.cfg.MaxSummaries {
		papers = papers[:w.cfg.MaxSummaries]
	}

	summaries := make([]Summary, 0, len(papers))
	for _, p := range papers {
		text, err := model.Ask(ctx, w.models.Summarizer, summarizerSystem,
			fmt.Sprintf(summarizerPrompt, p.Title, p.Abstract, s.Task))
		if err != nil {
			return graph.Fail(fmt.Errorf("summarize %q: %w", p.Title, err))
		}
		summaries = append(summaries, Summary{PaperTitle: p.Title, Summary: text, Authors: p.Authors, URL: p.URL})
	}
	return graph.NodeResult{Update: graph.Update{
		Metadata: map[string]any{KeySummaries: summariesMeta(summaries)},
		Log:      []graph.LogEntry{logEntry(NodeSummarizer, "SUMMARIZER: Analyzed %d papers", len(summaries))},
	}}
}

func (w *Workflow) synthesize(ctx context.Context, s graph.State) graph.NodeResult {
	summaries := Summaries(s)
	synthesis := noPapersSynthesis
	if len(summaries) > 0 {
		plan, _ := s.MetaString(KeySearchPlan)
		var err error
		synthesis, err = model.Ask(ctx, w.models.Synthesizer, synthesizerSystem,
			fmt.Sprintf(synthesizerPrompt, s.Task, numberedSummaries(summaries), plan))
		if err != nil {
			return graph.Fail(fmt.Errorf("synthesize: %w", err))
		}
	}
	return graph.NodeResult{Update: graph.Update{
		Metadata: map[string]any{KeySynthesis: synthesis},
		Log:      []graph.LogEntry{logEntry(NodeSynthesizer, "SYNTHESIZER: Created comprehensive synthesis")},
	}}
}

// critique is the gate's CriticFunc: it asks for a JSON score of the
// current synthesis against the paper summaries.
func (w *Workflow) critique(ctx context.Context, s graph.State) (string, error) {
	var truth []string
	for _, sum := range Summaries(s) {
		truth = append(truth, fmt.Sprintf("Paper: %s\nAuthors: %s\n%s",
			sum.PaperTitle, strings.Join(sum.Authors, ", "), sum.Summary))
	}
	return model.Ask(ctx, w.models.Critic, criticSystem,
		fmt.Sprintf(criticPrompt, Synthesis(s), strings.Join(truth, "\n\n"), s.Task))
}

func (w *Workflow) reflect(ctx context.Context, s graph.State) graph.NodeResult {
	critique, _ := s.MetaString(graph.MetaCritique)
	var sources []string
	for _, sum := range Summaries(s) {
		sources = append(sources, fmt.Sprintf("Paper: %s\n%s", sum.PaperTitle, sum.Summary))
	}

	improved, err := model.Ask(ctx, w.models.Reflector, reflectorSystem,
		fmt.Sprintf(reflectorPrompt, Synthesis(s), critique, strings.Join(sources, "\n\n")))
	if err != nil {
		return graph.Fail(fmt.Errorf("reflect: %w", err))
	}
	return graph.NodeResult{Update: graph.Update{
		Metadata: map[string]any{KeySynthesis: improved, KeyReflection: improved},
		Log: []graph.LogEntry{logEntry(NodeReflector,
			"REFLECTOR: Improved synthesis (Iteration %d)", s.IterationCount+1)},
	}}
}

func finalize(_ context.Context, s graph.State) graph.NodeResult {
	synthesis := Synthesis(s)
	score, _ := s.MetaFloat(graph.MetaScore)
	return graph.NodeResult{Update: graph.Update{
		FinalOutput: graph.Output(synthesis),
		Log: []graph.LogEntry{logEntry(NodeFinalize,
			"FINALIZE: Published synthesis after %d refinements (Quality: %.1f/10)", s.IterationCount, score)},
	}}
}

func numberedSummaries(summaries []Summary) string {
	parts := make([]string, len(summaries))
	for i, s := range summaries {
		parts[i] = fmt.Sprintf("Paper %d: %s\n%s", i+1, s.PaperTitle, s.Summary)
	}
	return strings.Join(parts, "\n\n")
}

// papersMeta stores papers in the JSON shape metadata uses, so the state
// looks the same before and after a checkpoint round trip.
func papersMeta(papers []Paper) []any {
	out := make([]any, len(papers))
	for i, p := range papers {
		out[i] = map[string]any{
			"title":     p.Title,
			"authors":   stringsMeta(p.Authors),
			"abstract":  p.Abstract,
			"published": p.Published,
			"url":       p.URL,
		}
	}
	return out
}

func summariesMeta(summaries []Summary) []any {
	out := make([]any, len(summaries))
	for i, s := range summaries {
		out[i] = map[string]any{
			"paper_title": s.PaperTitle,
			"summary":     s.Summary,
			"authors":     stringsMeta(s.Authors),
			"url":         s.URL,
		}
	}
	return out
}

func stringsMeta(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
