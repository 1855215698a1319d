// Package research implements the research-synthesis workflow:
//
//	planner → searcher → summarizer → synthesizer → critic ⇄ reflector → finalize
//
// The critic and reflector form a graph.QualityGate. A synthesis leaves the
// loop when the critic scores it above the threshold, approves it, or the
// iteration budget runs out; finalize then publishes it as the final output.
package research

import (
	"errors"
	"fmt"
	"time"

	"github.com/dshills/loopgraph/graph"
	"github.com/dshills/loopgraph/graph/model"
)

// Node names.
const (
	NodePlanner     = "planner"
	NodeSearcher    = "searcher"
	NodeSummarizer  = "summarizer"
	NodeSynthesizer = "synthesizer"
	NodeCritic      = "critic"
	NodeReflector   = "reflector"
	NodeFinalize    = "finalize"
)

// Metadata keys written by the workflow.
const (
	KeySearchPlan = "search_plan"
	KeyPapers     = "papers"
	KeySummaries  = "summaries"
	KeySynthesis  = "synthesis"
	KeyReflection = "reflection"
)

// Defaults.
const (
	DefaultThreshold     = 7.0
	DefaultMaxIterations = 3
	DefaultMaxPapers     = 10
	DefaultMaxSummaries  = 5
)

// Models assigns a chat model to each stage. Stages left nil use Default.
type Models struct {
	Default     model.ChatModel
	Planner     model.ChatModel
	Summarizer  model.ChatModel
	Synthesizer model.ChatModel
	Critic      model.ChatModel
	Reflector   model.ChatModel
}

func (m Models) resolve() (Models, error) {
	for _, slot := range []*model.ChatModel{&m.Planner, &m.Summarizer, &m.Synthesizer, &m.Critic, &m.Reflector} {
		if *slot == nil {
			*slot = m.Default
		}
		if *slot == nil {
			return m, errors.New("research: every stage needs a chat model (set Models.Default)")
		}
	}
	return m, nil
}

// Config tunes the workflow.
type Config struct {
	// Threshold is the critic score a synthesis must exceed.
	Threshold float64

	// MaxIterations bounds the number of critiques.
	MaxIterations int

	// NeutralScore is assumed when a critique cannot be parsed.
	NeutralScore float64

	// MaxPapers is passed to the searcher.
	MaxPapers int

	// MaxSummaries is how many of the found papers get summarized.
	MaxSummaries int

	// Retry, when MaxAttempts > 1, wraps every model-backed node with
	// graph.WithRetry using model.IsRetryable.
	Retry graph.RetryPolicy

	// NodeTimeout bounds a single node invocation. Zero disables it.
	NodeTimeout time.Duration
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{
		Threshold:     DefaultThreshold,
		MaxIterations: DefaultMaxIterations,
		NeutralScore:  graph.DefaultNeutralScore,
		MaxPapers:     DefaultMaxPapers,
		MaxSummaries:  DefaultMaxSummaries,
	}
}

// Workflow builds research graphs.
type Workflow struct {
	models   Models
	searcher Searcher
	cfg      Config
}

// New validates its collaborators and returns a Workflow. Zero Config
// fields take their defaults.
func New(models Models, searcher Searcher, cfg Config) (*Workflow, error) {
	models, err := models.resolve()
	if err != nil {
		return nil, err
	}
	if searcher == nil {
		return nil, errors.New("research: searcher is required")
	}

	def := DefaultConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.NeutralScore == 0 {
		cfg.NeutralScore = def.NeutralScore
	}
	if cfg.MaxPapers == 0 {
		cfg.MaxPapers = def.MaxPapers
	}
	if cfg.MaxSummaries == 0 {
		cfg.MaxSummaries = def.MaxSummaries
	}
	if cfg.Retry.MaxAttempts > 1 {
		if cfg.Retry.Retryable == nil {
			cfg.Retry.Retryable = model.IsRetryable
		}
		if err := cfg.Retry.Validate(); err != nil {
			return nil, fmt.Errorf("research: %w", err)
		}
	}

	return &Workflow{models: models, searcher: searcher, cfg: cfg}, nil
}

// Gate returns the quality gate guarding the synthesis.
func (w *Workflow) Gate() graph.QualityGate {
	return graph.QualityGate{
		Critic:        NodeCritic,
		Refiner:       NodeReflector,
		Exit:          NodeFinalize,
		Threshold:     w.cfg.Threshold,
		MaxIterations: w.cfg.MaxIterations,
		NeutralScore:  w.cfg.NeutralScore,
	}
}

// Graph assembles and validates the workflow graph.
func (w *Workflow) Graph() (*graph.Graph, error) {
	b := graph.NewBuilder()
	nodes := []struct {
		name string
		node graph.Node
	}{
		{NodePlanner, w.wrap(graph.NodeFunc(w.plan))},
		{NodeSearcher, w.wrap(graph.NodeFunc(w.search))},
		{NodeSummarizer, w.wrap(graph.NodeFunc(w.summarize))},
		{NodeSynthesizer, w.wrap(graph.NodeFunc(w.synthesize))},
		{NodeFinalize, graph.NodeFunc(finalize)},
	}
	var errs []error
	for _, n := range nodes {
		errs = append(errs, b.AddNode(n.name, n.node))
	}
	errs = append(errs,
		b.AddEdge(NodePlanner, NodeSearcher),
		b.AddEdge(NodeSearcher, NodeSummarizer),
		b.AddEdge(NodeSummarizer, NodeSynthesizer),
		w.Gate().Install(b, NodeSynthesizer,
			w.wrap(graph.NewCriticNode(w.critique, w.cfg.NeutralScore)),
			w.wrap(graph.NodeFunc(w.reflect))),
		b.AddEdge(NodeFinalize, graph.End),
	)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	b.SetEntry(NodePlanner)
	return b.Build()
}

func (w *Workflow) wrap(n graph.Node) graph.Node {
	if w.cfg.NodeTimeout > 0 {
		n = graph.WithTimeout(n, w.cfg.NodeTimeout)
	}
	if w.cfg.Retry.MaxAttempts > 1 {
		n = graph.WithRetry(n, w.cfg.Retry)
	}
	return n
}

// NewState returns the initial state for query.
func NewState(query string) graph.State {
	return graph.NewState(query, nil)
}

// Synthesis returns the current synthesis stored in s.
func Synthesis(s graph.State) string {
	v, _ := s.MetaString(KeySynthesis)
	return v
}

// Papers returns the papers stored in s.
func Papers(s graph.State) []Paper {
	var out []Paper
	s.MetaInto(KeyPapers, &out)
	return out
}

// Summaries returns the paper summaries stored in s.
func Summaries(s graph.State) []Summary {
	var out []Summary
	s.MetaInto(KeySummaries, &out)
	return out
}
