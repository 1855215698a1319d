package supervisor

import (
	"github.com/dshills/loopgraph/graph"
)

// Keywords returns the supervisor's decision grammar. Rules are tried in
// order and the first substring match wins; anything else goes to the
// researcher.
func Keywords() graph.KeywordRouter {
	return graph.KeywordRouter{
		Text: func(s graph.State) string {
			v, _ := s.MetaString(KeyDecision)
			return v
		},
		Rules: []graph.KeywordRule{
			{Keyword: "finish", Target: graph.End},
			{Keyword: "research", Target: NodeResearcher},
			{Keyword: "analy", Target: NodeAnalyst},
			{Keyword: "synth", Target: NodeSynthesizer},
		},
		Default: NodeResearcher,
	}
}

// Router routes the supervisor's outgoing edge. A spent iteration budget
// forces the synthesizer and an existing final output ends the run, both
// regardless of what the supervisor said. Otherwise Keywords decides.
type Router struct {
	MaxIterations int
}

// Route implements graph.Router.
func (r Router) Route(s graph.State) graph.Decision {
	if s.IterationCount >= r.MaxIterations {
		return graph.Decision{Target: NodeSynthesizer, Matched: "max_iterations"}
	}
	if s.HasFinalOutput() {
		return graph.Decision{Target: graph.End, Matched: "final_output"}
	}
	return Keywords().Route(s)
}
