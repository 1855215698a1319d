package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Metadata keys written by critic nodes and read by QualityGate.
const (
	MetaScore           = "score"
	MetaExplanation     = "explanation"
	MetaNeedsRefinement = "needs_refinement"
	MetaCritique        = "critique"

	// MetaScoreParsed is false when MetaScore holds the neutral fallback.
	MetaScoreParsed = "score_parsed"
)

// DefaultNeutralScore is the score assumed when a critique cannot be read.
const DefaultNeutralScore = 5.0

// Critique is the structured form of a critic's output.
type Critique struct {
	Score           float64
	Explanation     string
	NeedsRefinement bool

	// Parsed is false when the score fell back to the neutral value.
	Parsed bool
}

// Metadata returns the update a critic node applies for c. raw is kept
// under MetaCritique for inspection.
func (c Critique) Metadata(raw string) map[string]any {
	return map[string]any{
		MetaScore:           c.Score,
		MetaExplanation:     c.Explanation,
		MetaNeedsRefinement: c.NeedsRefinement,
		MetaCritique:        raw,
		MetaScoreParsed:     c.Parsed,
	}
}

var (
	fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	scoreRe = regexp.MustCompile(`"(?:quality_)?score"\s*:\s*"?(\d+(?:\.\d+)?)`)
)

type critiqueFields struct {
	Score           *float64 `mapstructure:"score"`
	QualityScore    *float64 `mapstructure:"quality_score"`
	Explanation     string   `mapstructure:"explanation"`
	Critique        string   `mapstructure:"critique"`
	Feedback        string   `mapstructure:"feedback"`
	NeedsRefinement *bool    `mapstructure:"needs_refinement"`
}

// ParseCritique reads a critic's raw reply.
//
// The reply may be wrapped in a ```json fence. A JSON object is read for
// "score" (or "quality_score"), "explanation" (or "critique", "feedback")
// and "needs_refinement". When the JSON is unusable a quoted score key is
// searched for in the text. When no score can be found at all the result
// carries the neutral score, Parsed false and NeedsRefinement true, so a
// malformed critique neither accepts nor rejects on its own.
//
// A missing needs_refinement field reads as true.
func ParseCritique(raw string, neutral float64) Critique {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	if f, ok := decodeCritique(text); ok {
		c := Critique{NeedsRefinement: true, Parsed: true}
		switch {
		case f.Score != nil:
			c.Score = *f.Score
		case f.QualityScore != nil:
			c.Score = *f.QualityScore
		default:
			c.Score, c.Parsed = neutral, false
		}
		c.Explanation = firstNonEmpty(f.Explanation, f.Critique, f.Feedback)
		if f.NeedsRefinement != nil {
			c.NeedsRefinement = *f.NeedsRefinement
		}
		return c
	}

	if m := scoreRe.FindStringSubmatch(text); m != nil {
		if score, err := strconv.ParseFloat(m[1], 64); err == nil {
			return Critique{Score: score, Explanation: text, NeedsRefinement: true, Parsed: true}
		}
	}

	return Critique{Score: neutral, Explanation: text, NeedsRefinement: true}
}

func decodeCritique(text string) (critiqueFields, bool) {
	var f critiqueFields
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return f, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return f, false
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &f,
	})
	if err != nil {
		return f, false
	}
	if err := dec.Decode(obj); err != nil {
		return f, false
	}
	return f, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// CritiqueFrom reads the critique stored in s. A score that is missing or
// cannot be coerced to a number reads as neutral, as does one flagged by
// MetaScoreParsed as a fallback.
func CritiqueFrom(s State, neutral float64) Critique {
	c := Critique{Score: neutral, NeedsRefinement: true}
	if score, ok := s.MetaFloat(MetaScore); ok {
		c.Score, c.Parsed = score, true
	}
	if parsed, ok := s.MetaBool(MetaScoreParsed); ok && !parsed {
		c.Parsed = false
	}
	if needs, ok := s.MetaBool(MetaNeedsRefinement); ok {
		c.NeedsRefinement = needs
	}
	c.Explanation, _ = s.MetaString(MetaExplanation)
	return c
}

// Verdict is the QualityGate's judgement of the latest critique.
type Verdict int

const (
	// Refine sends the artifact back to the refiner.
	Refine Verdict = iota + 1

	// Accepted means a score read from the critique is strictly above the
	// threshold.
	Accepted

	// Approved means the critic reported no refinement is needed.
	Approved

	// Exhausted means the refinement budget is spent.
	Exhausted
)

// String returns the lower-case verdict name.
func (v Verdict) String() string {
	switch v {
	case Refine:
		return "refine"
	case Accepted:
		return "accepted"
	case Approved:
		return "approved"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// CriticFunc produces a raw critique of the current state, usually by
// asking a language model to score the latest artifact.
type CriticFunc func(ctx context.Context, state State) (string, error)

// NewCriticNode wraps fn as a node that parses its reply with ParseCritique
// and stores the result in metadata. A zero neutral selects DefaultNeutralScore.
func NewCriticNode(fn CriticFunc, neutral float64) Node {
	if neutral == 0 {
		neutral = DefaultNeutralScore
	}
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		raw, err := fn(ctx, s)
		if err != nil {
			return Fail(err)
		}
		c := ParseCritique(raw, neutral)
		return NodeResult{Update: Update{
			Metadata: c.Metadata(raw),
			Log: []LogEntry{{
				Source:  "critic",
				Role:    RoleAssistant,
				Content: fmt.Sprintf("Quality: %.1f/10. %s", c.Score, c.Explanation),
			}},
		}}
	})
}

// QualityGate is the producer → critic → (refiner → critic)* loop.
//
// After every critique the gate leaves the loop when the score is strictly
// greater than Threshold, when the critic says no refinement is needed, or
// when the refinement budget is spent. Otherwise the refiner runs and the
// critic scores the result again.
//
// Example:
//
//	gate := graph.QualityGate{Threshold: 7.0, MaxIterations: 3}
//	_ = b.AddNode("draft", draftNode)
//	_ = gate.Install(b, "draft", criticNode, refinerNode)
//	b.SetEntry("draft")
type QualityGate struct {
	// Critic and Refiner are node names. Defaults: "critic", "refiner".
	Critic  string
	Refiner string

	// Exit is where the loop goes when it ends. Default: End.
	Exit string

	// Threshold is the score a critique must exceed to be accepted.
	Threshold float64

	// MaxIterations is the number of critiques allowed, so the refiner runs
	// at most MaxIterations-1 times. Values below 1 are treated as 1.
	MaxIterations int

	// NeutralScore is assumed for unreadable critiques. Default: DefaultNeutralScore.
	NeutralScore float64
}

func (g QualityGate) withDefaults() QualityGate {
	if g.Critic == "" {
		g.Critic = "critic"
	}
	if g.Refiner == "" {
		g.Refiner = "refiner"
	}
	if g.Exit == "" {
		g.Exit = End
	}
	if g.MaxIterations < 1 {
		g.MaxIterations = 1
	}
	if g.NeutralScore == 0 {
		g.NeutralScore = DefaultNeutralScore
	}
	return g
}

// Verdict judges the critique stored in s. It is pure.
func (g QualityGate) Verdict(s State) Verdict {
	g = g.withDefaults()
	c := CritiqueFrom(s, g.NeutralScore)
	switch {
	case c.Parsed && c.Score > g.Threshold:
		return Accepted
	case !c.NeedsRefinement:
		return Approved
	case s.IterationCount+1 >= g.MaxIterations:
		return Exhausted
	default:
		return Refine
	}
}

// Route implements Router for the critic's outgoing edge.
func (g QualityGate) Route(s State) Decision {
	g = g.withDefaults()
	v := g.Verdict(s)
	if v == Refine {
		return Decision{Target: g.Refiner, Matched: v.String()}
	}
	return Decision{Target: g.Exit, Matched: v.String()}
}

// Install registers the critic and refiner nodes on b and wires
// producer → critic, critic → {refiner, Exit}, refiner → critic.
// producer must be a node registered on b separately. The refiner is
// wrapped so that every invocation adds exactly one to IterationCount.
func (g QualityGate) Install(b *Builder, producer string, critic, refiner Node) error {
	g = g.withDefaults()
	if err := b.AddNode(g.Critic, critic); err != nil {
		return err
	}
	if refiner != nil {
		refiner = countIteration(refiner)
	}
	if err := b.AddNode(g.Refiner, refiner); err != nil {
		return err
	}
	if err := b.AddEdge(producer, g.Critic); err != nil {
		return err
	}
	if err := b.AddConditionalEdge(g.Critic, g, []string{g.Refiner, g.Exit}, g.Refiner); err != nil {
		return err
	}
	return b.AddEdge(g.Refiner, g.Critic)
}

// countIteration makes node's successful updates carry exactly one iteration.
func countIteration(node Node) Node {
	return NodeFunc(func(ctx context.Context, s State) NodeResult {
		res := node.Run(ctx, s)
		if res.Err == nil {
			res.Update.Iterations = 1
		}
		return res
	})
}
