package graph

import "strings"

// Edge is the single outgoing transition of a node.
//
// A fixed edge has To set and no Router. A conditional edge has a Router
// whose decisions must fall inside Targets; any other decision is replaced
// by Default.
type Edge struct {
	// From is the source node ID.
	From string

	// To is the destination of a fixed edge.
	To string

	// Router decides the destination of a conditional edge.
	Router Router

	// Targets is the closed set of destinations the Router may pick.
	Targets []string

	// Default is used when the Router returns a target outside Targets.
	Default string
}

// Conditional reports whether the edge is routed at run time.
func (e Edge) Conditional() bool {
	return e.Router != nil
}

// Allows reports whether target is a declared destination of the edge.
func (e Edge) Allows(target string) bool {
	if !e.Conditional() {
		return target == e.To
	}
	for _, t := range e.Targets {
		if t == target {
			return true
		}
	}
	return false
}

// Destinations lists every node the edge can lead to.
func (e Edge) Destinations() []string {
	if !e.Conditional() {
		return []string{e.To}
	}
	return e.Targets
}

// Decision is the outcome of a routing evaluation.
type Decision struct {
	// Target is the chosen destination.
	Target string

	// Matched names the rule that produced the decision, if any.
	Matched string

	// Fallback is set when no rule matched and the router's default was used.
	Fallback bool
}

// Router chooses the next node from the current state.
// Routers must be pure: the same state yields the same decision.
type Router interface {
	Route(state State) Decision
}

// RouterFunc adapts a function returning a node name to the Router interface.
type RouterFunc func(state State) string

// Route implements Router.
func (f RouterFunc) Route(state State) Decision {
	return Decision{Target: f(state)}
}

// Predicate tests a state. Predicates should be pure.
type Predicate func(state State) bool

// Case pairs a predicate with the target chosen when it holds.
type Case struct {
	Name string
	When Predicate
	To   string
}

// SwitchRouter evaluates Cases in order and picks the first that holds.
type SwitchRouter struct {
	Cases   []Case
	Default string
}

// Route implements Router.
func (r SwitchRouter) Route(state State) Decision {
	for _, c := range r.Cases {
		if c.When != nil && c.When(state) {
			return Decision{Target: c.To, Matched: c.Name}
		}
	}
	return Decision{Target: r.Default, Fallback: true}
}

// KeywordRule maps a substring of a routing decision to a target.
type KeywordRule struct {
	Keyword string
	Target  string
}

// KeywordRouter routes on free text, typically an LLM's decision.
//
// The text is lower-cased and trimmed, then Rules are tried in order and the
// first rule whose keyword occurs in it wins. Order therefore matters: text
// that mentions two keywords goes to whichever rule is listed first. When no
// rule matches the router returns Default with Fallback set.
type KeywordRouter struct {
	// Text extracts the decision text from the state.
	Text func(State) string

	Rules   []KeywordRule
	Default string
}

// Route implements Router.
func (r KeywordRouter) Route(state State) Decision {
	if r.Text == nil {
		return Decision{Target: r.Default, Fallback: true}
	}
	return r.Parse(r.Text(state))
}

// Parse applies the keyword grammar to text.
func (r KeywordRouter) Parse(text string) Decision {
	norm := strings.ToLower(strings.TrimSpace(text))
	for _, rule := range r.Rules {
		kw := strings.ToLower(rule.Keyword)
		if kw != "" && strings.Contains(norm, kw) {
			return Decision{Target: rule.Target, Matched: rule.Keyword}
		}
	}
	return Decision{Target: r.Default, Fallback: true}
}

// Targets lists the distinct targets the router can produce, in rule order
// followed by the default.
func (r KeywordRouter) Targets() []string {
	seen := make(map[string]bool, len(r.Rules)+1)
	var out []string
	for _, rule := range r.Rules {
		if !seen[rule.Target] {
			seen[rule.Target] = true
			out = append(out, rule.Target)
		}
	}
	if r.Default != "" && !seen[r.Default] {
		out = append(out, r.Default)
	}
	return out
}
