package graph

import (
	"errors"
	"fmt"
)

// Builder assembles a Graph. It collects every structural problem it sees
// and reports them together from Build, so callers get one complete list
// instead of fixing errors one at a time.
//
// Example:
//
//	b := graph.NewBuilder()
//	_ = b.AddNode("plan", planNode)
//	_ = b.AddNode("act", actNode)
//	_ = b.AddEdge("plan", "act")
//	_ = b.AddConditionalEdge("act", router, []string{"plan", graph.End}, graph.End)
//	b.SetEntry("plan")
//	g, err := b.Build()
type Builder struct {
	nodes    map[string]Node
	order    []string
	edges    map[string]Edge
	entry    string
	problems []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

// AddNode registers node under name.
//
// Names must be non-empty, unique and different from End.
func (b *Builder) AddNode(name string, node Node) error {
	switch {
	case name == "":
		return b.fail(CodeEmptyNodeID, "node name cannot be empty", "")
	case name == End:
		return b.fail(CodeReservedNodeID, "node name is reserved for the terminal sentinel", name)
	case node == nil:
		return b.fail(CodeNilNode, "node cannot be nil", name)
	}
	if _, exists := b.nodes[name]; exists {
		return b.fail(CodeDuplicateNode, "duplicate node name", name)
	}
	b.nodes[name] = node
	b.order = append(b.order, name)
	return nil
}

// AddEdge adds a fixed transition from one node to another (or to End).
func (b *Builder) AddEdge(from, to string) error {
	if from == "" || to == "" {
		return b.fail(CodeEmptyNodeID, "edge endpoints cannot be empty", from)
	}
	return b.addEdge(Edge{From: from, To: to})
}

// AddConditionalEdge routes from a node through router. The router may only
// pick from targets; fallback is used for anything else and defaults to the
// first target when empty.
func (b *Builder) AddConditionalEdge(from string, router Router, targets []string, fallback string) error {
	if from == "" {
		return b.fail(CodeEmptyNodeID, "edge source cannot be empty", "")
	}
	if router == nil {
		return b.fail(CodeNilRouter, "conditional edge requires a router", from)
	}
	if len(targets) == 0 {
		return b.fail(CodeNoTargets, "conditional edge requires at least one target", from)
	}
	if fallback == "" {
		fallback = targets[0]
	}
	declared := false
	for _, t := range targets {
		if t == fallback {
			declared = true
			break
		}
	}
	if !declared {
		return b.fail(CodeUnknownTarget, fmt.Sprintf("fallback %q is not one of the declared targets", fallback), from)
	}
	return b.addEdge(Edge{
		From:    from,
		Router:  router,
		Targets: append([]string(nil), targets...),
		Default: fallback,
	})
}

func (b *Builder) addEdge(e Edge) error {
	if _, exists := b.edges[e.From]; exists {
		return b.fail(CodeDuplicateEdge, "node already has an outgoing edge", e.From)
	}
	b.edges[e.From] = e
	return nil
}

// SetEntry sets the node that runs first.
func (b *Builder) SetEntry(name string) {
	b.entry = name
}

// Build validates the graph and returns an immutable Graph. All problems
// found are returned joined; each is a *BuildError.
func (b *Builder) Build() (*Graph, error) {
	problems := append([]error(nil), b.problems...)
	add := func(code, msg, node string) {
		problems = append(problems, &BuildError{Code: code, Message: msg, NodeID: node})
	}

	switch {
	case b.entry == "":
		add(CodeNoEntry, "entry node not set", "")
	case b.nodes[b.entry] == nil:
		add(CodeEntryNotFound, fmt.Sprintf("entry node %q is not registered", b.entry), b.entry)
	}

	for _, from := range sortedKeys(b.edges) {
		e := b.edges[from]
		if _, ok := b.nodes[from]; !ok {
			add(CodeUnknownSource, fmt.Sprintf("edge source %q is not registered", from), from)
		}
		for _, to := range e.Destinations() {
			if to == End {
				continue
			}
			if _, ok := b.nodes[to]; !ok {
				add(CodeUnknownTarget, fmt.Sprintf("edge target %q is not registered", to), from)
			}
		}
	}

	for _, name := range b.order {
		if _, ok := b.edges[name]; !ok {
			add(CodeMissingEdge, "node has no outgoing edge", name)
		}
	}

	if len(problems) > 0 {
		return nil, errors.Join(problems...)
	}

	g := &Graph{
		entry: b.entry,
		nodes: make(map[string]Node, len(b.nodes)),
		edges: make(map[string]Edge, len(b.edges)),
		order: append([]string(nil), b.order...),
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = v
	}
	g.warnings = g.unreachable()
	return g, nil
}

func (b *Builder) fail(code, msg, node string) error {
	err := &BuildError{Code: code, Message: msg, NodeID: node}
	b.problems = append(b.problems, err)
	return err
}
