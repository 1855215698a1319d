package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is a validated, read-only workflow topology. It is safe to share
// between concurrent runs.
type Graph struct {
	entry    string
	nodes    map[string]Node
	edges    map[string]Edge
	order    []string
	warnings []string
}

// Entry returns the name of the first node.
func (g *Graph) Entry() string { return g.entry }

// Nodes returns node names in registration order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Node looks up a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Edge returns the outgoing edge of a node.
func (g *Graph) Edge(from string) (Edge, bool) {
	e, ok := g.edges[from]
	return e, ok
}

// Warnings lists non-fatal problems found at build time, such as nodes
// that cannot be reached from the entry.
func (g *Graph) Warnings() []string {
	return append([]string(nil), g.warnings...)
}

// unreachable walks the graph from the entry and reports nodes never visited.
func (g *Graph) unreachable() []string {
	seen := map[string]bool{g.entry: true}
	queue := []string{g.entry}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		e, ok := g.edges[cur]
		if !ok {
			continue
		}
		for _, next := range e.Destinations() {
			if next == End || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}

	var out []string
	for _, name := range g.order {
		if !seen[name] {
			out = append(out, fmt.Sprintf("node %q is unreachable from entry %q", name, g.entry))
		}
	}
	return out
}

// Mermaid renders the graph as a Mermaid flowchart.
func (g *Graph) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")
	fmt.Fprintf(&sb, "    __start__((start)) --> %s\n", g.entry)
	for _, from := range g.order {
		e := g.edges[from]
		if !e.Conditional() {
			fmt.Fprintf(&sb, "    %s --> %s\n", from, mermaidID(e.To))
			continue
		}
		for _, to := range e.Targets {
			label := ""
			if to == e.Default {
				label = "|default|"
			}
			fmt.Fprintf(&sb, "    %s -.->%s %s\n", from, label, mermaidID(to))
		}
	}
	return sb.String()
}

func mermaidID(name string) string {
	if name == End {
		return "__end__((end))"
	}
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
