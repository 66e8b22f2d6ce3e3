package solver

import (
	"bufio"
	"fmt"
	"io"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// NodeKind classifies a diagnostic graph node.
type NodeKind string

const (
	NodeRequest     NodeKind = "request"
	NodeRequirement NodeKind = "requirement"
	NodeVariant     NodeKind = "variant"
)

// EdgeKind classifies a diagnostic graph edge.
type EdgeKind string

const (
	EdgeDepends   EdgeKind = "depends"
	EdgeConflicts EdgeKind = "conflicts"
	EdgeCycle     EdgeKind = "cycle"
)

// Node is a resolved variant or a requirement still being resolved.
type Node struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Kind   NodeKind `json:"kind"`
	Failed bool     `json:"failed,omitempty"`
}

// Edge connects two nodes by ID.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// Graph is a diagnostic view of one phase: what was requested, what each
// scope resolved to, what was extracted, and where it failed.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	index map[string]int
	edges map[Edge]bool
}

func newGraph() *Graph {
	return &Graph{
		index: make(map[string]int),
		edges: make(map[Edge]bool),
	}
}

func (g *Graph) addNode(kind NodeKind, label string, failed bool) string {
	id := string(kind) + ":" + label
	if i, ok := g.index[id]; ok {
		g.Nodes[i].Failed = g.Nodes[i].Failed || failed
		return id
	}
	g.index[id] = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{ID: id, Label: label, Kind: kind, Failed: failed})
	return id
}

func (g *Graph) addEdge(from, to string, kind EdgeKind) {
	if from == "" || to == "" || from == to {
		return
	}
	e := Edge{From: from, To: to, Kind: kind}
	if g.edges[e] {
		return
	}
	g.edges[e] = true
	g.Edges = append(g.Edges, e)
}

func (g *Graph) requirementNode(r version.Requirement, failed bool) string {
	return g.addNode(NodeRequirement, r.String(), failed)
}

func (g *Graph) variantNode(v *Variant, failed bool) string {
	return g.addNode(NodeVariant, v.String(), failed)
}

// buildGraph renders p. Failed phases are pruned to the nodes leading to
// the failure.
func buildGraph(request []version.Requirement, p *phase) *Graph {
	g := newGraph()
	root := g.addNode(NodeRequest, "request", false)

	scopeNodes := make(map[string]string)
	for _, sc := range p.scopes {
		if v := sc.solvedVariant(); v != nil {
			scopeNodes[sc.family()] = g.variantNode(v, false)
			continue
		}
		switch s := sc.(type) {
		case *concreteScope:
			scopeNodes[s.family()] = g.addNode(NodeRequirement, s.String(), false)
		case *excludedScope:
			scopeNodes[s.family()] = g.requirementNode(s.req, false)
		}
	}

	for _, r := range request {
		id := g.requirementNode(r, false)
		g.addEdge(root, id, EdgeDepends)
		g.addEdge(id, scopeNodes[r.Family], EdgeDepends)
	}

	for _, e := range p.extractions {
		id := g.requirementNode(e.req, false)
		g.addEdge(scopeNodes[e.source], id, EdgeDepends)
		g.addEdge(id, scopeNodes[e.req.Family], EdgeDepends)
	}

	switch f := p.failure.(type) {
	case nil:
		return g
	case *TotalReduction:
		if f.Unmatched != nil {
			g.requirementNode(*f.Unmatched, true)
		}
		for _, r := range f.Reductions {
			v := g.variantNode(r.Variant, true)
			dep := g.requirementNode(r.Dependency, false)
			conflicting := g.requirementNode(r.Conflicting, true)
			g.addEdge(scopeNodes[r.Variant.Family], v, EdgeDepends)
			g.addEdge(v, dep, EdgeDepends)
			g.addEdge(dep, conflicting, EdgeConflicts)
			g.addEdge(scopeNodes[r.Conflicting.Family], conflicting, EdgeDepends)
		}
	case *DependencyConflicts:
		for _, c := range f.Conflicts {
			a := g.requirementNode(c.Dependency, true)
			b := g.requirementNode(c.Conflicting, true)
			g.addEdge(a, b, EdgeConflicts)
			g.addEdge(scopeNodes[c.Conflicting.Family], b, EdgeDepends)
		}
	case *Cycle:
		for i, v := range f.Variants {
			id := g.variantNode(v, true)
			if i > 0 {
				g.addEdge(g.variantNode(f.Variants[i-1], true), id, EdgeCycle)
			}
		}
	}

	g.prune()
	return g
}

// prune keeps only failed nodes and the nodes with a path to one.
func (g *Graph) prune() {
	parents := make(map[string][]string)
	for _, e := range g.Edges {
		parents[e.To] = append(parents[e.To], e.From)
	}

	keep := make(map[string]bool)
	var queue []string
	for _, n := range g.Nodes {
		if n.Failed {
			keep[n.ID] = true
			queue = append(queue, n.ID)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, p := range parents[id] {
			if !keep[p] {
				keep[p] = true
				queue = append(queue, p)
			}
		}
	}

	nodes := g.Nodes[:0]
	g.index = make(map[string]int)
	for _, n := range g.Nodes {
		if keep[n.ID] {
			g.index[n.ID] = len(nodes)
			nodes = append(nodes, n)
		}
	}
	g.Nodes = nodes

	edges := g.Edges[:0]
	for _, e := range g.Edges {
		if keep[e.From] && keep[e.To] {
			edges = append(edges, e)
		} else {
			delete(g.edges, e)
		}
	}
	g.Edges = edges
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// WriteDOT writes g in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph g {")
	fmt.Fprintln(bw, "  node [shape=box];")
	for _, n := range g.Nodes {
		attrs := fmt.Sprintf("label=%q", n.Label)
		switch {
		case n.Failed:
			attrs += ", style=filled, fillcolor=\"#f2b8b5\""
		case n.Kind == NodeVariant:
			attrs += ", style=filled, fillcolor=\"#c8e6c9\""
		case n.Kind == NodeRequest:
			attrs += ", shape=ellipse"
		}
		fmt.Fprintf(bw, "  %q [%s];\n", n.ID, attrs)
	}
	for _, e := range g.Edges {
		attrs := ""
		switch e.Kind {
		case EdgeConflicts:
			attrs = " [style=dashed, color=red, label=\"conflicts\"]"
		case EdgeCycle:
			attrs = " [color=red, penwidth=2]"
		}
		fmt.Fprintf(bw, "  %q -> %q%s;\n", e.From, e.To, attrs)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
