package solver

// depGraph is the dependency graph between the resolved families of a
// solved phase.
type depGraph struct {
	// nodes maps family name to its node
	nodes map[string]*depNode
	// order is the insertion order, which ranks families when sorting
	order []string
}

// depNode is a single resolved family.
type depNode struct {
	Variant *Variant
	Deps    []string // families required directly, in requirement order
}

func newDepGraph() *depGraph {
	return &depGraph{nodes: make(map[string]*depNode)}
}

// addNode adds a resolved variant. Edges to families never added are
// ignored.
func (g *depGraph) addNode(v *Variant, deps []string) {
	if _, ok := g.nodes[v.Family]; !ok {
		g.order = append(g.order, v.Family)
	}
	g.nodes[v.Family] = &depNode{Variant: v, Deps: deps}
}

func (g *depGraph) edges(family string, live map[string]bool) []string {
	var out []string
	for _, dep := range g.nodes[family].Deps {
		if live[dep] && g.nodes[dep] != nil {
			out = append(out, dep)
		}
	}
	return out
}

// detectCycle strips leaves then roots until nothing changes. If any
// families survive, it returns one cycle through them with the first
// family repeated at the end; otherwise nil.
func (g *depGraph) detectCycle() []*Variant {
	live := make(map[string]bool, len(g.nodes))
	for _, f := range g.order {
		live[f] = true
	}

	for changed := true; changed; {
		changed = false

		for _, f := range g.order {
			if live[f] && len(g.edges(f, live)) == 0 {
				live[f] = false
				changed = true
			}
		}

		hasParent := make(map[string]bool)
		for _, f := range g.order {
			if live[f] {
				for _, dep := range g.edges(f, live) {
					hasParent[dep] = true
				}
			}
		}
		for _, f := range g.order {
			if live[f] && !hasParent[f] {
				live[f] = false
				changed = true
			}
		}
	}

	start := ""
	for _, f := range g.order {
		if live[f] {
			start = f
			break
		}
	}
	if start == "" {
		return nil
	}

	// Every survivor has an edge to another survivor, so following the
	// first one must revisit a family.
	var path []string
	seen := make(map[string]int)
	for f := start; ; f = g.edges(f, live)[0] {
		if i, ok := seen[f]; ok {
			chain := make([]*Variant, 0, len(path)-i+1)
			for _, name := range path[i:] {
				chain = append(chain, g.nodes[name].Variant)
			}
			return append(chain, g.nodes[f].Variant)
		}
		seen[f] = len(path)
		path = append(path, f)
	}
}

// topologicalSort returns the variants with dependencies before
// dependents. Families are visited in insertion order, so earlier
// families come as early as their dependencies allow. The graph must be
// acyclic.
func (g *depGraph) topologicalSort() []*Variant {
	sorted := make([]*Variant, 0, len(g.nodes))
	visited := make(map[string]bool)

	var visit func(family string)
	visit = func(family string) {
		node := g.nodes[family]
		if node == nil || visited[family] {
			return
		}
		visited[family] = true
		for _, dep := range node.Deps {
			visit(dep)
		}
		sorted = append(sorted, node.Variant)
	}

	for _, f := range g.order {
		visit(f)
	}
	return sorted
}
