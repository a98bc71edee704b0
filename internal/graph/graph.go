package graph

import (
	"sort"
)

// CellSource pairs a cell's document position with its static analysis.
type CellSource struct {
	Index       int
	Definitions map[string]bool
	References  map[string]bool
}

// Node is one code cell in the dependency graph.
type Node struct {
	Index       int
	Definitions map[string]bool
	References  map[string]bool

	upstream   map[int]bool // direct producers
	downstream map[int]bool // direct consumers

	// sharedNames records, per direct upstream cell, the names that
	// create the edge.
	sharedNames map[int][]string

	// unresolved are references that no earlier cell had defined when
	// this cell was reached in the document-order scan.
	unresolved []string
}

// Graph is the producer/consumer graph over a document's code cells.
// Edges always point from a lower index to a higher one, so the graph is
// acyclic by construction and document order is a valid topological order.
type Graph struct {
	nodes map[int]*Node
	order []int
}

// Build scans cells in document order, maintaining a running map of
// name -> most recent defining cell. A reference to a name in the map
// creates an edge from its latest definer; a redefinition repoints the
// map without rewiring earlier consumers.
func Build(cells []CellSource) *Graph {
	g := &Graph{nodes: make(map[int]*Node, len(cells))}

	ordered := make([]CellSource, len(cells))
	copy(ordered, cells)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	latestDefiner := make(map[string]int)

	for _, cell := range ordered {
		node := &Node{
			Index:       cell.Index,
			Definitions: cell.Definitions,
			References:  cell.References,
			upstream:    make(map[int]bool),
			downstream:  make(map[int]bool),
			sharedNames: make(map[int][]string),
		}
		g.nodes[cell.Index] = node
		g.order = append(g.order, cell.Index)

		for _, name := range sortedNames(cell.References) {
			definer, ok := latestDefiner[name]
			if !ok {
				node.unresolved = append(node.unresolved, name)
				continue
			}
			if definer == cell.Index {
				continue
			}
			node.upstream[definer] = true
			node.sharedNames[definer] = append(node.sharedNames[definer], name)
			g.nodes[definer].downstream[cell.Index] = true
		}

		for name := range cell.Definitions {
			latestDefiner[name] = cell.Index
		}
	}

	return g
}

// Node returns the node for a cell index, or nil if the index is not in
// the graph.
func (g *Graph) Node(index int) *Node {
	return g.nodes[index]
}

// Indices returns all cell indices in document order.
func (g *Graph) Indices() []int {
	out := make([]int, len(g.order))
	copy(out, g.order)
	return out
}

// DirectUpstream returns the cells this cell directly depends on, sorted.
func (g *Graph) DirectUpstream(index int) []int {
	node := g.nodes[index]
	if node == nil {
		return nil
	}
	return sortedIndices(node.upstream)
}

// DirectDownstream returns the cells that directly depend on this cell, sorted.
func (g *Graph) DirectDownstream(index int) []int {
	node := g.nodes[index]
	if node == nil {
		return nil
	}
	return sortedIndices(node.downstream)
}

// Upstream returns every cell this cell transitively depends on, sorted.
func (g *Graph) Upstream(index int) []int {
	return g.closure(index, func(n *Node) map[int]bool { return n.upstream })
}

// Downstream returns every cell transitively affected by this cell, sorted.
func (g *Graph) Downstream(index int) []int {
	return g.closure(index, func(n *Node) map[int]bool { return n.downstream })
}

// SharedNames returns the names that create the direct edge from
// upstream to index, sorted lexically. Empty when no direct edge exists.
func (g *Graph) SharedNames(upstream, index int) []string {
	node := g.nodes[index]
	if node == nil {
		return nil
	}
	names := make([]string, len(node.sharedNames[upstream]))
	copy(names, node.sharedNames[upstream])
	sort.Strings(names)
	return names
}

// Unresolved returns references of a cell that had no definer at or
// before it in document order, sorted lexically.
func (g *Graph) Unresolved(index int) []string {
	node := g.nodes[index]
	if node == nil {
		return nil
	}
	names := make([]string, len(node.unresolved))
	copy(names, node.unresolved)
	sort.Strings(names)
	return names
}

func (g *Graph) closure(index int, edges func(*Node) map[int]bool) []int {
	start := g.nodes[index]
	if start == nil {
		return nil
	}

	visited := make(map[int]bool)
	queue := sortedIndices(edges(start))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		if node := g.nodes[current]; node != nil {
			queue = append(queue, sortedIndices(edges(node))...)
		}
	}

	return sortedIndices(visited)
}

func sortedIndices(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for idx := range set {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
