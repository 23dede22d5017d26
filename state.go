package strata

import (
	"maps"
	"slices"
)

// RootID is the identifier of the implicit root node of every graph
const RootID = "@@root"

// StateKind enumerates the structural kinds of a state node
type StateKind int

const (
	// KindSimple is a state without children
	KindSimple StateKind = iota
	// KindHierarchical is a compound state with exactly one active child
	KindHierarchical
	// KindParallel is a compound state whose children are all active together
	KindParallel
	// KindRoot is the top of the graph
	KindRoot
)

func (k StateKind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindHierarchical:
		return "hierarchical"
	case KindParallel:
		return "parallel"
	case KindRoot:
		return "root"
	default:
		return "unknown"
	}
}

const noIndex = -1

// StateNode is one immutable vertex of a Graph.
// Links to parent and children are arena indices owned by the graph.
type StateNode struct {
	graph    *Graph
	index    int
	id       string
	name     string
	kind     StateKind
	parent   int
	children []int
	initial  int
	final    bool
	scope    bool
	inherits []string
	depth    int
}

// ID returns the unique identifier of the state
func (n *StateNode) ID() string {
	return n.id
}

// Name returns the short name of the state. For states declared through a
// GraphBuilder it equals the ID.
func (n *StateNode) Name() string {
	return n.name
}

// Kind returns the structural kind of the state
func (n *StateNode) Kind() StateKind {
	return n.kind
}

// Parent returns the parent state, or nil for the root
func (n *StateNode) Parent() *StateNode {
	if n.parent == noIndex {
		return nil
	}
	return n.graph.nodes[n.parent]
}

// Children returns the child states in declaration order
func (n *StateNode) Children() []*StateNode {
	out := make([]*StateNode, len(n.children))
	for i, c := range n.children {
		out[i] = n.graph.nodes[c]
	}
	return out
}

// Initial returns the declared initial child, or nil
func (n *StateNode) Initial() *StateNode {
	if n.initial == noIndex {
		return nil
	}
	return n.graph.nodes[n.initial]
}

// IsFinal reports whether the state marks its region as complete
func (n *StateNode) IsFinal() bool {
	return n.final
}

// IsCompound reports whether the state has children
func (n *StateNode) IsCompound() bool {
	return len(n.children) > 0
}

// IsParallel reports whether all children are active simultaneously
func (n *StateNode) IsParallel() bool {
	return n.kind == KindParallel
}

// IsRegion reports whether the state owns a region context scope
func (n *StateNode) IsRegion() bool {
	return n.scope
}

// Inherits returns the context keys this region delegates to its ancestors
func (n *StateNode) Inherits() []string {
	return slices.Clone(n.inherits)
}

// Depth returns the distance to the root
func (n *StateNode) Depth() int {
	return n.depth
}

// Equals compares two states by identity
func (n *StateNode) Equals(other *StateNode) bool {
	return other != nil && n.id == other.id
}

func (n *StateNode) String() string {
	return n.id
}

// Graph is the immutable state definition graph. All nodes are stored in a
// single arena; index 0 is always the root.
type Graph struct {
	nodes  []*StateNode
	byID   map[string]int
	byName map[string][]int
}

// Root returns the root node
func (g *Graph) Root() *StateNode {
	return g.nodes[0]
}

// Get returns the state with the given id
func (g *Graph) Get(id string) (*StateNode, error) {
	i, ok := g.byID[id]
	if !ok {
		return nil, NewStateNotFoundError(id)
	}
	return g.nodes[i], nil
}

// Has reports whether the graph contains the given id
func (g *Graph) Has(id string) bool {
	_, ok := g.byID[id]
	return ok
}

// Depth returns the distance of the state to the root
func (g *Graph) Depth(id string) (int, error) {
	n, err := g.Get(id)
	if err != nil {
		return 0, err
	}
	return n.depth, nil
}

// Children returns the ordered children of the state
func (g *Graph) Children(id string) ([]*StateNode, error) {
	n, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return n.Children(), nil
}

// Initial returns the declared initial child of the state, or nil if none was declared
func (g *Graph) Initial(id string) (*StateNode, error) {
	n, err := g.Get(id)
	if err != nil {
		return nil, err
	}
	return n.Initial(), nil
}

// Lookup resolves an id or, failing that, every state carrying the given short name
func (g *Graph) Lookup(nameOrID string) []*StateNode {
	if i, ok := g.byID[nameOrID]; ok {
		return []*StateNode{g.nodes[i]}
	}
	idx := g.byName[nameOrID]
	out := make([]*StateNode, len(idx))
	for i, n := range idx {
		out[i] = g.nodes[n]
	}
	return out
}

// States returns every node except the root in definition order
func (g *Graph) States() []*StateNode {
	return slices.Clone(g.nodes[1:])
}

// Len returns the number of nodes including the root
func (g *Graph) Len() int {
	return len(g.nodes)
}

// IsAncestor reports whether a is a strict ancestor of b
func (g *Graph) IsAncestor(a, b *StateNode) bool {
	for p := b.Parent(); p != nil; p = p.Parent() {
		if p.index == a.index {
			return true
		}
	}
	return false
}

// ParallelRegionOf returns the child of the nearest parallel ancestor that
// contains n, or nil when n is not inside a parallel state.
func (g *Graph) ParallelRegionOf(n *StateNode) *StateNode {
	last := n
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.kind == KindParallel {
			return last
		}
		last = p
	}
	return nil
}

// stateDecl is one declaration collected by GraphBuilder
type stateDecl struct {
	id       string
	name     string
	parent   string
	parallel bool
}

// GraphBuilder collects state declarations and produces an immutable Graph.
// Declarations may appear in any order; Build resolves them and reports every
// problem it finds.
type GraphBuilder struct {
	decls    []*stateDecl
	byID     map[string]*stateDecl
	initials [][2]string
	finals   []string
	regions  map[string][]string
	rootKeys []string
	problems []string
}

// NewGraphBuilder creates an empty builder
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{
		byID:    make(map[string]*stateDecl),
		regions: make(map[string][]string),
	}
}

func (b *GraphBuilder) declare(id, name, parent string, parallel bool) *stateDecl {
	if id == "" {
		b.problems = append(b.problems, "state id must not be empty")
		return nil
	}
	if id == RootID {
		b.problems = append(b.problems, "state id '"+RootID+"' is reserved")
		return nil
	}
	if _, exists := b.byID[id]; exists {
		b.problems = append(b.problems, "duplicate state '"+id+"'")
		return nil
	}
	d := &stateDecl{id: id, name: name, parent: parent, parallel: parallel}
	b.decls = append(b.decls, d)
	b.byID[id] = d
	return d
}

// State declares a state below parent. An empty parent places it under the root.
func (b *GraphBuilder) State(id, parent string) *GraphBuilder {
	b.declare(id, id, parent, false)
	return b
}

// Parallel declares a parallel state below parent
func (b *GraphBuilder) Parallel(id, parent string) *GraphBuilder {
	b.declare(id, id, parent, true)
	return b
}

// NamedState declares a state whose short name differs from its id
func (b *GraphBuilder) NamedState(id, name, parent string, parallel bool) *GraphBuilder {
	b.declare(id, name, parent, parallel)
	return b
}

// Initial declares child as the initial sub-state of parent
func (b *GraphBuilder) Initial(parent, child string) *GraphBuilder {
	b.initials = append(b.initials, [2]string{parent, child})
	return b
}

// Final marks a state as final
func (b *GraphBuilder) Final(id string) *GraphBuilder {
	b.finals = append(b.finals, id)
	return b
}

// Region marks a state as owning a region context scope. Keys listed in
// inherits are delegated to the nearest enclosing region owning them.
func (b *GraphBuilder) Region(id string, inherits ...string) *GraphBuilder {
	if id == RootID || id == "" {
		b.rootKeys = append(b.rootKeys, inherits...)
		return b
	}
	b.regions[id] = append(b.regions[id], inherits...)
	return b
}

// Build validates the declarations and produces the graph
func (b *GraphBuilder) Build() (*Graph, error) {
	issues := &issueList{component: "Graph", issues: slices.Clone(b.problems)}
	if len(b.decls) == 0 {
		issues.addf("state list is empty")
	}
	if len(b.rootKeys) > 0 {
		issues.addf("root region cannot inherit keys %v: no ancestor owns them", b.rootKeys)
	}

	for _, d := range b.decls {
		if d.parent == "" || d.parent == RootID {
			continue
		}
		if _, ok := b.byID[d.parent]; !ok {
			issues.addf("state '%s' references unknown parent '%s'", d.id, d.parent)
		}
	}
	for _, d := range b.decls {
		seen := map[string]bool{d.id: true}
		for p := d.parent; p != "" && p != RootID; {
			if seen[p] {
				issues.addf("state '%s' is part of a parent cycle", d.id)
				break
			}
			seen[p] = true
			pd, ok := b.byID[p]
			if !ok {
				break
			}
			p = pd.parent
		}
	}
	if err := issues.err(); err != nil {
		return nil, err
	}

	g := &Graph{
		byID:   make(map[string]int, len(b.decls)+1),
		byName: make(map[string][]int, len(b.decls)),
	}
	root := &StateNode{graph: g, index: 0, id: RootID, name: RootID, kind: KindRoot, parent: noIndex, initial: noIndex, scope: true}
	g.nodes = append(g.nodes, root)
	g.byID[RootID] = 0

	// Parents first so depth and child order are stable.
	placed := map[string]bool{}
	var place func(d *stateDecl)
	place = func(d *stateDecl) {
		if placed[d.id] {
			return
		}
		parentIdx := 0
		if d.parent != "" && d.parent != RootID {
			place(b.byID[d.parent])
			parentIdx = g.byID[d.parent]
		}
		placed[d.id] = true
		n := &StateNode{
			graph:   g,
			index:   len(g.nodes),
			id:      d.id,
			name:    d.name,
			kind:    KindSimple,
			parent:  parentIdx,
			initial: noIndex,
		}
		if d.parallel {
			n.kind = KindParallel
		}
		g.nodes = append(g.nodes, n)
		g.byID[n.id] = n.index
		g.byName[n.name] = append(g.byName[n.name], n.index)
	}
	for _, d := range b.decls {
		place(d)
	}
	// Children in declaration order, independent of placement order.
	for _, d := range b.decls {
		n := g.nodes[g.byID[d.id]]
		p := g.nodes[n.parent]
		p.children = append(p.children, n.index)
	}
	for _, n := range g.nodes[1:] {
		n.depth = g.nodes[n.parent].depth + 1
		if n.kind == KindSimple && len(n.children) > 0 {
			n.kind = KindHierarchical
		}
	}
	for _, pair := range b.initials {
		parent, child := pair[0], pair[1]
		pi, pok := g.byID[parent]
		ci, cok := g.byID[child]
		switch {
		case !pok:
			issues.addf("initial declared on unknown state '%s'", parent)
		case !cok:
			issues.addf("initial '%s' of '%s' is not a known state", child, parent)
		case g.nodes[ci].parent != pi:
			issues.addf("initial '%s' is not a child of '%s'", child, parent)
		case g.nodes[pi].kind == KindParallel:
			issues.addf("parallel state '%s' cannot declare an initial child", parent)
		default:
			g.nodes[pi].initial = ci
		}
	}
	for _, id := range b.finals {
		i, ok := g.byID[id]
		if !ok {
			issues.addf("final declared on unknown state '%s'", id)
			continue
		}
		g.nodes[i].final = true
	}
	for _, id := range slices.Sorted(maps.Keys(b.regions)) {
		keys := b.regions[id]
		i, ok := g.byID[id]
		if !ok {
			issues.addf("region declared on unknown state '%s'", id)
			continue
		}
		g.nodes[i].scope = true
		g.nodes[i].inherits = append(g.nodes[i].inherits, keys...)
	}
	if err := issues.err(); err != nil {
		return nil, err
	}
	return g, nil
}
