package strata

import (
	"slices"
	"strings"
)

// Configuration is an immutable snapshot of the active states of a machine.
// It is rebuilt after every transition and never patched in place.
type Configuration struct {
	graph    *Graph
	version  uint64
	leaf     *StateNode
	active   []bool
	topDown  []*StateNode
	bottomUp []*StateNode
}

// BuildConfiguration computes the active configuration reached from leaf.
// Every parallel ancestor contributes its other children, each resolved to
// its deepest initial substate through storage.
func BuildConfiguration(g *Graph, leaf *StateNode, s StateStorage) *Configuration {
	return buildConfiguration(g, leaf, s, 0)
}

func buildConfiguration(g *Graph, leaf *StateNode, s StateStorage, version uint64) *Configuration {
	c := &Configuration{
		graph:   g,
		version: version,
		leaf:    leaf,
		active:  make([]bool, g.Len()),
	}
	c.expand(leaf, s)
	child := leaf
	for p := leaf.Parent(); p != nil; child, p = p, p.Parent() {
		c.active[p.index] = true
		if p.kind != KindParallel {
			continue
		}
		for _, sibling := range p.Children() {
			if sibling.index != child.index {
				c.expand(sibling, s)
			}
		}
	}
	c.order()
	return c
}

// expand marks n and the branch selected below it as active
func (c *Configuration) expand(n *StateNode, s StateStorage) {
	c.active[n.index] = true
	switch {
	case n.kind == KindParallel:
		for _, child := range n.Children() {
			c.expand(child, s)
		}
	case n.IsCompound():
		c.expand(resolveSubstate(n, s), s)
	}
}

// order builds both depth views from a preorder walk so siblings keep
// their declaration order.
func (c *Configuration) order() {
	var preorder []*StateNode
	var walk func(n *StateNode)
	walk = func(n *StateNode) {
		preorder = append(preorder, n)
		for _, ci := range n.children {
			if c.active[ci] {
				walk(c.graph.nodes[ci])
			}
		}
	}
	walk(c.graph.Root())

	c.topDown = slices.Clone(preorder)
	slices.SortStableFunc(c.topDown, func(a, b *StateNode) int { return a.depth - b.depth })
	c.bottomUp = slices.Clone(preorder)
	slices.SortStableFunc(c.bottomUp, func(a, b *StateNode) int { return b.depth - a.depth })
}

// resolveSubstate picks the child of a compound state to enter:
// recorded history, then the declared initial, then the first child.
func resolveSubstate(n *StateNode, s StateStorage) *StateNode {
	if s != nil {
		if stored, err := s.State(n); err == nil && stored.Parent() == n {
			return stored
		}
	}
	if initial := n.Initial(); initial != nil {
		return initial
	}
	return n.graph.nodes[n.children[0]]
}

// DeepestSubstate returns the deepest state reached by entering n, following
// history and initial children and expanding parallel states. Among equally
// deep candidates the first in declaration order wins.
func DeepestSubstate(g *Graph, n *StateNode, s StateStorage) *StateNode {
	deepest := n
	var descend func(cur *StateNode)
	descend = func(cur *StateNode) {
		if cur.depth > deepest.depth {
			deepest = cur
		}
		switch {
		case cur.kind == KindParallel:
			for _, child := range cur.Children() {
				descend(child)
			}
		case cur.IsCompound():
			descend(resolveSubstate(cur, s))
		}
	}
	descend(n)
	return deepest
}

// Version returns the monotonically increasing snapshot number
func (c *Configuration) Version() uint64 {
	return c.version
}

// Leaf returns the state the configuration was built from
func (c *Configuration) Leaf() *StateNode {
	return c.leaf
}

// Contains reports whether the state with the given id is active
func (c *Configuration) Contains(id string) bool {
	i, ok := c.graph.byID[id]
	return ok && c.active[i]
}

func (c *Configuration) contains(n *StateNode) bool {
	return c.active[n.index]
}

// BottomUp returns the active states ordered deepest first
func (c *Configuration) BottomUp() []*StateNode {
	return slices.Clone(c.bottomUp)
}

// TopDown returns the active states ordered shallowest first
func (c *Configuration) TopDown() []*StateNode {
	return slices.Clone(c.topDown)
}

// IDs returns the ids of the active states, shallowest first
func (c *Configuration) IDs() []string {
	ids := make([]string, len(c.topDown))
	for i, n := range c.topDown {
		ids[i] = n.id
	}
	return ids
}

// Len returns the number of active states including the root
func (c *Configuration) Len() int {
	return len(c.topDown)
}

// Diff returns the states left (deepest first) and the states entered
// (shallowest first) when moving from c to next.
func (c *Configuration) Diff(next *Configuration) (exited, entered []*StateNode) {
	for _, n := range c.bottomUp {
		if !next.contains(n) {
			exited = append(exited, n)
		}
	}
	for _, n := range next.topDown {
		if !c.contains(n) {
			entered = append(entered, n)
		}
	}
	return exited, entered
}

// IsComplete reports whether n has reached a final state. A final node is
// complete, a hierarchical node is complete when its active child is and a
// parallel node when all of its children are.
func (c *Configuration) IsComplete(n *StateNode) bool {
	if n.final {
		return true
	}
	switch n.kind {
	case KindParallel:
		for _, ci := range n.children {
			if !c.IsComplete(c.graph.nodes[ci]) {
				return false
			}
		}
		return len(n.children) > 0
	case KindHierarchical, KindRoot:
		for _, ci := range n.children {
			if c.active[ci] {
				return c.IsComplete(c.graph.nodes[ci])
			}
		}
	}
	return false
}

func (c *Configuration) String() string {
	return "[" + strings.Join(c.IDs(), ", ") + "]"
}
