package strata

import (
	"maps"
)

// StateStorage remembers the last active child of every compound state
type StateStorage interface {
	// State returns the last active child recorded for parent
	State(parent *StateNode) (*StateNode, error)
	// Save records child as the active child of parent
	Save(child, parent *StateNode)
	// Clone returns an independent copy
	Clone() StateStorage
	// Snapshot returns the recorded history as parent id -> child id
	Snapshot() map[string]string
}

// InMemoryStorage is a map-backed StateStorage
type InMemoryStorage struct {
	graph   *Graph
	history map[string]string
}

// NewInMemoryStorage creates an empty storage for the given graph
func NewInMemoryStorage(g *Graph) *InMemoryStorage {
	return &InMemoryStorage{
		graph:   g,
		history: make(map[string]string),
	}
}

// NewInMemoryStorageFrom restores a storage from a history snapshot.
// Entries that do not form a valid parent/child pair are rejected.
func NewInMemoryStorageFrom(g *Graph, history map[string]string) (*InMemoryStorage, error) {
	s := NewInMemoryStorage(g)
	issues := &issueList{component: "StateStorage"}
	for parentID, childID := range history {
		parent, err := g.Get(parentID)
		if err != nil {
			issues.addf("unknown parent '%s'", parentID)
			continue
		}
		child, err := g.Get(childID)
		if err != nil {
			issues.addf("unknown child '%s'", childID)
			continue
		}
		if child.Parent() != parent {
			issues.addf("'%s' is not a child of '%s'", childID, parentID)
			continue
		}
		s.history[parentID] = childID
	}
	if err := issues.err(); err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the recorded child of parent or a not-found error
func (s *InMemoryStorage) State(parent *StateNode) (*StateNode, error) {
	childID, ok := s.history[parent.ID()]
	if !ok {
		return nil, newHistoryNotFoundError(parent.ID())
	}
	return s.graph.Get(childID)
}

// Save records child as the active child of parent
func (s *InMemoryStorage) Save(child, parent *StateNode) {
	s.history[parent.ID()] = child.ID()
}

// Clone returns a copy that shares nothing mutable with s
func (s *InMemoryStorage) Clone() StateStorage {
	return &InMemoryStorage{
		graph:   s.graph,
		history: maps.Clone(s.history),
	}
}

// Snapshot returns a copy of the recorded history
func (s *InMemoryStorage) Snapshot() map[string]string {
	return maps.Clone(s.history)
}
