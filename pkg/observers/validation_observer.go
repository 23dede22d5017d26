package observers

import (
	"fmt"
	"slices"
	"sync"

	"github.com/anggasct/strata"
)

// ValidationObserver records which states were visited and flags
// transitions outside an allowed set.
type ValidationObserver struct {
	strata.BaseObserver
	expectedStates     map[string]bool
	visitedStates      map[string]bool
	allowedTransitions map[string]map[string]bool
	violations         []string
	mutex              sync.RWMutex
}

// NewValidationObserver creates a new validation observer
func NewValidationObserver() *ValidationObserver {
	return &ValidationObserver{
		expectedStates:     make(map[string]bool),
		visitedStates:      make(map[string]bool),
		allowedTransitions: make(map[string]map[string]bool),
	}
}

// ExpectGraph expects every non-root state of g to be visited
func (o *ValidationObserver) ExpectGraph(g *strata.Graph) *ValidationObserver {
	for _, n := range g.States() {
		o.AddExpectedState(n.ID())
	}
	return o
}

// MarkActive records the states of c as visited, for configurations
// established without enter notifications.
func (o *ValidationObserver) MarkActive(c *strata.Configuration) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	for _, n := range c.TopDown() {
		o.visitedStates[n.ID()] = true
	}
}

// AddExpectedState adds an expected state
func (o *ValidationObserver) AddExpectedState(stateID string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.expectedStates[stateID] = true
}

// AddAllowedTransition allows a transition. Once a source has allowed
// targets, transitions from it to any other target are violations.
func (o *ValidationObserver) AddAllowedTransition(from, to string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()

	if _, exists := o.allowedTransitions[from]; !exists {
		o.allowedTransitions[from] = make(map[string]bool)
	}
	o.allowedTransitions[from][to] = true
}

// OnEnter marks the state as visited
func (o *ValidationObserver) OnEnter(state *strata.StateNode, _ *strata.Context) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.visitedStates[state.ID()] = true
	return nil
}

// OnTransition checks the transition against the allowed set
func (o *ValidationObserver) OnTransition(from, to *strata.StateNode, trigger any) {
	if from == nil || to == nil {
		return
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()
	if allowed, exists := o.allowedTransitions[from.ID()]; exists && !allowed[to.ID()] {
		o.violations = append(o.violations, fmt.Sprintf(
			"invalid transition from '%s' to '%s' on '%s'", from.ID(), to.ID(), triggerName(trigger)))
	}
}

// OnError records the error as a violation
func (o *ValidationObserver) OnError(err error, _ *strata.StateNode) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.violations = append(o.violations, fmt.Sprintf("error occurred: %v", err))
}

// Violations returns all validation violations
func (o *ValidationObserver) Violations() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return slices.Clone(o.violations)
}

// UnvisitedStates returns the expected states that were never entered, sorted
func (o *ValidationObserver) UnvisitedStates() []string {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	var unvisited []string
	for state := range o.expectedStates {
		if !o.visitedStates[state] {
			unvisited = append(unvisited, state)
		}
	}
	slices.Sort(unvisited)
	return unvisited
}

// HasViolations returns whether any violations occurred
func (o *ValidationObserver) HasViolations() bool {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.violations) > 0
}

// Reset forgets visited states and violations
func (o *ValidationObserver) Reset() {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.visitedStates = make(map[string]bool)
	o.violations = nil
}
