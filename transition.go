package strata

import (
	"fmt"
	"log/slog"
	"slices"
)

// Transition moves the machine from its source state to its target state
// when enabled by a trigger.
type Transition interface {
	Source() *StateNode
	Target() *StateNode
	IsEnabled(payload any, m Query) bool
	String() string
}

// Guard decides whether a transition is enabled for a trigger
type Guard struct {
	accepts string
	phase   phase
	check   func(payload any, m Query) bool
}

// Accepts returns the name of the trigger type the guard is declared for
func (g Guard) Accepts() string {
	return g.accepts
}

// Always returns a guard enabled for every plain trigger
func Always() Guard {
	return Guard{
		accepts: "any",
		check:   func(payload any, _ Query) bool { return !IsHook(payload) },
	}
}

// GuardFunc enables a transition for triggers of type T accepted by fn.
// Triggers of any other type leave the transition disabled.
func GuardFunc[T any](fn func(trigger T) bool) Guard {
	return GuardWithMachine(func(v T, _ Query) bool { return fn(v) })
}

// GuardWithMachine is GuardFunc with access to the machine state
func GuardWithMachine[T any](fn func(trigger T, m Query) bool) Guard {
	return Guard{
		accepts: TypeName[T](),
		check: func(payload any, m Query) bool {
			if IsHook(payload) {
				return false
			}
			v, ok := Accepts[T](payload)
			return ok && fn(v, m)
		},
	}
}

// BeforeGuard enables a transition while a dispatched trigger of type T is
// announced, ahead of its processing.
func BeforeGuard[T any](fn func(trigger T) bool) Guard {
	return hookGuard(phaseBefore, "before ", fn)
}

// AfterGuard enables a transition once a dispatched trigger of type T was processed
func AfterGuard[T any](fn func(trigger T) bool) Guard {
	return hookGuard(phaseAfter, "after ", fn)
}

func hookGuard[T any](p phase, prefix string, fn func(T) bool) Guard {
	return Guard{
		accepts: prefix + TypeName[T](),
		phase:   p,
		check: func(payload any, _ Query) bool {
			inner, ok := unwrapHook(payload, p)
			if !ok {
				return false
			}
			v, ok := Accepts[T](inner)
			return ok && fn(v)
		},
	}
}

type simpleTransition struct {
	source *StateNode
	target *StateNode
}

// NewTransition creates a transition enabled by every plain trigger
func NewTransition(source, target *StateNode) Transition {
	return &simpleTransition{source: source, target: target}
}

func (t *simpleTransition) Source() *StateNode { return t.source }
func (t *simpleTransition) Target() *StateNode { return t.target }

func (t *simpleTransition) IsEnabled(payload any, _ Query) bool {
	return !IsHook(payload)
}

func (t *simpleTransition) String() string {
	return t.source.ID() + " -> " + t.target.ID()
}

func (t *simpleTransition) Label() string { return "" }

type eventTransition struct {
	Transition
	name string
}

// ForEvent restricts t to named triggers carrying the given name
func ForEvent(t Transition, name string) Transition {
	return &eventTransition{Transition: t, name: name}
}

func (t *eventTransition) IsEnabled(payload any, m Query) bool {
	name, ok := eventName(payload)
	return ok && name == t.name && t.Transition.IsEnabled(payload, m)
}

func (t *eventTransition) String() string {
	return fmt.Sprintf("%s [%s]", t.Transition.String(), t.name)
}

func (t *eventTransition) Label() string { return t.name }

type guardedTransition struct {
	Transition
	guard Guard
}

// Guarded restricts t to triggers accepted by guard. For Before and After
// guards the inner transition is checked against the wrapped trigger.
func Guarded(t Transition, guard Guard) Transition {
	if guard.check == nil {
		guard = Always()
	}
	return &guardedTransition{Transition: t, guard: guard}
}

func (t *guardedTransition) IsEnabled(payload any, m Query) bool {
	if !t.guard.check(payload, m) {
		return false
	}
	if t.guard.phase != phasePlain {
		inner, _ := unwrapHook(payload, t.guard.phase)
		return t.Transition.IsEnabled(inner, m)
	}
	return t.Transition.IsEnabled(payload, m)
}

func (t *guardedTransition) String() string {
	return fmt.Sprintf("%s (%s)", t.Transition.String(), t.guard.accepts)
}

func (t *guardedTransition) Label() string {
	if inner, ok := t.Transition.(interface{ Label() string }); ok && inner.Label() != "" {
		return inner.Label() + " / " + t.guard.accepts
	}
	return t.guard.accepts
}

// isEnabled evaluates t and treats a panicking guard as not enabled
func isEnabled(t Transition, payload any, m Query, logger *slog.Logger) (enabled bool) {
	defer func() {
		if r := recover(); r != nil {
			enabled = false
			logger.Warn("guard panic recovered", "transition", t.String(), "panic", fmt.Sprint(r))
		}
	}()
	return t.IsEnabled(payload, m)
}

// TransitionProvider finds the transition to take out of a state
type TransitionProvider interface {
	TransitionForTrigger(state *StateNode, payload any, m Query) Transition
}

// TransitionRegistry stores transitions in registration order. The first
// enabled transition leaving a state wins.
type TransitionRegistry struct {
	graph       *Graph
	transitions []Transition
	logger      *slog.Logger
}

// NewTransitionRegistry creates an empty registry for g
func NewTransitionRegistry(g *Graph) *TransitionRegistry {
	return &TransitionRegistry{graph: g, logger: discardLogger()}
}

// WithLogger sets the logger used to report recovered guard panics
func (r *TransitionRegistry) WithLogger(logger *slog.Logger) *TransitionRegistry {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *TransitionRegistry) resolve(from, to string) (*StateNode, *StateNode, error) {
	src, serr := r.graph.Get(from)
	dst, derr := r.graph.Get(to)
	if serr != nil || derr != nil {
		return nil, nil, NewTransitionNotAllowedError(from, to)
	}
	return src, dst, nil
}

// Register adds a transition from one state to another. Every guard must
// accept the trigger; without guards any plain trigger enables it.
func (r *TransitionRegistry) Register(from, to string, guards ...Guard) error {
	src, dst, err := r.resolve(from, to)
	if err != nil {
		return err
	}
	t := NewTransition(src, dst)
	for _, g := range guards {
		t = Guarded(t, g)
	}
	r.transitions = append(r.transitions, t)
	return nil
}

// RegisterEvent adds a transition enabled by named triggers
func (r *TransitionRegistry) RegisterEvent(from, to, name string, guards ...Guard) error {
	src, dst, err := r.resolve(from, to)
	if err != nil {
		return err
	}
	t := ForEvent(NewTransition(src, dst), name)
	for _, g := range guards {
		t = Guarded(t, g)
	}
	r.transitions = append(r.transitions, t)
	return nil
}

// Add registers a prebuilt transition. Its states must belong to the graph.
func (r *TransitionRegistry) Add(t Transition) error {
	if _, _, err := r.resolve(t.Source().ID(), t.Target().ID()); err != nil {
		return err
	}
	r.transitions = append(r.transitions, t)
	return nil
}

// TransitionForTrigger returns the first enabled transition leaving state, or nil
func (r *TransitionRegistry) TransitionForTrigger(state *StateNode, payload any, m Query) Transition {
	for _, t := range r.transitions {
		if !t.Source().Equals(state) {
			continue
		}
		if isEnabled(t, payload, m, r.logger) {
			return t
		}
	}
	return nil
}

// Transitions returns every registered transition in registration order
func (r *TransitionRegistry) Transitions() []Transition {
	return slices.Clone(r.transitions)
}

// AggregateProvider asks several providers in order; the first hit wins
type AggregateProvider struct {
	providers []TransitionProvider
}

// NewAggregateProvider combines providers
func NewAggregateProvider(providers ...TransitionProvider) *AggregateProvider {
	return &AggregateProvider{providers: providers}
}

// TransitionForTrigger implements TransitionProvider
func (a *AggregateProvider) TransitionForTrigger(state *StateNode, payload any, m Query) Transition {
	for _, p := range a.providers {
		if t := p.TransitionForTrigger(state, payload, m); t != nil {
			return t
		}
	}
	return nil
}

// Transitions returns the transitions of every provider that can list them
func (a *AggregateProvider) Transitions() []Transition {
	var out []Transition
	for _, p := range a.providers {
		if lister, ok := p.(interface{ Transitions() []Transition }); ok {
			out = append(out, lister.Transitions()...)
		}
	}
	return out
}
