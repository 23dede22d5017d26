package strata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Option configures a Machine
type Option func(*Machine)

// WithObserver registers an observer
func WithObserver(o Observer) Option {
	return func(m *Machine) {
		m.observers.AddObserver(o)
	}
}

// WithHandlers registers a handler table
func WithHandlers(h *Handlers) Option {
	return func(m *Machine) {
		m.observers.AddObserver(h)
	}
}

// WithContextProvider sets the factory for state contexts
func WithContextProvider(p ContextProvider) Option {
	return func(m *Machine) {
		if p != nil {
			m.contextProvider = p
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithID sets the machine identifier. A random one is used otherwise.
func WithID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithRegionData seeds the context of a region scope. Use RootID for the
// outermost region.
func WithRegionData(regionID string, data map[string]any) Option {
	return func(m *Machine) {
		if m.regionData[regionID] == nil {
			m.regionData[regionID] = make(map[string]any, len(data))
		}
		maps.Copy(m.regionData[regionID], data)
	}
}

// Machine evaluates triggers against a Graph. Evaluation is synchronous and
// single threaded; a trigger issued while another one is being evaluated
// fails with ErrAlreadyTransitioning. Callers sharing a machine across
// goroutines must serialize access themselves.
type Machine struct {
	id              string
	graph           *Graph
	provider        TransitionProvider
	storage         StateStorage
	config          *Configuration
	contexts        *ContextMap
	contextProvider ContextProvider
	observers       *ObserverManager
	logger          *slog.Logger
	regionData      map[string]map[string]any
	evaluating      atomic.Bool
	faulting        bool
}

// NewMachine creates a machine positioned in start. An empty start enters
// the root. Nil provider and storage default to an empty registry and an
// in-memory storage. The initial configuration is established without
// enter notifications.
func NewMachine(g *Graph, provider TransitionProvider, storage StateStorage, start string, opts ...Option) (*Machine, error) {
	if g == nil {
		return nil, NewConfigurationError("Machine", "graph is required")
	}
	if provider == nil {
		provider = NewTransitionRegistry(g)
	}
	if storage == nil {
		storage = NewInMemoryStorage(g)
	}
	m := &Machine{
		id:              uuid.NewString(),
		graph:           g,
		provider:        provider,
		storage:         storage,
		contexts:        NewContextMap(),
		contextProvider: EmptyContextProvider{},
		logger:          discardLogger(),
		regionData:      make(map[string]map[string]any),
	}
	m.observers = NewObserverManager(nil)
	for _, opt := range opts {
		opt(m)
	}
	m.observers.logger = m.logger
	if r, ok := provider.(*TransitionRegistry); ok {
		r.WithLogger(m.logger)
	}

	issues := &issueList{component: "Machine"}
	for _, id := range slices.Sorted(maps.Keys(m.regionData)) {
		n, err := g.Get(id)
		if err != nil || !n.IsRegion() {
			issues.addf("region data given for '%s' which is not a region", id)
		}
	}
	startNode := g.Root()
	if start != "" {
		n, err := g.Get(start)
		if err != nil {
			issues.addf("start state '%s' not found", start)
		} else {
			startNode = n
		}
	}
	if err := issues.err(); err != nil {
		return nil, err
	}

	for _, n := range g.nodes {
		if n.scope {
			m.contexts.AddRegion(NewRegionContext(n.id, m.regionData[n.id], n.inherits...))
		}
	}
	m.settle(DeepestSubstate(g, startNode, m.storage), 0)
	m.logger.Debug("machine created", "machine", m.id, "configuration", m.config.String())
	return m, nil
}

// settle installs the configuration reached from leaf without notifications
func (m *Machine) settle(leaf *StateNode, version uint64) {
	m.config = buildConfiguration(m.graph, leaf, m.storage, version)
	m.contexts.states = make(map[string]*StateContext)
	for _, n := range m.config.TopDown() {
		if p := n.Parent(); p != nil && p.kind != KindParallel {
			m.storage.Save(n, p)
		}
		m.contexts.putState(m.contextProvider.CreateContext(n, nil))
	}
}

// ID returns the machine identifier
func (m *Machine) ID() string {
	return m.id
}

// Graph returns the state definition graph
func (m *Machine) Graph() *Graph {
	return m.graph
}

// Provider returns the transition provider
func (m *Machine) Provider() TransitionProvider {
	return m.provider
}

// Configuration returns the current active configuration
func (m *Machine) Configuration() *Configuration {
	return m.config
}

// Logger returns the machine logger
func (m *Machine) Logger() *slog.Logger {
	return m.logger
}

// IsInState reports whether a state is active. The argument is matched as an
// id first; otherwise any active state with that short name matches.
func (m *Machine) IsInState(nameOrID string) bool {
	for _, n := range m.graph.Lookup(nameOrID) {
		if m.config.contains(n) {
			return true
		}
	}
	return false
}

// IsFinal reports whether the root has reached a final configuration
func (m *Machine) IsFinal() bool {
	return m.config.IsComplete(m.graph.Root())
}

// Context returns the context of an active state
func (m *Machine) Context(stateID string) (*StateContext, bool) {
	return m.contexts.State(stateID)
}

// RegionContext returns the context of a region scope
func (m *Machine) RegionContext(id string) (*RegionContext, bool) {
	return m.contexts.Region(id)
}

// AddObserver registers an observer
func (m *Machine) AddObserver(o Observer) {
	m.observers.AddObserver(o)
}

// RemoveObserver unregisters an observer
func (m *Machine) RemoveObserver(o Observer) {
	m.observers.RemoveObserver(o)
}

// Trigger evaluates transitions for payload without running actions
func (m *Machine) Trigger(payload any) error {
	return m.run(context.Background(), "trigger", payload, false, true)
}

// Action runs the action handlers of the active states without taking transitions
func (m *Machine) Action(payload any) error {
	return m.run(context.Background(), "action", payload, true, false)
}

// Dispatch processes payload completely: Before hooks, actions,
// transitions and finally After hooks.
func (m *Machine) Dispatch(payload any) error {
	return m.DispatchContext(context.Background(), payload)
}

// DispatchContext is Dispatch with a context handed through to handlers
func (m *Machine) DispatchContext(ctx context.Context, payload any) error {
	if payload == nil {
		return &MachineError{Code: ErrCodeInvalidTrigger, Operation: "dispatch", Message: ErrNilTrigger.Error()}
	}
	if !m.evaluating.CompareAndSwap(false, true) {
		return NewAlreadyTransitioningError("dispatch")
	}
	defer m.evaluating.Store(false)

	for _, p := range []any{Before{Event: payload}, payload, After{Event: payload}} {
		if err := m.evaluate(ctx, p, true, true); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) run(ctx context.Context, op string, payload any, actions, transitions bool) error {
	if payload == nil {
		return &MachineError{Code: ErrCodeInvalidTrigger, Operation: op, Message: ErrNilTrigger.Error()}
	}
	if !m.evaluating.CompareAndSwap(false, true) {
		return NewAlreadyTransitioningError(op)
	}
	defer m.evaluating.Store(false)
	return m.evaluate(ctx, payload, actions, transitions)
}

// evaluate processes one payload. Transitions applied before a failure are
// kept: their exit and enter notifications have already been delivered.
func (m *Machine) evaluate(ctx context.Context, payload any, actions, transitions bool) error {
	err := m.step(ctx, payload, actions, transitions)
	if err != nil {
		m.logger.Debug("evaluation failed", "machine", m.id, "trigger", describe(payload), "configuration", m.config.String(), "error", err)
	}
	return err
}

func (m *Machine) step(ctx context.Context, payload any, actions, transitions bool) error {
	m.rebind(payload)
	var fault error
	if actions {
		fault = m.dispatchActions(ctx, payload)
	}
	if fault == nil && transitions {
		fault = m.runTransitions(ctx, payload)
	}
	if fault != nil {
		return m.handleFault(ctx, fault)
	}
	return nil
}

// rebind points the contexts of every active state at the new trigger
func (m *Machine) rebind(payload any) {
	for _, n := range m.config.topDown {
		if sc, ok := m.contexts.State(n.id); ok {
			sc.WithTrigger(payload)
		}
	}
}

// dispatchActions notifies action observers innermost first
func (m *Machine) dispatchActions(ctx context.Context, payload any) error {
	var first error
	for _, n := range m.config.BottomUp() {
		if err := m.observers.NotifyAction(n, newContext(ctx, m, n, payload)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// runTransitions collects the enabled transitions of the current
// configuration innermost first and applies them in that order.
func (m *Machine) runTransitions(ctx context.Context, payload any) error {
	cfg := m.config
	var enabled []Transition
	for _, n := range cfg.BottomUp() {
		if n.kind == KindParallel && !cfg.IsComplete(n) {
			continue
		}
		if t := m.lookup(n, payload); t != nil {
			enabled = append(enabled, t)
		}
	}

	var first error
	for _, t := range enabled {
		if !m.config.contains(t.Source()) {
			m.logger.Debug("transition skipped, source no longer active", "transition", t.String())
			continue
		}
		if err := m.apply(ctx, t, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// lookup asks the provider for a transition and treats a panic as no match
func (m *Machine) lookup(n *StateNode, payload any) (t Transition) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("transition provider panic recovered", "state", n.id, "panic", fmt.Sprint(r))
			t = nil
		}
	}()
	return m.provider.TransitionForTrigger(n, payload, m)
}

// apply exits the states left by t, records the new history and enters the
// new states. Every observer runs even if an earlier one failed; the first
// failure is returned.
func (m *Machine) apply(ctx context.Context, t Transition, payload any) error {
	old := m.config
	leaf := DeepestSubstate(m.graph, t.Target(), m.storage)
	next := buildConfiguration(m.graph, leaf, m.storage, old.version+1)
	exited, entered := old.Diff(next)

	var first error
	for _, n := range exited {
		if err := m.observers.NotifyExit(n, newContext(ctx, m, n, payload)); err != nil && first == nil {
			first = err
		}
		m.contexts.dropState(n.id)
	}
	for _, n := range entered {
		if p := n.Parent(); p != nil && p.kind != KindParallel {
			m.storage.Save(n, p)
		}
	}
	m.config = next
	for _, n := range entered {
		m.contexts.putState(m.contextProvider.CreateContext(n, payload))
		if err := m.observers.NotifyEnter(n, newContext(ctx, m, n, payload)); err != nil && first == nil {
			first = err
		}
	}

	m.observers.NotifyTransition(t.Source(), t.Target(), payload)
	m.logger.Debug("transition applied",
		"machine", m.id,
		"transition", t.String(),
		"trigger", describe(payload),
		"exited", len(exited),
		"entered", len(entered),
		"version", next.version,
	)
	return first
}

// handleFault delivers a Fault trigger to the active configuration. The
// fault is resolved only when the root is final after that pass; otherwise
// the original error is returned. A failure while handling a fault is
// returned as is.
func (m *Machine) handleFault(ctx context.Context, err error) error {
	var actionErr *ActionError
	if m.faulting {
		if errors.As(err, &actionErr) {
			return actionErr.OriginalErr
		}
		return err
	}

	fault := &Fault{Err: err}
	var state *StateNode
	if errors.As(err, &actionErr) {
		fault.Err = actionErr.OriginalErr
		fault.State = actionErr.State
		state, _ = m.graph.Get(actionErr.State)
	}
	m.observers.NotifyError(err, state)
	m.logger.Debug("routing fault", "machine", m.id, "state", fault.State, "error", fault.Err)

	m.faulting = true
	defer func() { m.faulting = false }()

	m.rebind(fault)
	if ferr := m.runTransitions(ctx, fault); ferr != nil {
		return m.handleFault(ctx, ferr)
	}
	if !m.config.IsComplete(m.graph.Root()) {
		return err
	}
	return nil
}

// Snapshot captures the configuration, history and region data
func (m *Machine) Snapshot() Snapshot {
	regions := make(map[string]map[string]any)
	for id, rc := range m.contexts.regions {
		// seeded regions are kept even when emptied so Restore does not reseed them
		if data := rc.Data(); len(data) > 0 || len(m.regionData[id]) > 0 {
			regions[id] = data
		}
	}
	return Snapshot{
		MachineID: m.id,
		Leaf:      m.config.Leaf().ID(),
		History:   m.storage.Snapshot(),
		Version:   m.config.Version(),
		Regions:   regions,
		Timestamp: time.Now().UTC(),
	}
}

// Restore replaces the machine state with a snapshot. Regions missing from
// the snapshot go back to their seeded data. Like the initial configuration
// it is installed without notifications.
func (m *Machine) Restore(s Snapshot) error {
	if !m.evaluating.CompareAndSwap(false, true) {
		return NewAlreadyTransitioningError("restore")
	}
	defer m.evaluating.Store(false)

	leaf, err := m.graph.Get(s.Leaf)
	if err != nil {
		return fmt.Errorf("restore leaf: %w", err)
	}
	storage, err := NewInMemoryStorageFrom(m.graph, s.History)
	if err != nil {
		return fmt.Errorf("restore history: %w", err)
	}
	for id := range s.Regions {
		if _, ok := m.contexts.Region(id); !ok {
			return fmt.Errorf("restore region '%s': %w", id, ErrNotFound)
		}
	}

	for _, n := range m.graph.nodes {
		if !n.scope {
			continue
		}
		data, ok := s.Regions[n.id]
		if !ok {
			data = m.regionData[n.id]
		}
		m.contexts.AddRegion(NewRegionContext(n.id, data, n.inherits...))
	}
	if s.MachineID != "" {
		m.id = s.MachineID
	}
	m.storage = storage
	m.settle(DeepestSubstate(m.graph, leaf, storage), s.Version)
	m.logger.Debug("machine restored", "machine", m.id, "configuration", m.config.String())
	return nil
}
