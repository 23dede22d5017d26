package strata

import (
	"context"
	"log/slog"
	"maps"
	"slices"
)

// RegionContext holds the data owned by one region scope. Keys flagged as
// inherited are owned by an enclosing region instead.
type RegionContext struct {
	id       string
	data     map[string]any
	inherits map[string]struct{}
}

// NewRegionContext creates a region context
func NewRegionContext(id string, data map[string]any, inherits ...string) *RegionContext {
	rc := &RegionContext{
		id:       id,
		data:     make(map[string]any, len(data)),
		inherits: make(map[string]struct{}, len(inherits)),
	}
	for k, v := range data {
		if slices.Contains(inherits, k) {
			continue
		}
		rc.data[k] = v
	}
	for _, k := range inherits {
		rc.inherits[k] = struct{}{}
	}
	return rc
}

// ID returns the id of the state owning the scope
func (rc *RegionContext) ID() string {
	return rc.id
}

// Get returns a locally owned value
func (rc *RegionContext) Get(key string) (any, bool) {
	v, ok := rc.data[key]
	return v, ok
}

// Set stores a value. Setting an inherited key fails with ErrInheritedKey.
func (rc *RegionContext) Set(key string, value any) error {
	if rc.Inherits(key) {
		return &ContextError{Code: ErrCodeInheritedKey, Region: rc.id, Key: key}
	}
	rc.data[key] = value
	return nil
}

// Inherits reports whether key is delegated to an enclosing region
func (rc *RegionContext) Inherits(key string) bool {
	_, ok := rc.inherits[key]
	return ok
}

// Keys returns the locally owned keys in sorted order
func (rc *RegionContext) Keys() []string {
	return slices.Sorted(maps.Keys(rc.data))
}

// Data returns a copy of the locally owned values
func (rc *RegionContext) Data() map[string]any {
	return maps.Clone(rc.data)
}

// StateContext is the per-activation data of a state. It is created on
// entry, follows the current trigger while the state stays active and is
// dropped on exit.
type StateContext struct {
	state   string
	initial map[string]any
	data    map[string]any
	trigger any
}

// NewStateContext creates a state context seeded with initial data
func NewStateContext(state string, trigger any, initial map[string]any) *StateContext {
	return &StateContext{
		state:   state,
		initial: maps.Clone(initial),
		data:    maps.Clone(initial),
		trigger: trigger,
	}
}

// State returns the id of the owning state
func (sc *StateContext) State() string {
	return sc.state
}

// Get returns a value
func (sc *StateContext) Get(key string) (any, bool) {
	v, ok := sc.data[key]
	return v, ok
}

// Has reports whether key is defined
func (sc *StateContext) Has(key string) bool {
	_, ok := sc.data[key]
	return ok
}

// Set stores a value
func (sc *StateContext) Set(key string, value any) {
	if sc.data == nil {
		sc.data = make(map[string]any)
	}
	sc.data[key] = value
}

// Reset restores the initial data
func (sc *StateContext) Reset() {
	sc.data = maps.Clone(sc.initial)
}

// Trigger returns the trigger the context was last bound to
func (sc *StateContext) Trigger() any {
	return sc.trigger
}

// WithTrigger rebinds the context to a new trigger
func (sc *StateContext) WithTrigger(trigger any) *StateContext {
	sc.trigger = trigger
	return sc
}

// Data returns a copy of the current values
func (sc *StateContext) Data() map[string]any {
	return maps.Clone(sc.data)
}

// ContextProvider creates the context of a state when it is entered
type ContextProvider interface {
	CreateContext(state *StateNode, trigger any) *StateContext
}

// EmptyContextProvider creates contexts without data
type EmptyContextProvider struct{}

// CreateContext implements ContextProvider
func (EmptyContextProvider) CreateContext(state *StateNode, trigger any) *StateContext {
	return NewStateContext(state.ID(), trigger, nil)
}

// StaticContextProvider seeds every state context from a fixed table
// keyed by state id.
type StaticContextProvider map[string]map[string]any

// CreateContext implements ContextProvider
func (p StaticContextProvider) CreateContext(state *StateNode, trigger any) *StateContext {
	return NewStateContext(state.ID(), trigger, p[state.ID()])
}

// ContextMap is the machine-owned store of region and state contexts
type ContextMap struct {
	regions map[string]*RegionContext
	states  map[string]*StateContext
}

// NewContextMap creates an empty store
func NewContextMap() *ContextMap {
	return &ContextMap{
		regions: make(map[string]*RegionContext),
		states:  make(map[string]*StateContext),
	}
}

// Region returns the context of a region scope
func (cm *ContextMap) Region(id string) (*RegionContext, bool) {
	rc, ok := cm.regions[id]
	return rc, ok
}

// AddRegion registers a region context
func (cm *ContextMap) AddRegion(rc *RegionContext) {
	cm.regions[rc.id] = rc
}

// State returns the context of an active state
func (cm *ContextMap) State(id string) (*StateContext, bool) {
	sc, ok := cm.states[id]
	return sc, ok
}

func (cm *ContextMap) putState(sc *StateContext) {
	cm.states[sc.state] = sc
}

func (cm *ContextMap) dropState(id string) {
	delete(cm.states, id)
}

// Context is handed to handlers. Reads look at the state context first and
// then walk the enclosing regions innermost-out, skipping regions that
// inherit the key. Writes go to the state context when it defines the key
// and to the owning region otherwise.
type Context struct {
	context.Context
	machine *Machine
	state   *StateNode
	trigger any
}

func newContext(parent context.Context, m *Machine, state *StateNode, trigger any) *Context {
	return &Context{Context: parent, machine: m, state: state, trigger: trigger}
}

// State returns the state the handler runs for
func (c *Context) State() *StateNode {
	return c.state
}

// Name returns the fully qualified state name
func (c *Context) Name() string {
	return c.state.ID()
}

func (c *Context) String() string {
	return c.Name()
}

// Trigger returns the trigger being processed
func (c *Context) Trigger() any {
	return c.trigger
}

// Machine returns a read-only view of the machine
func (c *Context) Machine() Query {
	return c.machine
}

// Logger returns the machine logger annotated with the state
func (c *Context) Logger() *slog.Logger {
	return c.machine.logger.With("state", c.state.ID())
}

// StateContext returns the context of the current state, if any
func (c *Context) StateContext() (*StateContext, bool) {
	return c.machine.contexts.State(c.state.ID())
}

// regions returns the region scopes enclosing the state, innermost first
func (c *Context) regions() []*RegionContext {
	var out []*RegionContext
	for n := c.state; n != nil; n = n.Parent() {
		if rc, ok := c.machine.contexts.Region(n.ID()); ok {
			out = append(out, rc)
		}
	}
	return out
}

// Get resolves a key
func (c *Context) Get(key string) (any, bool) {
	if sc, ok := c.StateContext(); ok {
		if v, ok := sc.Get(key); ok {
			return v, true
		}
	}
	for _, rc := range c.regions() {
		if rc.Inherits(key) {
			continue
		}
		if v, ok := rc.Get(key); ok {
			return v, true
		}
	}
	return nil, false
}

// GetString resolves a key and returns it when it holds a string
func (c *Context) GetString(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// Set writes a key
func (c *Context) Set(key string, value any) error {
	if sc, ok := c.StateContext(); ok && sc.Has(key) {
		sc.Set(key, value)
		return nil
	}
	for _, rc := range c.regions() {
		if rc.Inherits(key) {
			continue
		}
		return rc.Set(key, value)
	}
	return NewStateNotFoundError(RootID)
}
