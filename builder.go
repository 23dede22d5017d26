package strata

import (
	"maps"
)

// RegionBuilder assembles a RegionSpec step by step
type RegionBuilder struct {
	spec    RegionSpec
	regions map[string][]*RegionBuilder
	order   []string
}

// NewRegionBuilder creates an empty region builder
func NewRegionBuilder() *RegionBuilder {
	return &RegionBuilder{
		spec: RegionSpec{
			StateContexts: make(map[string]map[string]any),
			Enter:         make(map[string][]Handler),
			Exit:          make(map[string][]Handler),
			Action:        make(map[string][]Handler),
		},
		regions: make(map[string][]*RegionBuilder),
	}
}

// SetStates declares the states of the region in order
func (b *RegionBuilder) SetStates(states ...string) *RegionBuilder {
	b.spec.States = append(b.spec.States[:0], states...)
	return b
}

// AddRegion nests a sub-region into state. A state with sub-regions runs
// them in parallel.
func (b *RegionBuilder) AddRegion(state string, sub *RegionBuilder) *RegionBuilder {
	if _, seen := b.regions[state]; !seen {
		b.order = append(b.order, state)
	}
	b.regions[state] = append(b.regions[state], sub)
	return b
}

// PushTransition adds a transition. Without guards any trigger enables it.
func (b *RegionBuilder) PushTransition(from, to string, guards ...Guard) *RegionBuilder {
	b.spec.Transitions = append(b.spec.Transitions, TransitionSpec{From: from, To: to, Guards: guards})
	return b
}

// PushEventTransition adds a transition enabled by named triggers
func (b *RegionBuilder) PushEventTransition(from, to, event string, guards ...Guard) *RegionBuilder {
	b.spec.Transitions = append(b.spec.Transitions, TransitionSpec{From: from, To: to, Event: event, Guards: guards})
	return b
}

// Inherits declares context keys owned by an enclosing region
func (b *RegionBuilder) Inherits(keys ...string) *RegionBuilder {
	b.spec.Inherits = append(b.spec.Inherits, keys...)
	return b
}

// OnEnter registers enter handlers for state
func (b *RegionBuilder) OnEnter(state string, handlers ...Handler) *RegionBuilder {
	b.spec.Enter[state] = append(b.spec.Enter[state], handlers...)
	return b
}

// OnExit registers exit handlers for state
func (b *RegionBuilder) OnExit(state string, handlers ...Handler) *RegionBuilder {
	b.spec.Exit[state] = append(b.spec.Exit[state], handlers...)
	return b
}

// OnAction registers action handlers for state
func (b *RegionBuilder) OnAction(state string, handlers ...Handler) *RegionBuilder {
	b.spec.Action[state] = append(b.spec.Action[state], handlers...)
	return b
}

// SetStateContext sets the initial context data of state
func (b *RegionBuilder) SetStateContext(state string, data map[string]any) *RegionBuilder {
	b.spec.StateContexts[state] = maps.Clone(data)
	return b
}

// SetRegionContext sets the context data owned by the region
func (b *RegionBuilder) SetRegionContext(data map[string]any) *RegionBuilder {
	b.spec.Context = maps.Clone(data)
	return b
}

// MarkInitial sets the initial state. Defaults to the first state.
func (b *RegionBuilder) MarkInitial(state string) *RegionBuilder {
	b.spec.Initial = state
	return b
}

// MarkFinal sets the final state. Defaults to the last state.
func (b *RegionBuilder) MarkFinal(state string) *RegionBuilder {
	b.spec.Final = state
	return b
}

// Label names the region
func (b *RegionBuilder) Label(label string) *RegionBuilder {
	b.spec.Label = label
	return b
}

// Use appends middleware applied before compilation
func (b *RegionBuilder) Use(middleware ...Middleware) *RegionBuilder {
	b.spec.Middleware = append(b.spec.Middleware, middleware...)
	return b
}

// Spec returns the region description including all sub-regions
func (b *RegionBuilder) Spec() RegionSpec {
	spec := b.spec.Clone()
	for _, state := range b.order {
		for _, sub := range b.regions[state] {
			spec.Regions[state] = append(spec.Regions[state], sub.Spec())
		}
	}
	return spec
}

// Build compiles the region hierarchy and starts a machine for it. Options
// are passed on to the machine.
func (b *RegionBuilder) Build(opts ...Option) (*Region, error) {
	return BuildRegion(b.Spec(), opts...)
}

// BuildRegion compiles spec into a graph, a transition registry and a
// handler table and returns the running region.
func BuildRegion(spec RegionSpec, opts ...Option) (*Region, error) {
	c, err := compileRegions(spec)
	if err != nil {
		return nil, err
	}
	g, err := c.graph.Build()
	if err != nil {
		return nil, err
	}

	registry := NewTransitionRegistry(g)
	issues := &issueList{component: "Region"}
	for _, t := range c.registry {
		var err error
		if t.Event != "" {
			err = registry.RegisterEvent(t.From, t.To, t.Event, t.Guards...)
		} else {
			err = registry.Register(t.From, t.To, t.Guards...)
		}
		if err != nil {
			issues.addf("%v", err)
		}
	}
	if err := issues.err(); err != nil {
		return nil, err
	}

	machineOpts := []Option{
		WithHandlers(c.handlers),
		WithContextProvider(c.contexts),
	}
	for id, data := range c.regionData {
		machineOpts = append(machineOpts, WithRegionData(id, data))
	}
	machineOpts = append(machineOpts, opts...)

	m, err := NewMachine(g, registry, nil, "", machineOpts...)
	if err != nil {
		return nil, err
	}
	return newRegion(m, c.tree), nil
}
