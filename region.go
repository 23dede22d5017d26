package strata

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// TransitionSpec declares a transition between two states of one region
type TransitionSpec struct {
	From   string
	To     string
	Event  string
	Guards []Guard
}

// RegionSpec is the declarative description of a region. Middleware
// receives and returns it by value; the With helpers never modify the
// receiver.
type RegionSpec struct {
	Label         string
	States        []string
	Initial       string
	Final         string
	Inherits      []string
	Context       map[string]any
	StateContexts map[string]map[string]any
	Transitions   []TransitionSpec
	Enter         map[string][]Handler
	Exit          map[string][]Handler
	Action        map[string][]Handler
	Regions       map[string][]RegionSpec
	Middleware    []Middleware
}

// Middleware rewrites a region spec before it is compiled. Middleware
// registered on a region also applies to all of its sub-regions.
type Middleware func(spec RegionSpec) RegionSpec

// Clone returns a copy sharing no maps or slices with s
func (s RegionSpec) Clone() RegionSpec {
	out := s
	out.States = slices.Clone(s.States)
	out.Inherits = slices.Clone(s.Inherits)
	out.Context = maps.Clone(s.Context)
	out.StateContexts = make(map[string]map[string]any, len(s.StateContexts))
	for k, v := range s.StateContexts {
		out.StateContexts[k] = maps.Clone(v)
	}
	out.Transitions = slices.Clone(s.Transitions)
	out.Enter = cloneHandlerMap(s.Enter)
	out.Exit = cloneHandlerMap(s.Exit)
	out.Action = cloneHandlerMap(s.Action)
	out.Regions = make(map[string][]RegionSpec, len(s.Regions))
	for k, subs := range s.Regions {
		cp := make([]RegionSpec, len(subs))
		for i, sub := range subs {
			cp[i] = sub.Clone()
		}
		out.Regions[k] = cp
	}
	out.Middleware = slices.Clone(s.Middleware)
	return out
}

func cloneHandlerMap(m map[string][]Handler) map[string][]Handler {
	out := make(map[string][]Handler, len(m))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	return out
}

// EachState folds fn over every state name of the region
func (s RegionSpec) EachState(fn func(spec RegionSpec, state string) RegionSpec) RegionSpec {
	out := s.Clone()
	for _, state := range s.States {
		out = fn(out, state)
	}
	return out
}

// WithTransition returns a copy with an additional transition
func (s RegionSpec) WithTransition(from, to string, guards ...Guard) RegionSpec {
	out := s.Clone()
	out.Transitions = append(out.Transitions, TransitionSpec{From: from, To: to, Guards: guards})
	return out
}

// WithEnter returns a copy with additional enter handlers for state
func (s RegionSpec) WithEnter(state string, handlers ...Handler) RegionSpec {
	out := s.Clone()
	out.Enter[state] = append(out.Enter[state], handlers...)
	return out
}

// WithExit returns a copy with additional exit handlers for state
func (s RegionSpec) WithExit(state string, handlers ...Handler) RegionSpec {
	out := s.Clone()
	out.Exit[state] = append(out.Exit[state], handlers...)
	return out
}

// WithAction returns a copy with additional action handlers for state
func (s RegionSpec) WithAction(state string, handlers ...Handler) RegionSpec {
	out := s.Clone()
	out.Action[state] = append(out.Action[state], handlers...)
	return out
}

// StatePath joins a parent state id and a state name into a fully qualified
// state name.
func StatePath(parent, name string) string {
	if parent == "" || parent == RootID {
		return name
	}
	return parent + "." + name
}

// regionNodeID names the node of the i-th sub-region of a state
func regionNodeID(state string, i int) string {
	return fmt.Sprintf("%s[%d]", state, i)
}

// compiled is the output of region compilation
type compiled struct {
	graph      *GraphBuilder
	registry   []TransitionSpec
	handlers   *Handlers
	contexts   StaticContextProvider
	regionData map[string]map[string]any
	tree       *regionNode
	issues     *issueList
}

// regionNode mirrors the region hierarchy for the Region facade
type regionNode struct {
	label    string
	node     string
	prefix   string
	states   []string
	children map[string][]*regionNode
}

func compileRegions(spec RegionSpec) (*compiled, error) {
	c := &compiled{
		graph:      NewGraphBuilder(),
		handlers:   NewHandlers(),
		contexts:   StaticContextProvider{},
		regionData: make(map[string]map[string]any),
		issues:     &issueList{component: "Region"},
	}
	c.tree = c.compile(spec, RootID, "", nil)
	if err := c.issues.err(); err != nil {
		return nil, err
	}
	return c, nil
}

// compile adds the states of one region below regionID. prefix is the id of
// the state owning the region, empty for the root region.
func (c *compiled) compile(spec RegionSpec, regionID, prefix string, inherited []Middleware) *regionNode {
	chain := append(slices.Clone(inherited), spec.Middleware...)
	for _, mw := range chain {
		spec = mw(spec.Clone())
	}
	where := spec.Label
	if where == "" {
		where = regionID
	}
	if regionID == RootID && len(spec.Inherits) > 0 {
		c.issues.addf("root region cannot inherit keys %v", spec.Inherits)
	} else if regionID != RootID {
		c.graph.Region(regionID, spec.Inherits...)
	}

	rn := &regionNode{
		label:    spec.Label,
		node:     regionID,
		prefix:   prefix,
		states:   slices.Clone(spec.States),
		children: make(map[string][]*regionNode),
	}
	if len(spec.States) == 0 {
		c.issues.addf("region '%s' has no states", where)
		return rn
	}
	known := make(map[string]bool, len(spec.States))
	for _, s := range spec.States {
		if s == "" || strings.ContainsAny(s, ".[]") {
			c.issues.addf("region '%s': invalid state name '%s'", where, s)
			continue
		}
		if known[s] {
			c.issues.addf("region '%s': duplicate state '%s'", where, s)
			continue
		}
		known[s] = true
	}
	check := func(what, s string) bool {
		if !known[s] {
			c.issues.addf("region '%s': %s references unknown state '%s'", where, what, s)
			return false
		}
		return true
	}
	id := func(s string) string { return StatePath(prefix, s) }

	for _, s := range spec.States {
		if !known[s] {
			continue
		}
		subs := spec.Regions[s]
		c.graph.NamedState(id(s), s, regionID, len(subs) > 0)
	}

	initial := spec.Initial
	if initial == "" {
		initial = spec.States[0]
	}
	if check("initial", initial) {
		c.graph.Initial(regionID, id(initial))
	}
	final := spec.Final
	if final == "" {
		final = spec.States[len(spec.States)-1]
	}
	if check("final", final) {
		c.graph.Final(id(final))
	}
	if len(spec.Context) > 0 {
		c.regionData[regionID] = maps.Clone(spec.Context)
	}
	for _, s := range slices.Sorted(maps.Keys(spec.StateContexts)) {
		if check("state context", s) {
			c.contexts[id(s)] = maps.Clone(spec.StateContexts[s])
		}
	}
	for _, t := range spec.Transitions {
		okFrom := check("transition source", t.From)
		okTo := check("transition target", t.To)
		if okFrom && okTo {
			c.registry = append(c.registry, TransitionSpec{From: id(t.From), To: id(t.To), Event: t.Event, Guards: t.Guards})
		}
	}
	for _, s := range slices.Sorted(maps.Keys(spec.Enter)) {
		if check("enter handler", s) {
			c.handlers.Enter(id(s), spec.Enter[s]...)
		}
	}
	for _, s := range slices.Sorted(maps.Keys(spec.Exit)) {
		if check("exit handler", s) {
			c.handlers.Exit(id(s), spec.Exit[s]...)
		}
	}
	for _, s := range slices.Sorted(maps.Keys(spec.Action)) {
		if check("action handler", s) {
			c.handlers.Action(id(s), spec.Action[s]...)
		}
	}
	for _, s := range spec.States {
		for i, sub := range spec.Regions[s] {
			if !known[s] {
				break
			}
			nodeID := regionNodeID(id(s), i)
			c.graph.NamedState(nodeID, nodeID, id(s), false)
			rn.children[s] = append(rn.children[s], c.compile(sub, nodeID, id(s), chain))
		}
	}
	for _, s := range slices.Sorted(maps.Keys(spec.Regions)) {
		check("sub-region", s)
	}
	return rn
}

// Region is a compiled region hierarchy driven by one Machine
type Region struct {
	machine  *Machine
	tree     *regionNode
	children map[string][]*Region
}

func newRegion(m *Machine, tree *regionNode) *Region {
	r := &Region{machine: m, tree: tree, children: make(map[string][]*Region)}
	for state, subs := range tree.children {
		for _, sub := range subs {
			r.children[state] = append(r.children[state], newRegion(m, sub))
		}
	}
	return r
}

// Name returns the label of the region, or its node id when unlabeled
func (r *Region) Name() string {
	if r.tree.label != "" {
		return r.tree.label
	}
	return r.tree.node
}

// Machine returns the machine driving the region
func (r *Region) Machine() *Machine {
	return r.machine
}

// States returns the state names of the region in declaration order
func (r *Region) States() []string {
	return slices.Clone(r.tree.states)
}

// Trigger dispatches payload to the whole hierarchy
func (r *Region) Trigger(payload any) error {
	return r.machine.Dispatch(payload)
}

// IsInState reports whether the named state of this region is active.
// Names that are not states of this region are resolved machine-wide.
func (r *Region) IsInState(name string) bool {
	if slices.Contains(r.tree.states, name) {
		return r.machine.config.Contains(StatePath(r.tree.prefix, name))
	}
	return r.machine.IsInState(name)
}

// IsActive reports whether the region itself is part of the configuration
func (r *Region) IsActive() bool {
	return r.machine.config.Contains(r.tree.node)
}

// IsFinal reports whether the region is active and has reached its final state
func (r *Region) IsFinal() bool {
	n, err := r.machine.graph.Get(r.tree.node)
	if err != nil || !r.machine.config.contains(n) {
		return false
	}
	return r.machine.config.IsComplete(n)
}

// GetRegionContext returns a value owned by this region, or nil
func (r *Region) GetRegionContext(key string) any {
	rc, ok := r.machine.contexts.Region(r.tree.node)
	if !ok {
		return nil
	}
	v, _ := rc.Get(key)
	return v
}

// SetRegionContext stores a value owned by this region. Keys the region
// inherits cannot be set here.
func (r *Region) SetRegionContext(key string, value any) error {
	rc, ok := r.machine.contexts.Region(r.tree.node)
	if !ok {
		return NewStateNotFoundError(r.tree.node)
	}
	return rc.Set(key, value)
}

// Regions returns the sub-regions of a state of this region
func (r *Region) Regions(state string) []*Region {
	return slices.Clone(r.children[state])
}
