// Package strata provides a hierarchical and parallel state machine engine
// in the style of Harel statecharts.
//
// A Graph describes the states. A Machine tracks the active configuration of
// that graph: the set of states currently active, which for parallel states
// contains one branch per child. Triggers are plain Go values; guards and
// handlers declare the trigger type they accept and are skipped for any
// other type.
//
//	g, _ := strata.NewGraphBuilder().
//		State("off", "").
//		State("on", "").
//		Build()
//	transitions := strata.NewTransitionRegistry(g)
//	_ = transitions.Register("off", "on", strata.GuardFunc(func(p Press) bool { return true }))
//	m, _ := strata.NewMachine(g, transitions, nil, "off")
//	_ = m.Dispatch(Press{})
//
// The region API (RegionBuilder) offers a declarative layer on top: regions
// with sub-regions, inherited context keys and middleware, compiled into the
// same graph and engine.
package strata
