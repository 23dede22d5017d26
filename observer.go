package strata

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Query is the read-only view of a machine handed to guards
type Query interface {
	IsInState(nameOrID string) bool
}

// Observer is any value implementing at least one of the observer interfaces
// below. Capabilities are detected by type assertion.
type Observer any

// EnterObserver is notified when a state is entered. A returned error is
// routed as a fault.
type EnterObserver interface {
	OnEnter(state *StateNode, ctx *Context) error
}

// ExitObserver is notified when a state is exited
type ExitObserver interface {
	OnExit(state *StateNode, ctx *Context) error
}

// ActionObserver is notified for every trigger dispatched to an active state
type ActionObserver interface {
	OnAction(state *StateNode, ctx *Context) error
}

// TransitionObserver is notified after a transition was applied
type TransitionObserver interface {
	OnTransition(from, to *StateNode, trigger any)
}

// ErrorObserver is notified about faults and recovered panics
type ErrorObserver interface {
	OnError(err error, state *StateNode)
}

// BaseObserver provides no-op implementations of every observer interface
type BaseObserver struct{}

// OnEnter implements EnterObserver
func (BaseObserver) OnEnter(*StateNode, *Context) error { return nil }

// OnExit implements ExitObserver
func (BaseObserver) OnExit(*StateNode, *Context) error { return nil }

// OnAction implements ActionObserver
func (BaseObserver) OnAction(*StateNode, *Context) error { return nil }

// OnTransition implements TransitionObserver
func (BaseObserver) OnTransition(*StateNode, *StateNode, any) {}

// OnError implements ErrorObserver
func (BaseObserver) OnError(error, *StateNode) {}

// ObserverManager manages a collection of observers. Notifications work on a
// copy of the observer list, so observers may be added or removed from
// inside a callback.
type ObserverManager struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *slog.Logger
}

// NewObserverManager creates a new observer manager
func NewObserverManager(logger *slog.Logger) *ObserverManager {
	if logger == nil {
		logger = discardLogger()
	}
	return &ObserverManager{logger: logger}
}

// AddObserver adds an observer to the manager
func (om *ObserverManager) AddObserver(observer Observer) {
	om.mu.Lock()
	defer om.mu.Unlock()
	om.observers = append(om.observers, observer)
}

// RemoveObserver removes an observer from the manager
func (om *ObserverManager) RemoveObserver(observer Observer) {
	om.mu.Lock()
	defer om.mu.Unlock()
	for i, obs := range om.observers {
		if obs == observer {
			om.observers = slices.Delete(om.observers, i, i+1)
			return
		}
	}
}

// Len returns the number of registered observers
func (om *ObserverManager) Len() int {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return len(om.observers)
}

func (om *ObserverManager) snapshot() []Observer {
	om.mu.RLock()
	defer om.mu.RUnlock()
	return slices.Clone(om.observers)
}

// safeNotify runs fn and turns a panic into an error
func safeNotify(kind string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s handler panic: %v", kind, r)
		}
	}()
	return fn()
}

// NotifyEnter notifies every EnterObserver. All observers are called; the
// first failure is returned.
func (om *ObserverManager) NotifyEnter(state *StateNode, ctx *Context) error {
	var first error
	for _, observer := range om.snapshot() {
		obs, ok := observer.(EnterObserver)
		if !ok {
			continue
		}
		if err := safeNotify("enter", func() error { return obs.OnEnter(state, ctx) }); err != nil && first == nil {
			first = NewActionError("enter", state.ID(), err)
		}
	}
	return first
}

// NotifyExit notifies every ExitObserver
func (om *ObserverManager) NotifyExit(state *StateNode, ctx *Context) error {
	var first error
	for _, observer := range om.snapshot() {
		obs, ok := observer.(ExitObserver)
		if !ok {
			continue
		}
		if err := safeNotify("exit", func() error { return obs.OnExit(state, ctx) }); err != nil && first == nil {
			first = NewActionError("exit", state.ID(), err)
		}
	}
	return first
}

// NotifyAction notifies every ActionObserver
func (om *ObserverManager) NotifyAction(state *StateNode, ctx *Context) error {
	var first error
	for _, observer := range om.snapshot() {
		obs, ok := observer.(ActionObserver)
		if !ok {
			continue
		}
		if err := safeNotify("action", func() error { return obs.OnAction(state, ctx) }); err != nil && first == nil {
			first = NewActionError("action", state.ID(), err)
		}
	}
	return first
}

// NotifyTransition notifies every TransitionObserver. Panics are logged and
// reported to error observers.
func (om *ObserverManager) NotifyTransition(from, to *StateNode, trigger any) {
	for _, observer := range om.snapshot() {
		obs, ok := observer.(TransitionObserver)
		if !ok {
			continue
		}
		err := safeNotify("transition", func() error {
			obs.OnTransition(from, to, trigger)
			return nil
		})
		if err != nil {
			om.logger.Warn("observer panic recovered", "hook", "transition", "error", err)
			om.NotifyError(err, from)
		}
	}
}

// NotifyError notifies every ErrorObserver. A panicking error observer is
// logged and otherwise ignored.
func (om *ObserverManager) NotifyError(err error, state *StateNode) {
	for _, observer := range om.snapshot() {
		obs, ok := observer.(ErrorObserver)
		if !ok {
			continue
		}
		if perr := safeNotify("error", func() error {
			obs.OnError(err, state)
			return nil
		}); perr != nil {
			om.logger.Warn("observer panic recovered", "hook", "error", "error", perr)
		}
	}
}

type phase int

const (
	phasePlain phase = iota
	phaseBefore
	phaseAfter
)

// Handler is a callback filtered by trigger type. Build one with
// HandlerFunc, BeforeFunc or AfterFunc.
type Handler struct {
	accepts string
	phase   phase
	call    func(ctx *Context, payload any) (bool, error)
}

// Accepts returns the name of the trigger type the handler is declared for
func (h Handler) Accepts() string {
	return h.accepts
}

// HandlerFunc wraps fn so it only runs for triggers of type T.
// Before and After hook wrappers are never delivered to it.
func HandlerFunc[T any](fn func(ctx *Context, trigger T) error) Handler {
	return Handler{
		accepts: TypeName[T](),
		phase:   phasePlain,
		call: func(ctx *Context, payload any) (bool, error) {
			if IsHook(payload) {
				return false, nil
			}
			v, ok := Accepts[T](payload)
			if !ok {
				return false, nil
			}
			return true, fn(ctx, v)
		},
	}
}

// BeforeFunc wraps fn so it runs ahead of a dispatched trigger of type T
func BeforeFunc[T any](fn func(ctx *Context, trigger T) error) Handler {
	return Handler{
		accepts: "before " + TypeName[T](),
		phase:   phaseBefore,
		call: func(ctx *Context, payload any) (bool, error) {
			inner, ok := unwrapHook(payload, phaseBefore)
			if !ok {
				return false, nil
			}
			v, ok := Accepts[T](inner)
			if !ok {
				return false, nil
			}
			return true, fn(ctx, v)
		},
	}
}

// AfterFunc wraps fn so it runs once a dispatched trigger of type T was processed
func AfterFunc[T any](fn func(ctx *Context, trigger T) error) Handler {
	return Handler{
		accepts: "after " + TypeName[T](),
		phase:   phaseAfter,
		call: func(ctx *Context, payload any) (bool, error) {
			inner, ok := unwrapHook(payload, phaseAfter)
			if !ok {
				return false, nil
			}
			v, ok := Accepts[T](inner)
			if !ok {
				return false, nil
			}
			return true, fn(ctx, v)
		},
	}
}

func unwrapHook(payload any, p phase) (any, bool) {
	switch h := payload.(type) {
	case Before:
		return h.Event, p == phaseBefore
	case *Before:
		if h == nil {
			return nil, false
		}
		return h.Event, p == phaseBefore
	case After:
		return h.Event, p == phaseAfter
	case *After:
		if h == nil {
			return nil, false
		}
		return h.Event, p == phaseAfter
	}
	return nil, false
}

// Handlers is a per-state table of enter, exit and action callbacks.
// It implements EnterObserver, ExitObserver and ActionObserver.
type Handlers struct {
	enter  map[string][]Handler
	exit   map[string][]Handler
	action map[string][]Handler
}

// NewHandlers creates an empty handler table
func NewHandlers() *Handlers {
	return &Handlers{
		enter:  make(map[string][]Handler),
		exit:   make(map[string][]Handler),
		action: make(map[string][]Handler),
	}
}

// Enter registers handlers run when state is entered
func (h *Handlers) Enter(state string, handlers ...Handler) *Handlers {
	h.enter[state] = append(h.enter[state], handlers...)
	return h
}

// Exit registers handlers run when state is exited
func (h *Handlers) Exit(state string, handlers ...Handler) *Handlers {
	h.exit[state] = append(h.exit[state], handlers...)
	return h
}

// Action registers handlers run for triggers dispatched while state is active
func (h *Handlers) Action(state string, handlers ...Handler) *Handlers {
	h.action[state] = append(h.action[state], handlers...)
	return h
}

// Merge appends every handler of other to h
func (h *Handlers) Merge(other *Handlers) *Handlers {
	for s, hs := range other.enter {
		h.Enter(s, hs...)
	}
	for s, hs := range other.exit {
		h.Exit(s, hs...)
	}
	for s, hs := range other.action {
		h.Action(s, hs...)
	}
	return h
}

// States returns the ids of every state with at least one handler
func (h *Handlers) States() []string {
	seen := map[string]bool{}
	var out []string
	for _, table := range []map[string][]Handler{h.enter, h.exit, h.action} {
		for s := range table {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	slices.Sort(out)
	return out
}

// OnEnter implements EnterObserver
func (h *Handlers) OnEnter(state *StateNode, ctx *Context) error {
	return runHandlers(h.enter[state.ID()], ctx)
}

// OnExit implements ExitObserver
func (h *Handlers) OnExit(state *StateNode, ctx *Context) error {
	return runHandlers(h.exit[state.ID()], ctx)
}

// OnAction implements ActionObserver
func (h *Handlers) OnAction(state *StateNode, ctx *Context) error {
	return runHandlers(h.action[state.ID()], ctx)
}

// runHandlers calls every matching handler and stops at the first error
func runHandlers(handlers []Handler, ctx *Context) error {
	for _, handler := range handlers {
		if _, err := handler.call(ctx, ctx.Trigger()); err != nil {
			return err
		}
	}
	return nil
}
