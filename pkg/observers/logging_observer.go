// Package observers provides observers for monitoring state machine events
package observers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/anggasct/strata"
)

// LoggingObserver logs state machine events through slog
type LoggingObserver struct {
	strata.BaseObserver
	level  slog.Level
	mutex  sync.RWMutex
	logger *slog.Logger
}

// NewLoggingObserver creates a logging observer. Enter, exit and transition
// records are written at level, actions at debug and errors at error level.
func NewLoggingObserver(logger *slog.Logger, level slog.Level) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{level: level, logger: logger}
}

// SetLogger replaces the logger
func (o *LoggingObserver) SetLogger(logger *slog.Logger) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.logger = logger
}

func (o *LoggingObserver) log(level slog.Level, msg string, args ...any) {
	o.mutex.RLock()
	logger := o.logger
	o.mutex.RUnlock()
	logger.Log(context.Background(), level, msg, args...)
}

// OnEnter logs state entry
func (o *LoggingObserver) OnEnter(state *strata.StateNode, ctx *strata.Context) error {
	o.log(o.level, "entering state", "state", state.ID(), "trigger", triggerName(trigger(ctx)))
	return nil
}

// OnExit logs state exit
func (o *LoggingObserver) OnExit(state *strata.StateNode, ctx *strata.Context) error {
	o.log(o.level, "exiting state", "state", state.ID(), "trigger", triggerName(trigger(ctx)))
	return nil
}

// OnAction logs actions
func (o *LoggingObserver) OnAction(state *strata.StateNode, ctx *strata.Context) error {
	o.log(slog.LevelDebug, "action", "state", state.ID(), "trigger", triggerName(trigger(ctx)))
	return nil
}

// OnTransition logs transitions
func (o *LoggingObserver) OnTransition(from, to *strata.StateNode, trigger any) {
	o.log(o.level, "transition", "from", nodeName(from), "to", nodeName(to), "trigger", triggerName(trigger))
}

// OnError logs faults
func (o *LoggingObserver) OnError(err error, state *strata.StateNode) {
	o.log(slog.LevelError, "state machine error", "state", nodeName(state), "error", err)
}

func trigger(ctx *strata.Context) any {
	if ctx == nil {
		return nil
	}
	return ctx.Trigger()
}

func nodeName(n *strata.StateNode) string {
	if n == nil {
		return "nil"
	}
	return n.ID()
}

func triggerName(trigger any) string {
	switch t := trigger.(type) {
	case nil:
		return "nil"
	case strata.Named:
		return t.EventName()
	case *strata.Fault:
		return "fault"
	case strata.Before:
		return "before " + triggerName(t.Event)
	case *strata.Before:
		return "before " + triggerName(t.Event)
	case strata.After:
		return "after " + triggerName(t.Event)
	case *strata.After:
		return "after " + triggerName(t.Event)
	}
	return fmt.Sprintf("%T", trigger)
}
