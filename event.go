package strata

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Named is implemented by triggers that carry an event name
type Named interface {
	EventName() string
}

// Event is a general purpose named trigger
type Event struct {
	ID        string
	Name      string
	Data      any
	Timestamp time.Time
}

// NewEvent creates a new named event
func NewEvent(name string, data any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Name:      name,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// EventName returns the event name
func (e *Event) EventName() string {
	return e.Name
}

func (e *Event) String() string {
	return e.Name
}

// Before wraps a trigger before it is processed by Dispatch.
// Only handlers registered with BeforeFunc receive it.
type Before struct {
	Event any
}

// After wraps a trigger after it was processed by Dispatch.
// Only handlers registered with AfterFunc receive it.
type After struct {
	Event any
}

// Fault is the trigger raised when a handler fails during a transition
type Fault struct {
	Err   error
	State string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault in state '%s': %v", f.State, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Accepts downcasts payload to T. The second result is false when the
// payload is not a T.
func Accepts[T any](payload any) (T, bool) {
	v, ok := payload.(T)
	return v, ok
}

// TypeName returns a readable name of T, used in logs and graph labels
func TypeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// eventName extracts the name of a named trigger
func eventName(payload any) (string, bool) {
	if n, ok := payload.(Named); ok {
		return n.EventName(), true
	}
	return "", false
}

// IsHook reports whether payload is a Before or After wrapper
func IsHook(payload any) bool {
	switch payload.(type) {
	case Before, *Before, After, *After:
		return true
	}
	return false
}

// describe returns a short label for a trigger
func describe(payload any) string {
	if name, ok := eventName(payload); ok {
		return name
	}
	return fmt.Sprintf("%T", payload)
}
