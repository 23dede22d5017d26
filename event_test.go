package strata

import (
	"errors"
	"testing"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent("start", 42)

	if e.Name != "start" || e.EventName() != "start" {
		t.Errorf("Expected name 'start', got '%s'", e.Name)
	}
	if e.Data != 42 {
		t.Errorf("Expected data 42, got %v", e.Data)
	}
	if e.ID == "" {
		t.Error("Expected a generated ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("Expected a timestamp")
	}
	if other := NewEvent("start", nil); other.ID == e.ID {
		t.Error("Expected unique IDs")
	}
	if e.String() != "start" {
		t.Errorf("Expected String to return the name, got %s", e.String())
	}
}

func TestAccepts(t *testing.T) {
	if v, ok := Accepts[tick](tick{n: 7}); !ok || v.n != 7 {
		t.Error("Expected tick to be accepted")
	}
	if _, ok := Accepts[tick](login{}); ok {
		t.Error("Expected login not to be accepted as tick")
	}
	if _, ok := Accepts[Named](NewEvent("x", nil)); !ok {
		t.Error("Expected events to be accepted as Named")
	}
	if _, ok := Accepts[error](&Fault{Err: boom}); !ok {
		t.Error("Expected faults to be accepted as error")
	}
	if _, ok := Accepts[any](nil); ok {
		t.Error("Expected nil not to be accepted")
	}
}

func TestTypeName(t *testing.T) {
	tests := map[string]string{
		TypeName[tick]():   "strata.tick",
		TypeName[*Event](): "*strata.Event",
		TypeName[error]():  "error",
		TypeName[any]():    "interface {}",
	}
	for got, want := range tests {
		if got != want {
			t.Errorf("Expected %s, got %s", want, got)
		}
	}
}

func TestIsHook(t *testing.T) {
	hooks := []any{Before{Event: tick{}}, &Before{}, After{Event: tick{}}, &After{}}
	for _, h := range hooks {
		if !IsHook(h) {
			t.Errorf("Expected %T to be a hook", h)
		}
	}
	for _, p := range []any{tick{}, NewEvent("x", nil), &Fault{}, nil} {
		if IsHook(p) {
			t.Errorf("Expected %T not to be a hook", p)
		}
	}
}

func TestFault(t *testing.T) {
	f := &Fault{Err: boom, State: "two"}

	if f.Error() != "fault in state 'two': boom" {
		t.Errorf("Unexpected message: %s", f.Error())
	}
	if !errors.Is(f, boom) {
		t.Error("Expected fault to unwrap to its cause")
	}
}

func TestDescribe(t *testing.T) {
	if got := describe(NewEvent("go", nil)); got != "go" {
		t.Errorf("Expected event name, got %s", got)
	}
	if got := describe(tick{}); got != "strata.tick" {
		t.Errorf("Expected type name, got %s", got)
	}
}
