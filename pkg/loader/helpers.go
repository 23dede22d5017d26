package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anggasct/strata"
)

// Registry returns a helper looking its content up in entries, so that
// `!get isAdmin` resolves to entries["isAdmin"].
func Registry(entries map[string]any) Helper {
	return func(content string) (any, error) {
		v, ok := entries[content]
		if !ok {
			return nil, fmt.Errorf("no entry '%s'", content)
		}
		return v, nil
	}
}

// Builtins returns the helpers available without any registration:
//
//	!event name   guard enabled by named triggers called name
//	!log message  handler logging message at info level
//	!set key=val  handler storing val under key in the context
func Builtins() map[string]Helper {
	return map[string]Helper{
		"event": eventHelper,
		"log":   logHelper,
		"set":   setHelper,
	}
}

func eventHelper(content string) (any, error) {
	if content == "" {
		return nil, fmt.Errorf("event name is required")
	}
	return strata.GuardFunc(func(e strata.Named) bool {
		return e.EventName() == content
	}), nil
}

func logHelper(content string) (any, error) {
	return strata.HandlerFunc(func(ctx *strata.Context, _ any) error {
		ctx.Logger().Info(content)
		return nil
	}), nil
}

func setHelper(content string) (any, error) {
	key, raw, ok := strings.Cut(content, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return nil, fmt.Errorf("expected key=value, got '%s'", content)
	}
	value := parseScalar(strings.TrimSpace(raw))
	return strata.HandlerFunc(func(ctx *strata.Context, _ any) error {
		return ctx.Set(key, value)
	}), nil
}

func parseScalar(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
