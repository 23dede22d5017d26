package loader

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/anggasct/strata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recording returns a loader whose !record helper appends its content to log
func recording(log *[]string) *Loader {
	return New(Builtins()).WithHelper("record", func(content string) (any, error) {
		return func(*strata.Context) error {
			*log = append(*log, content)
			return nil
		}, nil
	})
}

func build(t *testing.T, l *Loader, doc string, opts ...strata.Option) *strata.Region {
	t.Helper()
	b, err := l.FromYAML([]byte(doc))
	require.NoError(t, err)
	r, err := b.Build(opts...)
	require.NoError(t, err)
	return r
}

func TestFromYAML_Switch(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r := build(t, New(Builtins()), `
label: switch
states:
  - name: off
    transitions:
      - target: on
        guard: !event press
  - name: on
    transitions:
      - target: off
        guard: !event press
    onEnter:
      - run: !log switched on
      - run: !set count=1
`, strata.WithLogger(logger))

	assert.Equal(t, "switch", r.Name())
	assert.Equal(t, []string{"off", "on"}, r.States())
	assert.True(t, r.IsInState("off"))

	require.NoError(t, r.Trigger(strata.NewEvent("ignored", nil)))
	assert.True(t, r.IsInState("off"))

	require.NoError(t, r.Trigger(strata.NewEvent("press", nil)))
	assert.True(t, r.IsInState("on"))
	assert.Equal(t, 1, r.GetRegionContext("count"))
	assert.Contains(t, buf.String(), `"msg":"switched on"`)

	require.NoError(t, r.Trigger(strata.NewEvent("press", nil)))
	assert.True(t, r.IsInState("off"))
}

func TestFromYAML_EnterParallelSuperState(t *testing.T) {
	var log []string
	r := build(t, recording(&log), `
states:
  - name: foo
    transitions:
      - target: bar
    onExit:
      - run: !record exit foo
  - name: bar
    onEnter:
      - run: !record enter bar
    regions:
      - label: one
        states:
          - name: bar_1
            onEnter:
              - run: !record enter bar_1
      - label: two
        states:
          - name: bar_2_1
            transitions:
              - target: bar_2_2
            onEnter:
              - run: !record enter bar_2_1
            onExit:
              - run: !record exit bar_2_1
          - name: bar_2_2
            onEnter:
              - run: !record enter bar_2_2
`)

	require.NoError(t, r.Trigger(strata.NewEvent("go", nil)))
	assert.Equal(t, []string{"exit foo", "enter bar", "enter bar_1", "enter bar_2_1"}, log)
	for _, name := range []string{"bar", "bar_1", "bar_2_1"} {
		assert.True(t, r.IsInState(name), name)
	}
	assert.False(t, r.IsInState("foo"))

	subs := r.Regions("bar")
	require.Len(t, subs, 2)
	assert.Equal(t, "two", subs[1].Name())
	assert.False(t, subs[1].IsFinal())

	log = nil
	require.NoError(t, r.Trigger(strata.NewEvent("go", nil)))
	assert.Equal(t, []string{"exit bar_2_1", "enter bar_2_2"}, log)
	assert.True(t, subs[0].IsFinal())
	assert.True(t, subs[1].IsFinal())
}

func TestFromYAML_EnterNotRecurringForSuperstates(t *testing.T) {
	var log []string
	r := build(t, recording(&log), `
states:
  - name: off
    transitions:
      - target: on
  - name: on
    onEnter:
      - run: !record on
    regions:
      - states:
          - name: sub_1
            transitions:
              - target: sub_2
          - name: sub_2
`)

	require.NoError(t, r.Trigger(strata.NewEvent("go", nil)))
	require.NoError(t, r.Trigger(strata.NewEvent("go", nil)))
	assert.True(t, r.IsInState("sub_2"))
	assert.Equal(t, []string{"on"}, log)
}

func TestFromYAML_TypedGuardFromRegistry(t *testing.T) {
	l := New(map[string]Helper{
		"get": Registry(map[string]any{
			"isTime": strata.GuardFunc(func(time.Time) bool { return true }),
		}),
	})
	r := build(t, l, `
states:
  - name: off
    transitions:
      - target: on
        guard: !get isTime
  - name: on
`)

	require.NoError(t, r.Trigger("not a time"))
	assert.True(t, r.IsInState("off"))

	require.NoError(t, r.Trigger(time.Now()))
	assert.True(t, r.IsInState("on"))
	assert.True(t, r.IsFinal())
}

func TestFromYAML_InitialFinalAndContexts(t *testing.T) {
	r := build(t, New(Builtins()), `
initial: b
final: b
context:
  key: hello
states:
  - name: a
  - name: b
    context:
      local: 1
    regions:
      - inherits: [key]
        context:
          key: ignored
          own: x
        states:
          - name: inner
            action:
              - run: !set key=world
`)

	assert.True(t, r.IsInState("b"))
	assert.True(t, r.IsInState("inner"))

	require.NoError(t, r.Machine().Action(strata.NewEvent("work", nil)))
	assert.Equal(t, "world", r.GetRegionContext("key"))

	sub := r.Regions("b")[0]
	assert.Nil(t, sub.GetRegionContext("key"))
	assert.Equal(t, "x", sub.GetRegionContext("own"))

	sc, ok := r.Machine().Context("b")
	require.True(t, ok)
	v, _ := sc.Get("local")
	assert.Equal(t, 1, v)
}

func TestFromYAML_EventTransitions(t *testing.T) {
	r := build(t, New(nil), `
states:
  - name: idle
    transitions:
      - target: busy
        event: start
  - name: busy
`)

	require.NoError(t, r.Trigger(strata.NewEvent("stop", nil)))
	assert.True(t, r.IsInState("idle"))
	require.NoError(t, r.Trigger(strata.NewEvent("start", nil)))
	assert.True(t, r.IsInState("busy"))
}

func TestFromMap(t *testing.T) {
	var entered []string
	l := New(Builtins())
	b, err := l.FromMap(map[string]any{
		"label":   "main",
		"context": map[string]any{"key": "hello"},
		"states": []any{
			map[string]any{
				"name": "idle",
				"transitions": []any{
					map[string]any{"target": "running", "guard": "!event go"},
					map[string]any{"target": "done", "guard": strata.GuardFunc(func(n int) bool { return n > 10 })},
				},
			},
			map[string]any{
				"name": "running",
				"onEnter": []any{
					map[string]any{"run": func(ctx *strata.Context) error {
						entered = append(entered, ctx.Name())
						return ctx.Set("key", ctx.GetString("key")+" world")
					}},
				},
				"transitions": []map[string]any{
					{"target": "done", "guard": func(v any) bool { return v == "finish" }},
				},
			},
			map[string]any{"name": "done"},
		},
	})
	require.NoError(t, err)
	r, err := b.Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(3))
	assert.True(t, r.IsInState("idle"))

	require.NoError(t, r.Trigger(strata.NewEvent("go", nil)))
	assert.True(t, r.IsInState("running"))
	assert.Equal(t, []string{"running"}, entered)
	assert.Equal(t, "hello world", r.GetRegionContext("key"))

	require.NoError(t, r.Trigger("finish"))
	assert.True(t, r.IsFinal())
}

func TestFromMap_Guards(t *testing.T) {
	b, err := New(nil).FromMap(map[string]any{
		"states": []any{
			map[string]any{"name": "a", "transitions": []any{map[string]any{"target": "b", "guard": ""}}},
			map[string]any{"name": "b"},
		},
	})
	require.NoError(t, err)
	r, err := b.Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(1))
	assert.True(t, r.IsInState("b"), "an empty guard enables every trigger")
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	cfg, err := ParseYAML([]byte(`
label: main
initial: nowhere
states:
  - name: a
    transitions:
      - target: b
        guard: !missing x
  - transitions: []
  - name: a
    onEnter:
      - run: plain
      - {}
    regions:
      - label: inner
        states: []
`))
	require.NoError(t, err)

	err = New(nil).Validate(cfg)
	require.Error(t, err)

	var cfgErr *strata.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.ElementsMatch(t, []string{
		"region 'main': state #1 has no name",
		"region 'main': duplicate state 'a'",
		"region 'main': initial state 'nowhere' is not declared",
		"region 'main': state 'a': transition target 'b' is not declared",
		"region 'main': state 'a': transition #0 guard: undefined helper 'missing'",
		"region 'main': state 'a': onEnter #0: callback 'plain' has no helper tag",
		"region 'main': state 'a': onEnter #1: run is required",
		"region 'inner': states must not be empty",
	}, cfgErr.Issues)

	_, err = New(nil).Build(cfg)
	assert.True(t, strata.IsConfigurationError(err))
}

func TestValidate_UnlabeledRegionsUsePaths(t *testing.T) {
	err := New(nil).Validate(RegionConfig{
		States: []StateConfig{{
			Name:    "s",
			Regions: []RegionConfig{{}, {States: []StateConfig{{Name: "x"}}}},
		}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region 'root/s[0]': states must not be empty")
	assert.NotContains(t, err.Error(), "root/s[1]")
}

func TestParseYAML_Errors(t *testing.T) {
	_, err := ParseYAML([]byte("labl: x\nstates:\n  - name: a\n    enter: []\n"))
	require.Error(t, err)
	var cfgErr *strata.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, cfgErr.Issues, 2)
	assert.Contains(t, cfgErr.Issues[0], "labl")
	assert.Contains(t, cfgErr.Issues[1], "enter")

	_, err = ParseYAML(nil)
	assert.True(t, strata.IsConfigurationError(err))

	_, err = ParseYAML([]byte("states: [unclosed"))
	assert.ErrorContains(t, err, "parse region document")

	_, err = ParseYAML([]byte("states:\n  - name: a\n    action:\n      - run: [1, 2]\n"))
	assert.Error(t, err)
}

func TestDecodeMap_UnknownKeys(t *testing.T) {
	_, err := DecodeMap(map[string]any{"labl": "x", "states": []any{}})
	require.Error(t, err)
	assert.True(t, strata.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "labl")
}

func TestBuild_HelperFailures(t *testing.T) {
	l := New(Builtins()).WithHelper("get", Registry(map[string]any{"answer": 42}))

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"helper error", "states:\n  - name: a\n    action:\n      - run: !set nokey\n", "expected key=value"},
		{"missing entry", "states:\n  - name: a\n    action:\n      - run: !get nothing\n", "no entry 'nothing'"},
		{"not a handler", "states:\n  - name: a\n    action:\n      - run: !get answer\n", "resolved to int, which is not a handler"},
		{"not a guard", "states:\n  - name: a\n    transitions:\n      - target: a\n        guard: !get answer\n", "resolved to int, which is not a guard"},
		{"empty event", "states:\n  - name: a\n    transitions:\n      - target: a\n        guard: !event\n", "event name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.FromYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "state 'a'")
		})
	}
}

func TestWithHelper_DoesNotModifyReceiver(t *testing.T) {
	base := New(map[string]Helper{"!a": Registry(nil)})
	ext := base.WithHelper("b", Registry(nil))

	assert.Contains(t, base.helpers, "a")
	assert.NotContains(t, base.helpers, "b")
	assert.Contains(t, ext.helpers, "a")
	assert.Contains(t, ext.helpers, "b")
}

func TestParseCallback(t *testing.T) {
	tests := map[string]Callback{
		"!get isAdmin":     {Tag: "get", Content: "isAdmin"},
		"!log hello world": {Tag: "log", Content: "hello world"},
		"!event":           {Tag: "event"},
		"plain":            {Content: "plain"},
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseCallback(in), in)
	}

	assert.Equal(t, "callback !get isAdmin", ParseCallback("!get isAdmin").String())
	assert.Equal(t, "callback 'plain'", ParseCallback("plain").String())
	assert.Equal(t, "callback !event", ParseCallback("!event").String())
	assert.Equal(t, "callback int", Func(1).String())
}

func TestFromFile(t *testing.T) {
	_, err := New(nil).FromFile("testdata/does-not-exist.yaml")
	assert.ErrorContains(t, err, "read region file")
}
