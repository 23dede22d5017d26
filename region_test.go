package strata

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct{ foo int }

func counting(n *int) func(payload) bool {
	return func(payload) bool {
		*n++
		return true
	}
}

func TestRegion_BasicTransition(t *testing.T) {
	var guards, exits, enters int
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		OnExit("one", HandlerFunc(func(*Context, payload) error { exits++; return nil })).
		OnEnter("two", HandlerFunc(func(*Context, payload) error { enters++; return nil })).
		MarkInitial("one").
		PushTransition("one", "two", GuardFunc(counting(&guards))).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.True(t, r.IsInState("two"))
	assert.Equal(t, 1, guards)
	assert.Equal(t, 1, exits)
	assert.Equal(t, 1, enters)
}

func TestRegion_ExceptionHandling(t *testing.T) {
	r, err := NewRegionBuilder().
		SetStates("one", "two", "error").
		OnEnter("two", HandlerFunc(func(*Context, payload) error { return errors.New("boo") })).
		MarkInitial("one").
		PushTransition("one", "two", GuardFunc(func(payload) bool { return true })).
		PushTransition("two", "error", GuardFunc(func(error) bool { return true })).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.True(t, r.IsInState("error"))
}

func TestRegion_BasicSubRegion(t *testing.T) {
	calls := 0
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		MarkInitial("one").
		PushTransition("one", "two", GuardFunc(func(payload) bool { return true })).
		AddRegion("one", NewRegionBuilder().
			SetStates("foo", "bar").
			OnAction("foo", HandlerFunc(func(*Context, payload) error { calls++; return nil })).
			MarkFinal("foo")).
		Build()
	require.NoError(t, err)
	assert.True(t, r.IsInState("foo"))

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.Equal(t, 1, calls)
	assert.True(t, r.IsInState("two"))
	assert.False(t, r.IsInState("foo"))
}

func TestRegion_SubRegionBlocksUntilFinal(t *testing.T) {
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		PushTransition("one", "two", GuardFunc(func(n Named) bool { return n.EventName() == "leave" })).
		AddRegion("one", NewRegionBuilder().
			SetStates("foo", "bar").
			PushEventTransition("foo", "bar", "finish")).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(NewEvent("leave", nil)))
	assert.True(t, r.IsInState("one"), "the sub-region has not reached its final state")

	require.NoError(t, r.Trigger(NewEvent("finish", nil)))
	sub := r.Regions("one")
	require.Len(t, sub, 1)
	assert.True(t, sub[0].IsFinal())

	require.NoError(t, r.Trigger(NewEvent("leave", nil)))
	assert.True(t, r.IsInState("two"))
	assert.False(t, sub[0].IsActive())
	assert.False(t, sub[0].IsFinal())
}

func TestRegion_GetStateContext(t *testing.T) {
	var got any
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		AddRegion("one", NewRegionBuilder().
			SetStates("foo", "bar").
			Inherits("key").
			OnAction("foo", HandlerFunc(func(ctx *Context, _ payload) error {
				got, _ = ctx.Get("key")
				return nil
			})).
			SetStateContext("foo", map[string]any{"key": "value"})).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.Equal(t, "value", got)
}

func TestRegion_NestedRegionContext(t *testing.T) {
	var got string
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		AddRegion("one", NewRegionBuilder().
			SetStates("foo", "bar").
			OnAction("foo", HandlerFunc(func(ctx *Context, _ payload) error {
				got = ctx.GetString("key")
				return nil
			})).
			SetRegionContext(map[string]any{"key": "value"})).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.Equal(t, "value", got)
	assert.Nil(t, r.GetRegionContext("key"))
	assert.Equal(t, "value", r.Regions("one")[0].GetRegionContext("key"))
}

func TestRegion_GetInheritedRegionContext(t *testing.T) {
	var got string
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		AddRegion("one", NewRegionBuilder().
			SetStates("foo", "bar").
			Inherits("key").
			OnAction("foo", HandlerFunc(func(ctx *Context, _ payload) error {
				got = ctx.GetString("key")
				return nil
			}))).
		SetRegionContext(map[string]any{"key": "value"}).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.Equal(t, "value", got)
}

func TestRegion_SetInheritedRegionContext(t *testing.T) {
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		AddRegion("one", NewRegionBuilder().
			SetStates("foo", "bar").
			Inherits("key").
			OnAction("foo", HandlerFunc(func(ctx *Context, _ payload) error {
				return ctx.Set("key", "newValue")
			}))).
		SetRegionContext(map[string]any{"key": "value"}).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	sub := r.Regions("one")[0]
	assert.Equal(t, "newValue", r.GetRegionContext("key"))
	assert.Nil(t, sub.GetRegionContext("key"))

	err = sub.SetRegionContext("key", "direct")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInheritedKey)
	assert.Equal(t, ErrCodeInheritedKey, GetErrorCode(err))
	assert.Contains(t, err.Error(), "cannot set key 'key'")
}

func TestRegion_MutateInheritedRegionContext(t *testing.T) {
	r, err := NewRegionBuilder().
		SetStates("one", "two").
		AddRegion("one", NewRegionBuilder().
			SetStates("foo", "bar").
			Inherits("key").
			OnAction("foo", HandlerFunc(func(ctx *Context, _ payload) error {
				return ctx.Set("key", ctx.GetString("key")+" world")
			}))).
		SetRegionContext(map[string]any{"key": "hello"}).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.Equal(t, "hello world", r.GetRegionContext("key"))
	assert.Nil(t, r.Regions("one")[0].GetRegionContext("key"))
}

func TestRegion_InheritedKeyInSubRegionData(t *testing.T) {
	r, err := NewRegionBuilder().
		SetStates("one").
		AddRegion("one", NewRegionBuilder().
			SetStates("foo").
			Inherits("key").
			SetRegionContext(map[string]any{"key": "shadow", "own": 1})).
		SetRegionContext(map[string]any{"key": "outer"}).
		Build()
	require.NoError(t, err)

	sub := r.Regions("one")[0]
	assert.Nil(t, sub.GetRegionContext("key"), "data for inherited keys is dropped")
	assert.Equal(t, 1, sub.GetRegionContext("own"))
	require.NoError(t, sub.SetRegionContext("own", 2))
	assert.Equal(t, 2, sub.GetRegionContext("own"))
}

func TestRegion_SimpleMiddleware(t *testing.T) {
	r, err := NewRegionBuilder().
		SetStates("one", "two", "three").
		PushTransition("one", "two").
		Use(func(spec RegionSpec) RegionSpec {
			return spec.WithTransition("two", "three")
		}).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.True(t, r.IsInState("three"))
}

func TestRegion_NestedLoggingMiddleware(t *testing.T) {
	var logs []string
	logging := func(spec RegionSpec) RegionSpec {
		return spec.EachState(func(spec RegionSpec, s string) RegionSpec {
			return spec.
				WithEnter(s, HandlerFunc(func(*Context, any) error { logs = append(logs, "ENTER: "+s); return nil })).
				WithExit(s, HandlerFunc(func(*Context, any) error { logs = append(logs, "EXIT: "+s); return nil }))
		})
	}

	r, err := NewRegionBuilder().
		SetStates("1_one", "1_two").
		PushTransition("1_one", "1_two").
		AddRegion("1_two", NewRegionBuilder().
			SetStates("2_foo", "2_bar").
			PushTransition("2_foo", "2_bar")).
		Use(logging).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	require.NoError(t, r.Trigger(payload{foo: 1}))

	assert.Equal(t, []string{
		"EXIT: 1_one",
		"ENTER: 1_two",
		"ENTER: 2_foo",
		"EXIT: 2_foo",
		"ENTER: 2_bar",
	}, logs)
	assert.True(t, r.IsInState("1_two"))
}

func TestRegion_NestedStateName(t *testing.T) {
	var fqsn string
	r, err := NewRegionBuilder().
		SetStates("one").
		AddRegion("one", NewRegionBuilder().
			SetStates("two").
			OnAction("two", HandlerFunc(func(ctx *Context, _ payload) error {
				fqsn = ctx.String()
				return nil
			}))).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.Equal(t, "one.two", fqsn)
	assert.True(t, r.Machine().IsInState("one.two"))
	assert.True(t, r.IsInState("two"))
}

func TestRegion_NamedEvents(t *testing.T) {
	guards := 0
	r, err := NewRegionBuilder().
		SetStates("one", "two", "three").
		PushEventTransition("one", "two", "hello-world", GuardFunc(func(*Event) bool { guards++; return true })).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.False(t, r.IsInState("two"), "non-matching triggers are ignored")

	require.NoError(t, r.Trigger(NewEvent("hello-world", nil)))
	assert.True(t, r.IsInState("two"))
	assert.Equal(t, 1, guards)
}

func TestRegion_AfterEvent(t *testing.T) {
	guards := 0
	r, err := NewRegionBuilder().
		SetStates("one", "two", "three").
		PushTransition("one", "two", AfterGuard(func(Named) bool { guards++; return true })).
		Build()
	require.NoError(t, err)

	require.NoError(t, r.Trigger(payload{foo: 1}))
	assert.False(t, r.IsInState("two"))

	require.NoError(t, r.Trigger(NewEvent("hello-world", nil)))
	assert.Equal(t, 1, guards)
	assert.True(t, r.IsInState("two"))
}

func TestRegion_Facade(t *testing.T) {
	r, err := NewRegionBuilder().
		Label("main").
		SetStates("a", "b").
		AddRegion("b", NewRegionBuilder().SetStates("x", "y")).
		AddRegion("b", NewRegionBuilder().Label("second").SetStates("z")).
		Build(WithID("facade"))
	require.NoError(t, err)

	assert.Equal(t, "main", r.Name())
	assert.Equal(t, []string{"a", "b"}, r.States())
	assert.Equal(t, "facade", r.Machine().ID())
	assert.Empty(t, r.Regions("a"))

	subs := r.Regions("b")
	require.Len(t, subs, 2)
	assert.Equal(t, "b[0]", subs[0].Name())
	assert.Equal(t, "second", subs[1].Name())
	assert.False(t, subs[0].IsActive())
	assert.True(t, r.IsActive())
	assert.True(t, mustNode(t, r.Machine().Graph(), "b").IsParallel())
}

func TestRegion_SameNameInSeveralRegions(t *testing.T) {
	r, err := NewRegionBuilder().
		SetStates("a", "b").
		PushTransition("a", "b").
		AddRegion("a", NewRegionBuilder().SetStates("idle", "busy")).
		AddRegion("b", NewRegionBuilder().SetStates("idle", "busy")).
		Build()
	require.NoError(t, err)

	assert.True(t, r.Regions("a")[0].IsInState("idle"))
	assert.False(t, r.Regions("b")[0].IsInState("idle"))
	assert.True(t, r.Machine().IsInState("idle"), "short names match any active state")
	assert.True(t, r.Machine().IsInState("a.idle"))
	assert.False(t, r.Machine().IsInState("b.idle"))
}

func TestRegionBuilder_ReportsAllProblems(t *testing.T) {
	_, err := NewRegionBuilder().
		SetStates("one", "one", "bad.name").
		MarkInitial("ghost").
		PushTransition("one", "nowhere").
		OnEnter("missing", HandlerFunc(func(*Context, any) error { return nil })).
		Inherits("key").
		AddRegion("unknown", NewRegionBuilder()).
		Build()
	require.Error(t, err)

	var cfg *ConfigurationError
	require.True(t, errors.As(err, &cfg))
	assert.Equal(t, "Region", cfg.Component)
	assert.Subset(t, cfg.Issues, []string{
		"root region cannot inherit keys [key]",
		"region '@@root': duplicate state 'one'",
		"region '@@root': invalid state name 'bad.name'",
		"region '@@root': initial references unknown state 'ghost'",
		"region '@@root': transition target references unknown state 'nowhere'",
		"region '@@root': enter handler references unknown state 'missing'",
		"region '@@root': sub-region references unknown state 'unknown'",
	})
}

func TestRegionBuilder_EmptyStates(t *testing.T) {
	_, err := NewRegionBuilder().Label("empty").Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region 'empty' has no states")
}

func TestRegionSpec_WithHelpersDoNotModifyReceiver(t *testing.T) {
	spec := NewRegionBuilder().SetStates("a", "b").Spec()
	changed := spec.WithTransition("a", "b").WithEnter("a", HandlerFunc(func(*Context, any) error { return nil }))

	assert.Empty(t, spec.Transitions)
	assert.Empty(t, spec.Enter["a"])
	assert.Len(t, changed.Transitions, 1)
	assert.Len(t, changed.Enter["a"], 1)
}

func TestBuildRegion_FromSpec(t *testing.T) {
	spec := RegionSpec{
		States: []string{"off", "on"},
		Transitions: []TransitionSpec{
			{From: "off", To: "on", Event: "toggle"},
			{From: "on", To: "off", Event: "toggle"},
		},
	}
	r, err := BuildRegion(spec)
	require.NoError(t, err)

	require.NoError(t, r.Trigger(NewEvent("toggle", nil)))
	assert.True(t, r.IsInState("on"))
	require.NoError(t, r.Trigger(NewEvent("toggle", nil)))
	assert.True(t, r.IsInState("off"))
	assert.True(t, mustNode(t, r.Machine().Graph(), "on").IsFinal())
}
