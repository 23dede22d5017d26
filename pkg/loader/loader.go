// Package loader reads region hierarchies from YAML documents or generic maps
// and turns them into strata.RegionBuilder values.
//
// Guards and handlers are written as tagged values. The tag names a Helper
// and the value is passed to it:
//
//	label: switch
//	states:
//	  - name: off
//	    transitions:
//	      - target: on
//	        guard: !event press
//	  - name: on
//	    onEnter:
//	      - run: !log switched on
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/anggasct/strata"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Helper resolves the content of a tagged value into a guard or handler
type Helper func(content string) (any, error)

// Loader builds regions from declarative documents
type Loader struct {
	helpers map[string]Helper
}

// New creates a loader resolving tags through helpers
func New(helpers map[string]Helper) *Loader {
	l := &Loader{helpers: make(map[string]Helper, len(helpers))}
	for tag, h := range helpers {
		l.helpers[strings.TrimPrefix(tag, "!")] = h
	}
	return l
}

// WithHelper returns a copy of the loader with an additional helper
func (l *Loader) WithHelper(tag string, h Helper) *Loader {
	next := New(l.helpers)
	next.helpers[strings.TrimPrefix(tag, "!")] = h
	return next
}

// FromYAML parses a YAML document into a region builder. Unknown keys are
// rejected.
func (l *Loader) FromYAML(data []byte) (*strata.RegionBuilder, error) {
	cfg, err := ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return l.Build(cfg)
}

// FromFile reads and parses a YAML file
func (l *Loader) FromFile(path string) (*strata.RegionBuilder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read region file: %w", err)
	}
	return l.FromYAML(data)
}

// FromMap decodes a generic map into a region builder. Guards and handlers
// may be given as "!tag content" strings or directly as strata.Guard,
// strata.Handler or plain funcs.
func (l *Loader) FromMap(m map[string]any) (*strata.RegionBuilder, error) {
	cfg, err := DecodeMap(m)
	if err != nil {
		return nil, err
	}
	return l.Build(cfg)
}

// ParseYAML decodes a YAML document without resolving any helper
func ParseYAML(data []byte) (RegionConfig, error) {
	var cfg RegionConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, strata.NewConfigurationError("Loader", "document is empty")
		}
		var typeErr *yaml.TypeError
		if errors.As(err, &typeErr) {
			return cfg, strata.NewConfigurationError("Loader", typeErr.Errors...)
		}
		return cfg, fmt.Errorf("parse region document: %w", err)
	}
	return cfg, nil
}

// DecodeMap decodes a generic map without resolving any helper
func DecodeMap(m map[string]any) (RegionConfig, error) {
	var cfg RegionConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  callbackHook,
		ErrorUnused: true,
		Result:      &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(m); err != nil {
		var msErr *mapstructure.Error
		if errors.As(err, &msErr) {
			return cfg, strata.NewConfigurationError("Loader", msErr.Errors...)
		}
		return cfg, err
	}
	return cfg, nil
}

// Build validates cfg and converts it into a region builder
func (l *Loader) Build(cfg RegionConfig) (*strata.RegionBuilder, error) {
	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return l.region(cfg)
}

func (l *Loader) region(cfg RegionConfig) (*strata.RegionBuilder, error) {
	b := strata.NewRegionBuilder().
		Label(cfg.Label).
		SetStates(cfg.stateNames()...).
		Inherits(cfg.Inherits...)
	if cfg.Initial != "" {
		b.MarkInitial(cfg.Initial)
	}
	if cfg.Final != "" {
		b.MarkFinal(cfg.Final)
	}
	if cfg.Context != nil {
		b.SetRegionContext(cfg.Context)
	}

	for _, st := range cfg.States {
		if st.Context != nil {
			b.SetStateContext(st.Name, st.Context)
		}
		for _, t := range st.Transitions {
			var guards []strata.Guard
			if t.Guard != nil && !t.Guard.isZero() {
				g, err := l.guard(*t.Guard)
				if err != nil {
					return nil, fmt.Errorf("state '%s': %w", st.Name, err)
				}
				guards = append(guards, g)
			}
			if t.Event != "" {
				b.PushEventTransition(st.Name, t.Target, t.Event, guards...)
			} else {
				b.PushTransition(st.Name, t.Target, guards...)
			}
		}

		hooks := []struct {
			entries []ActionConfig
			add     func(string, ...strata.Handler) *strata.RegionBuilder
		}{
			{st.OnEnter, b.OnEnter},
			{st.OnExit, b.OnExit},
			{st.Action, b.OnAction},
		}
		for _, hook := range hooks {
			for _, a := range hook.entries {
				h, err := l.handler(a.Run)
				if err != nil {
					return nil, fmt.Errorf("state '%s': %w", st.Name, err)
				}
				hook.add(st.Name, h)
			}
		}

		for _, sub := range st.Regions {
			sb, err := l.region(sub)
			if err != nil {
				return nil, err
			}
			b.AddRegion(st.Name, sb)
		}
	}
	return b, nil
}

func (l *Loader) resolve(c Callback) (any, error) {
	if c.value != nil {
		return c.value, nil
	}
	h, ok := l.helpers[c.Tag]
	if !ok {
		return nil, fmt.Errorf("undefined helper '%s'", c.Tag)
	}
	v, err := h(c.Content)
	if err != nil {
		return nil, fmt.Errorf("helper '%s': %w", c.Tag, err)
	}
	return v, nil
}

func (l *Loader) guard(c Callback) (strata.Guard, error) {
	v, err := l.resolve(c)
	if err != nil {
		return strata.Guard{}, err
	}
	switch g := v.(type) {
	case strata.Guard:
		return g, nil
	case func(any) bool:
		return strata.GuardFunc(g), nil
	case func(any, strata.Query) bool:
		return strata.GuardWithMachine(g), nil
	case bool:
		return strata.GuardFunc(func(any) bool { return g }), nil
	}
	return strata.Guard{}, fmt.Errorf("%s resolved to %T, which is not a guard", c, v)
}

func (l *Loader) handler(c Callback) (strata.Handler, error) {
	v, err := l.resolve(c)
	if err != nil {
		return strata.Handler{}, err
	}
	switch h := v.(type) {
	case strata.Handler:
		return h, nil
	case func(*strata.Context, any) error:
		return strata.HandlerFunc(h), nil
	case func(*strata.Context) error:
		return strata.HandlerFunc(func(ctx *strata.Context, _ any) error { return h(ctx) }), nil
	case func(*strata.Context):
		return strata.HandlerFunc(func(ctx *strata.Context, _ any) error {
			h(ctx)
			return nil
		}), nil
	}
	return strata.Handler{}, fmt.Errorf("%s resolved to %T, which is not a handler", c, v)
}
