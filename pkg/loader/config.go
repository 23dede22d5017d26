package loader

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegionConfig is the declarative form of a region
type RegionConfig struct {
	Label    string         `yaml:"label" mapstructure:"label"`
	Inherits []string       `yaml:"inherits" mapstructure:"inherits"`
	Initial  string         `yaml:"initial" mapstructure:"initial"`
	Final    string         `yaml:"final" mapstructure:"final"`
	Context  map[string]any `yaml:"context" mapstructure:"context"`
	States   []StateConfig  `yaml:"states" mapstructure:"states"`
}

func (c RegionConfig) stateNames() []string {
	names := make([]string, 0, len(c.States))
	for _, s := range c.States {
		names = append(names, s.Name)
	}
	return names
}

// StateConfig is the declarative form of a state
type StateConfig struct {
	Name        string             `yaml:"name" mapstructure:"name"`
	Transitions []TransitionConfig `yaml:"transitions" mapstructure:"transitions"`
	OnEnter     []ActionConfig     `yaml:"onEnter" mapstructure:"onEnter"`
	OnExit      []ActionConfig     `yaml:"onExit" mapstructure:"onExit"`
	Action      []ActionConfig     `yaml:"action" mapstructure:"action"`
	Regions     []RegionConfig     `yaml:"regions" mapstructure:"regions"`
	Context     map[string]any     `yaml:"context" mapstructure:"context"`
}

// TransitionConfig leaves its state for Target. A missing guard enables the
// transition for every trigger.
type TransitionConfig struct {
	Target string    `yaml:"target" mapstructure:"target"`
	Event  string    `yaml:"event" mapstructure:"event"`
	Guard  *Callback `yaml:"guard" mapstructure:"guard"`
}

// ActionConfig is one enter, exit or action handler
type ActionConfig struct {
	Run Callback `yaml:"run" mapstructure:"run"`
}

// Callback references a guard or handler, either as a helper tag with its
// content or as a value given directly in map input.
type Callback struct {
	Tag     string
	Content string
	value   any
}

// Func wraps a guard or handler value given directly
func Func(v any) Callback {
	return Callback{value: v}
}

// ParseCallback reads the "!tag content" notation
func ParseCallback(s string) Callback {
	if !strings.HasPrefix(s, "!") {
		return Callback{Content: s}
	}
	tag, content, _ := strings.Cut(s[1:], " ")
	return Callback{Tag: tag, Content: strings.TrimSpace(content)}
}

func (c Callback) String() string {
	switch {
	case c.value != nil:
		return fmt.Sprintf("callback %T", c.value)
	case c.Tag == "":
		return fmt.Sprintf("callback '%s'", c.Content)
	case c.Content == "":
		return fmt.Sprintf("callback !%s", c.Tag)
	}
	return fmt.Sprintf("callback !%s %s", c.Tag, c.Content)
}

func (c Callback) isZero() bool {
	return c.value == nil && c.Tag == "" && c.Content == ""
}

// UnmarshalYAML reads a tagged scalar such as `!get isAdmin`
func (c *Callback) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: callback must be a tagged scalar", node.Line)
	}
	c.Content = node.Value
	c.Tag = ""
	if node.Style&yaml.TaggedStyle != 0 && !strings.HasPrefix(node.Tag, "!!") {
		c.Tag = strings.TrimPrefix(node.Tag, "!")
	}
	return nil
}

var callbackType = reflect.TypeOf(Callback{})

func callbackHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != callbackType {
		return data, nil
	}
	switch v := data.(type) {
	case Callback:
		return v, nil
	case *Callback:
		return *v, nil
	case string:
		return ParseCallback(v), nil
	}
	return Func(data), nil
}
