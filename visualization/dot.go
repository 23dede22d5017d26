// Package visualization renders state graphs in Graphviz formats
package visualization

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/anggasct/strata"
)

// DOTGenerator generates Graphviz DOT representations of a state graph
type DOTGenerator struct {
	graph       *strata.Graph
	transitions []strata.Transition
	active      *strata.Configuration
	options     DOTOptions
}

// DOTOptions configures the DOT generation
type DOTOptions struct {
	ShowLabels          bool
	CompactMode         bool   // flat node list without clusters
	RankDirection       string // "TB", "LR", "BT", "RL"
	NodeShape           string
	CompositeStateStyle string
	ParallelStateStyle  string
	ActiveColor         string
}

// DefaultDOTOptions returns the default options
func DefaultDOTOptions() DOTOptions {
	return DOTOptions{
		ShowLabels:          true,
		RankDirection:       "TB",
		NodeShape:           "box",
		CompositeStateStyle: "rounded",
		ParallelStateStyle:  "dashed",
		ActiveColor:         "gold",
	}
}

// NewDOTGenerator creates a generator for g and its transitions
func NewDOTGenerator(g *strata.Graph, transitions []strata.Transition, options ...DOTOptions) *DOTGenerator {
	opts := DefaultDOTOptions()
	if len(options) > 0 {
		opts = options[0]
	}
	return &DOTGenerator{graph: g, transitions: transitions, options: opts}
}

// ForMachine creates a generator for the graph of m, highlighting its active
// configuration. Transitions are included when the provider can list them.
func ForMachine(m *strata.Machine, options ...DOTOptions) *DOTGenerator {
	var transitions []strata.Transition
	if lister, ok := m.Provider().(interface{ Transitions() []strata.Transition }); ok {
		transitions = lister.Transitions()
	}
	return NewDOTGenerator(m.Graph(), transitions, options...).WithConfiguration(m.Configuration())
}

// WithConfiguration highlights the states of c
func (g *DOTGenerator) WithConfiguration(c *strata.Configuration) *DOTGenerator {
	g.active = c
	return g
}

// Generate creates a DOT representation of the graph
func (g *DOTGenerator) Generate() (string, error) {
	if g.graph == nil {
		return "", fmt.Errorf("graph is required")
	}
	var dot strings.Builder

	dot.WriteString("digraph StateMachine {\n")
	fmt.Fprintf(&dot, "  rankdir=%s;\n", g.options.RankDirection)
	dot.WriteString("  compound=true;\n")
	fmt.Fprintf(&dot, "  node [shape=%s];\n", g.options.NodeShape)
	dot.WriteString("  edge [fontsize=10];\n\n")

	dot.WriteString("  // States\n")
	for _, n := range g.graph.Root().Children() {
		g.writeState(&dot, n, "  ")
	}

	dot.WriteString("\n  // Transitions\n")
	for _, t := range g.transitions {
		g.writeTransition(&dot, t)
	}

	dot.WriteString("}\n")
	return dot.String(), nil
}

func (g *DOTGenerator) isActive(n *strata.StateNode) bool {
	return g.active != nil && g.active.Contains(n.ID())
}

func (g *DOTGenerator) clustered(n *strata.StateNode) bool {
	return !g.options.CompactMode && n.IsCompound()
}

// writeState writes a node, or a cluster holding the state's children
func (g *DOTGenerator) writeState(dot *strings.Builder, n *strata.StateNode, indent string) {
	if !g.clustered(n) {
		g.writeNode(dot, n, indent)
		if n.IsCompound() {
			for _, c := range n.Children() {
				g.writeState(dot, c, indent)
			}
		}
		return
	}

	style := g.options.CompositeStateStyle
	if n.IsParallel() {
		style = g.options.ParallelStateStyle
	}
	if g.isActive(n) {
		style += ",filled"
	}
	fmt.Fprintf(dot, "%ssubgraph %s {\n", indent, quote("cluster_"+n.ID()))
	fmt.Fprintf(dot, "%s  label=%s;\n", indent, quote(n.Name()))
	fmt.Fprintf(dot, "%s  style=%s;\n", indent, quote(style))
	if g.isActive(n) {
		fmt.Fprintf(dot, "%s  fillcolor=%s;\n", indent, quote("lightyellow"))
	}
	// anchor for edges into and out of the cluster
	fmt.Fprintf(dot, "%s  %s [shape=point style=invis];\n", indent, quote(n.ID()))
	for _, c := range n.Children() {
		g.writeState(dot, c, indent+"  ")
	}
	fmt.Fprintf(dot, "%s}\n", indent)
}

func (g *DOTGenerator) writeNode(dot *strings.Builder, n *strata.StateNode, indent string) {
	shape := g.options.NodeShape
	fillColor := "lightblue"
	label := n.Name()

	switch {
	case n.IsFinal():
		shape = "doublecircle"
		fillColor = "lightcoral"
	case n.IsParallel():
		fillColor = "lavender"
		label += "\\n(parallel)"
	case n.IsCompound():
		fillColor = "lightcyan"
	}
	if n.Parent() != nil && n.Parent().Initial() == n {
		label += "\\n(initial)"
	}
	if g.isActive(n) {
		fillColor = g.options.ActiveColor
	}

	fmt.Fprintf(dot, "%s%s [shape=%s style=\"filled\" fillcolor=%s label=%s];\n",
		indent, quote(n.ID()), shape, fillColor, quote(label))
}

func (g *DOTGenerator) writeTransition(dot *strings.Builder, t strata.Transition) {
	from, to := t.Source(), t.Target()
	var attrs []string
	if g.clustered(from) {
		attrs = append(attrs, "ltail="+quote("cluster_"+from.ID()))
	}
	if g.clustered(to) && from != to {
		attrs = append(attrs, "lhead="+quote("cluster_"+to.ID()))
	}
	if l, ok := t.(interface{ Label() string }); ok && g.options.ShowLabels && l.Label() != "" {
		attrs = append(attrs, "label="+quote(l.Label()))
	}

	fmt.Fprintf(dot, "  %s -> %s", quote(from.ID()), quote(to.ID()))
	if len(attrs) > 0 {
		fmt.Fprintf(dot, " [%s]", strings.Join(attrs, " "))
	}
	dot.WriteString(";\n")
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// GenerateToFile writes the DOT representation to a file
func (g *DOTGenerator) GenerateToFile(filename string) error {
	content, err := g.Generate()
	if err != nil {
		return err
	}
	return os.WriteFile(filename, []byte(content), 0o644)
}

// SVGGenerator generates SVG representations by calling Graphviz
type SVGGenerator struct {
	dotGenerator *DOTGenerator
}

// NewSVGGenerator creates a new SVG generator
func NewSVGGenerator(dotGenerator *DOTGenerator) *SVGGenerator {
	return &SVGGenerator{dotGenerator: dotGenerator}
}

// Generate creates an SVG representation of the graph
func (g *SVGGenerator) Generate() (string, error) {
	dotContent, err := g.dotGenerator.Generate()
	if err != nil {
		return "", err
	}

	cmd := exec.Command("dot", "-Tsvg")
	cmd.Stdin = strings.NewReader(dotContent)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to execute dot command: %w (make sure Graphviz is installed)", err)
	}
	return out.String(), nil
}

// GenerateSVG is a shorthand for NewSVGGenerator(g).Generate()
func (g *DOTGenerator) GenerateSVG() (string, error) {
	return NewSVGGenerator(g).Generate()
}
