// Package tree renders a cgroup subtree as indented text, one line per
// node, annotated with live accounting values.
package tree

import (
	"fmt"
	"io"
	"os"
	"strings"

	"cgscope/internal/cgfs"
)

// Probe names one accounting file to read at each node.
type Probe struct {
	Label string
	File  string
}

// DefaultProbes covers the controllers the demo delegates. The files exist
// on unified hierarchies only.
var DefaultProbes = []Probe{
	{Label: "pids", File: "pids.current"},
	{Label: "memory", File: "memory.current"},
}

// Render walks the hierarchy depth first and formats one line per node. The
// first line is always the root and indentation grows two spaces per level.
// The output is a point-in-time snapshot: a second call re-reads the
// hierarchy and may differ if it changed in between.
func Render(root *cgfs.Node, probes []Probe) []string {
	var lines []string
	walk(root, 0, probes, &lines)
	return lines
}

func walk(n *cgfs.Node, depth int, probes []Probe, lines *[]string) {
	*lines = append(*lines, format(n, depth, probes))

	children, err := n.Children()
	if err != nil {
		// The node vanished under us, concurrent teardown is not an error.
		return
	}
	for _, child := range children {
		if _, err := os.Stat(child.Path()); err != nil {
			continue
		}
		walk(child, depth+1, probes, lines)
	}
}

func format(n *cgfs.Node, depth int, probes []Probe) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(n.Name())
	if len(probes) == 0 {
		return b.String()
	}

	values := make([]string, 0, len(probes))
	for _, p := range probes {
		v, err := n.ReadValue(p.File)
		if err != nil {
			v = "unavailable"
		}
		values = append(values, p.Label+"="+v)
	}
	b.WriteString(" (" + strings.Join(values, ", ") + ")")
	return b.String()
}

// Fprint writes rendered lines to w.
func Fprint(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}
