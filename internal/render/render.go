// Package render produces Graphviz DOT output from lattice graphs.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"
)

// dotEscape escapes a string for use in DOT HTML labels.
func dotEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}

// dotID creates a safe DOT identifier from a method name.
func dotID(name string) string {
	var b strings.Builder
	b.WriteString("n_")
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		} else {
			fmt.Fprintf(&b, "_%04x", c)
		}
	}
	return b.String()
}

// FileName turns a method name into a filesystem-safe base name.
func FileName(name string) string {
	var b strings.Builder
	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '.' || c == '_' {
			b.WriteRune(c)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CallgraphDOT renders a method call graph as DOT. Callees with no node
// of their own (methods declared in other files) are shown as plaintext
// nodes. maxNodes limits the number of method nodes rendered (0 = all).
func CallgraphDOT(g *lattice.Graph, title string, maxNodes int) string {
	known := make(map[string]bool, len(g.Nodes))
	nodes := g.Nodes
	if maxNodes > 0 && len(nodes) > maxNodes {
		nodes = nodes[:maxNodes]
	}
	for _, n := range nodes {
		known[n] = true
	}

	var b strings.Builder
	b.WriteString("digraph callgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"Courier,monospace\", fontsize=9];\n")
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  label=%q;\n", title)
	}
	b.WriteByte('\n')

	for _, n := range nodes {
		fmt.Fprintf(&b, "  %s [label=<%s>];\n", dotID(n), dotEscape(n))
	}

	external := make(map[string]bool)
	for _, e := range g.Edges {
		if known[e.Caller] && !known[e.Callee] {
			external[e.Callee] = true
		}
	}
	if len(external) > 0 {
		names := make([]string, 0, len(external))
		for n := range external {
			names = append(names, n)
		}
		sort.Strings(names)
		b.WriteByte('\n')
		for _, n := range names {
			fmt.Fprintf(&b, "  %s [shape=plaintext, label=<%s>];\n", dotID(n), dotEscape(n))
		}
	}

	b.WriteByte('\n')
	for _, e := range g.Edges {
		if !known[e.Caller] {
			continue
		}
		fmt.Fprintf(&b, "  %s -> %s;\n", dotID(e.Caller), dotID(e.Callee))
	}
	b.WriteString("}\n")
	return b.String()
}

// FuncCFGDOT renders one method's basic-block graph as DOT. Each block
// node lists its call sites; conditional edges are labeled T and F.
func FuncCFGDOT(cfg *lattice.FuncCFG) string {
	if len(cfg.Blocks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("digraph cfg {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  node [shape=rect, fontname=\"Courier,monospace\", fontsize=8];\n")
	fmt.Fprintf(&b, "  labelloc=t;\n  label=%q;\n\n", cfg.Name)

	for _, blk := range cfg.Blocks {
		lines := []string{fmt.Sprintf("bb%d [%d..%d)", blk.ID, blk.Start, blk.End)}
		for _, c := range blk.Calls {
			lines = append(lines, dotEscape(fmt.Sprintf("%d: call %s", c.Offset, c.Callee)))
		}
		label := strings.Join(lines, "<br align=\"left\"/>") + "<br align=\"left\"/>"
		attrs := ""
		if blk.Term {
			attrs = ", style=filled, fillcolor=\"#eeeeee\""
		}
		fmt.Fprintf(&b, "  bb%d [label=<%s>%s];\n", blk.ID, label, attrs)
	}
	b.WriteByte('\n')

	for _, blk := range cfg.Blocks {
		for _, s := range blk.Succs {
			switch s.Cond {
			case "T", "F":
				fmt.Fprintf(&b, "  bb%d -> bb%d [label=%q];\n", blk.ID, s.BlockID, s.Cond)
			default:
				fmt.Fprintf(&b, "  bb%d -> bb%d;\n", blk.ID, s.BlockID)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}
