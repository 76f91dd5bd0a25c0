// Package pipeline builds task graphs from declarative specs.
//
// A graph is an immutable tree of Nodes. A leaf wraps one registered task; a
// composite runs its children in series (fail-fast) or in parallel (collect-all).
// Named pipelines may reference each other; the Composer rejects references that
// would make a pipeline contain itself.
package pipeline

import (
	"slices"
	"strings"

	"git.home.luguber.info/inful/assetbuilder/internal/task"
)

// Mode tags how a node executes.
type Mode string

const (
	ModeLeaf     Mode = "leaf"
	ModeSeries   Mode = "series"
	ModeParallel Mode = "parallel"
)

// Node is a vertex in a task graph. Nodes are never mutated after construction.
type Node struct {
	name     string
	mode     Mode
	task     *task.Task
	children []*Node
}

// Leaf wraps a single task.
func Leaf(t *task.Task) *Node {
	return &Node{name: t.Name(), mode: ModeLeaf, task: t}
}

// Series returns a composite that runs children in order and stops at the first failure.
func Series(name string, children ...*Node) *Node {
	return composite(ModeSeries, name, children)
}

// Parallel returns a composite that runs all children concurrently and waits for every one.
func Parallel(name string, children ...*Node) *Node {
	return composite(ModeParallel, name, children)
}

func composite(mode Mode, name string, children []*Node) *Node {
	if name == "" {
		name = string(mode)
	}
	return &Node{name: name, mode: mode, children: slices.Clone(children)}
}

// Name is the task name for leaves and the pipeline (or mode) label for composites.
func (n *Node) Name() string { return n.name }

// Mode returns the node's execution mode.
func (n *Node) Mode() Mode { return n.mode }

// IsLeaf reports whether the node wraps a task.
func (n *Node) IsLeaf() bool { return n.mode == ModeLeaf }

// Task returns the wrapped task, or nil for composites.
func (n *Node) Task() *task.Task { return n.task }

// Children returns a copy of the composite's children.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// Tasks returns every task reachable from n in depth-first declaration order.
// A task reachable through several paths is listed once.
func (n *Node) Tasks() []*task.Task {
	var out []*task.Task
	seen := map[string]bool{}
	var walk func(*Node)
	walk = func(cur *Node) {
		if cur.IsLeaf() {
			if !seen[cur.task.Name()] {
				seen[cur.task.Name()] = true
				out = append(out, cur.task)
			}
			return
		}
		for _, c := range cur.children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// String renders the graph in a compact form, e.g. "build=parallel(html, styles)".
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if n.IsLeaf() {
		b.WriteString(n.name)
		return
	}
	if n.name != string(n.mode) {
		b.WriteString(n.name)
		b.WriteByte('=')
	}
	b.WriteString(string(n.mode))
	b.WriteByte('(')
	for i, c := range n.children {
		if i > 0 {
			b.WriteString(", ")
		}
		c.write(b)
	}
	b.WriteByte(')')
}
