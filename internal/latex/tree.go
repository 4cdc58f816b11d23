// Package latex builds a fault-tolerant syntax tree from LaTeX fragments.
//
// Nodes live in an arena owned by the Tree and are addressed by NodeID
// handles. A node's Parent is a lookup handle only.
package latex

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind classifies a node in the tree.
type Kind int

const (
	KindRoot Kind = iota
	KindText
	KindCommand
	KindEnv
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindText:
		return "text"
	case KindCommand:
		return "command"
	case KindEnv:
		return "env"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

// NodeID is a handle into a Tree's node arena.
type NodeID int32

// NoNode is the parent of the root.
const NoNode NodeID = -1

// Arg is one positional argument of a command or environment.
// Optional marks a bracketed [...] argument.
type Arg struct {
	Optional bool
	Nodes    []NodeID
}

// Node is a single element of the tree.
type Node struct {
	Kind     Kind
	Name     string // command or environment name, without backslash or star
	Star     bool
	Text     string // KindText only
	Args     []Arg
	Children []NodeID
	Parent   NodeID
}

// Tree is an arena of nodes; node 0 is always the root.
type Tree struct {
	nodes []Node
}

func newTree() *Tree {
	return &Tree{nodes: []Node{{Kind: KindRoot, Parent: NoNode}}}
}

func (t *Tree) add(n Node) NodeID {
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// Root returns the root handle.
func (t *Tree) Root() NodeID { return 0 }

// Len returns the number of nodes including the root.
func (t *Tree) Len() int { return len(t.nodes) }

// Node returns the node for id.
func (t *Tree) Node(id NodeID) *Node { return &t.nodes[id] }

// Parent returns the parent handle of id, or NoNode for the root.
func (t *Tree) Parent(id NodeID) NodeID { return t.nodes[id].Parent }

// Ancestors returns the chain of parents of id, nearest first, excluding the root.
func (t *Tree) Ancestors(id NodeID) []NodeID {
	var out []NodeID
	for p := t.nodes[id].Parent; p != NoNode && p != t.Root(); p = t.nodes[p].Parent {
		out = append(out, p)
	}
	return out
}

// Walk visits every descendant of id in document order (arguments before body).
// Returning false from fn skips the subtree below that node.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	n := &t.nodes[id]
	for _, a := range n.Args {
		for _, c := range a.Nodes {
			if fn(c) {
				t.Walk(c, fn)
			}
		}
	}
	for _, c := range n.Children {
		if fn(c) {
			t.Walk(c, fn)
		}
	}
}

// Descendants returns every node below id in document order.
func (t *Tree) Descendants(id NodeID) []NodeID {
	var out []NodeID
	t.Walk(id, func(c NodeID) bool {
		out = append(out, c)
		return true
	})
	return out
}

// Is reports whether id is a command or environment with one of the given names.
func (t *Tree) Is(id NodeID, names ...string) bool {
	n := &t.nodes[id]
	if n.Kind != KindCommand && n.Kind != KindEnv {
		return false
	}
	for _, name := range names {
		if n.Name == name {
			return true
		}
	}
	return false
}

// ArgText serializes the i-th argument of id without its delimiters.
func (t *Tree) ArgText(id NodeID, i int) string {
	n := &t.nodes[id]
	if i < 0 || i >= len(n.Args) {
		return ""
	}
	var sb strings.Builder
	for _, c := range n.Args[i].Nodes {
		t.write(&sb, c)
	}
	return sb.String()
}

// ArgIndex returns the index of the k-th (0-based) argument of id with the
// given kind, or -1. A negative k counts from the end.
func (t *Tree) ArgIndex(id NodeID, optional bool, k int) int {
	var idx []int
	for i, a := range t.nodes[id].Args {
		if a.Optional == optional {
			idx = append(idx, i)
		}
	}
	if k < 0 {
		k += len(idx)
	}
	if k < 0 || k >= len(idx) {
		return -1
	}
	return idx[k]
}

// String serializes the subtree rooted at id back to LaTeX source.
// Comments are not preserved.
func (t *Tree) String(id NodeID) string {
	var sb strings.Builder
	t.write(&sb, id)
	return sb.String()
}

func (t *Tree) write(sb *strings.Builder, id NodeID) {
	n := &t.nodes[id]
	switch n.Kind {
	case KindText:
		sb.WriteString(n.Text)
	case KindCommand:
		sb.WriteByte('\\')
		sb.WriteString(n.Name)
		if n.Star {
			sb.WriteByte('*')
		}
		t.writeArgs(sb, n)
	case KindEnv:
		sb.WriteString(`\begin{`)
		sb.WriteString(n.Name)
		if n.Star {
			sb.WriteByte('*')
		}
		sb.WriteByte('}')
		t.writeArgs(sb, n)
		for _, c := range n.Children {
			t.write(sb, c)
		}
		sb.WriteString(`\end{`)
		sb.WriteString(n.Name)
		if n.Star {
			sb.WriteByte('*')
		}
		sb.WriteByte('}')
	case KindGroup:
		sb.WriteByte('{')
		for _, c := range n.Children {
			t.write(sb, c)
		}
		sb.WriteByte('}')
	case KindRoot:
		for _, c := range n.Children {
			t.write(sb, c)
		}
	}
}

func (t *Tree) writeArgs(sb *strings.Builder, n *Node) {
	for _, a := range n.Args {
		open, close := byte('{'), byte('}')
		if a.Optional {
			open, close = '[', ']'
		}
		sb.WriteByte(open)
		for _, c := range a.Nodes {
			t.write(sb, c)
		}
		sb.WriteByte(close)
	}
}

// CaptionText collapses runs of whitespace and NFC-normalizes s.
func CaptionText(s string) string {
	return norm.NFC.String(strings.Join(strings.Fields(s), " "))
}
