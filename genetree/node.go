// Package genetree holds gene trees and the bindings that turn a gene tree
// into the time-ordered list of coalescent events the species-tree engine
// consumes.
package genetree

import (
	"fmt"
	"strconv"
	"strings"
)

// Node is a gene-tree node. Tips carry the taxon name; every node carries its
// height (time before present). Heights are authoritative; branch lengths are
// derived from them.
type Node struct {
	Name     string
	Height   float64
	Parent   *Node
	Children []*Node
	id       int
}

// ID is the node's stable index within its tree.
func (n *Node) ID() int { return n.id }

// IsTip reports whether the node has no children.
func (n *Node) IsTip() bool { return len(n.Children) == 0 }

// Len is the length of the branch above the node, zero at the root.
func (n *Node) Len() float64 {
	if n.Parent == nil {
		return 0.
	}
	return n.Parent.Height - n.Height
}

// PreorderArray will return the subtree rooted at n in preorder.
func (n *Node) PreorderArray() (ret []*Node) {
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		ret = append(ret, cur)
		for i := len(cur.Children) - 1; i >= 0; i-- {
			stack = append(stack, cur.Children[i])
		}
	}
	return
}

// PostorderArray will return the subtree rooted at n in postorder.
func (n *Node) PostorderArray() (ret []*Node) {
	for _, c := range n.Children {
		ret = append(ret, c.PostorderArray()...)
	}
	ret = append(ret, n)
	return
}

// Newick will return the subtree in newick format, optionally with branch lengths.
func (n *Node) Newick(lengths bool) string {
	var b strings.Builder
	n.newick(&b, lengths)
	return b.String()
}

func (n *Node) newick(b *strings.Builder, lengths bool) {
	if len(n.Children) > 0 {
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.newick(b, lengths)
		}
		b.WriteByte(')')
	}
	b.WriteString(n.Name)
	if lengths && n.Parent != nil {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(n.Len(), 'f', -1, 64))
	}
}

// Tree is a rooted binary gene tree. It is owned and mutated by the MCMC
// driver; every mutation bumps the version and notifies listeners so that
// cached event lists know to rebuild.
type Tree struct {
	Name      string
	root      *Node
	nodes     []*Node
	version   uint64
	counter   uint64
	listeners []func()
}

func newTree(name string, root *Node) *Tree {
	t := &Tree{Name: name, root: root}
	for _, n := range root.PreorderArray() {
		n.id = len(t.nodes)
		t.nodes = append(t.nodes, n)
	}
	t.counter = 1
	t.version = 1
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Node returns the node with the given id.
func (t *Tree) Node(id int) *Node { return t.nodes[id] }

// NodeCount is the number of nodes in the tree.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Tips returns every tip in preorder.
func (t *Tree) Tips() (tips []*Node) {
	for _, n := range t.root.PreorderArray() {
		if n.IsTip() {
			tips = append(tips, n)
		}
	}
	return
}

// Internal returns every internal node in preorder.
func (t *Tree) Internal() (in []*Node) {
	for _, n := range t.root.PreorderArray() {
		if !n.IsTip() {
			in = append(in, n)
		}
	}
	return
}

// Version identifies the tree's current content. Rollback restores the
// version that was current when the snapshot was taken.
func (t *Tree) Version() uint64 { return t.version }

// OnChange registers fn to be called after every mutation.
func (t *Tree) OnChange(fn func()) { t.listeners = append(t.listeners, fn) }

func (t *Tree) changed() {
	t.counter++
	t.version = t.counter
	for _, fn := range t.listeners {
		fn()
	}
}

// SetHeight will move node n to height h.
func (t *Tree) SetHeight(n *Node, h float64) {
	n.Height = h
	t.changed()
}

// ReplaceChild will swap child old of parent for repl. The caller is
// responsible for removing repl from its former parent's child list.
func (t *Tree) ReplaceChild(parent, old, repl *Node) {
	for i, c := range parent.Children {
		if c == old {
			parent.Children[i] = repl
			repl.Parent = parent
			old.Parent = nil
			t.changed()
			return
		}
	}
	panic(fmt.Sprintf("genetree %q: node %d is not a child of %d", t.Name, old.id, parent.id))
}

// SetRoot will make n the root.
func (t *Tree) SetRoot(n *Node) {
	n.Parent = nil
	t.root = n
	t.changed()
}

// Newick will return the tree in newick format terminated by a semicolon.
func (t *Tree) Newick(lengths bool) string { return t.root.Newick(lengths) + ";" }

// Snapshot records heights and topology so a rejected proposal can be undone.
type Snapshot struct {
	heights  []float64
	parents  []int
	children [][]int
	root     int
	version  uint64
}

// Snapshot will capture the tree's current state.
func (t *Tree) Snapshot() *Snapshot {
	s := &Snapshot{
		heights:  make([]float64, len(t.nodes)),
		parents:  make([]int, len(t.nodes)),
		children: make([][]int, len(t.nodes)),
		root:     t.root.id,
		version:  t.version,
	}
	for i, n := range t.nodes {
		s.heights[i] = n.Height
		s.parents[i] = -1
		if n.Parent != nil {
			s.parents[i] = n.Parent.id
		}
		for _, c := range n.Children {
			s.children[i] = append(s.children[i], c.id)
		}
	}
	return s
}

// Rollback will return the tree to a snapshot taken from it. Listeners are
// notified only if something actually changed.
func (t *Tree) Rollback(s *Snapshot) {
	if s.version == t.version {
		return
	}
	for i, n := range t.nodes {
		n.Height = s.heights[i]
		n.Parent = nil
		if s.parents[i] >= 0 {
			n.Parent = t.nodes[s.parents[i]]
		}
		n.Children = n.Children[:0]
		for _, c := range s.children[i] {
			n.Children = append(n.Children, t.nodes[c])
		}
	}
	t.root = t.nodes[s.root]
	for _, fn := range t.listeners {
		fn()
	}
	t.version = s.version
}

// Clone returns a deep copy without listeners, for use by an independent chain.
func (t *Tree) Clone() *Tree {
	cp := make([]*Node, len(t.nodes))
	for i, n := range t.nodes {
		cp[i] = &Node{Name: n.Name, Height: n.Height, id: n.id}
	}
	for i, n := range t.nodes {
		if n.Parent != nil {
			cp[i].Parent = cp[n.Parent.id]
		}
		for _, c := range n.Children {
			cp[i].Children = append(cp[i].Children, cp[c.id])
		}
	}
	return &Tree{
		Name:    t.Name,
		root:    cp[t.root.id],
		nodes:   cp,
		version: t.version,
		counter: t.counter,
	}
}
