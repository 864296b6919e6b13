package sptree

import (
	"fmt"
	"math"

	"github.com/tomopfuku/starcoal/demog"
	"github.com/tomopfuku/starcoal/spset"
)

// EditState tracks where the tree is in a propose/accept/reject cycle.
type EditState int

const (
	// Clean: no proposal in flight.
	Clean EditState = iota
	// Editing: between BeginEdit and EndEdit; mutation is allowed.
	Editing
	// Edited: EndEdit was called; the snapshot is held until RestoreState or
	// AcceptState.
	Edited
)

func (s EditState) String() string {
	switch s {
	case Clean:
		return "clean"
	case Editing:
		return "editing"
	case Edited:
		return "edited"
	}
	return fmt.Sprintf("EditState(%d)", int(s))
}

type snapshot struct {
	nodes   []node
	root    int
	pops    []float64
	spsets  []spset.Set
	spValid bool
	demos   []demog.Function
	invalid bool
}

// State returns the edit state.
func (t *Tree) State() EditState { return t.state }

// Valid reports whether the last EndEdit found the tree well formed.
func (t *Tree) Valid() bool { return !t.invalid }

// BeginEdit will open a proposal. The first call after a Clean state takes
// the snapshot; further calls before RestoreState or AcceptState reopen the
// same proposal.
func (t *Tree) BeginEdit() {
	switch t.state {
	case Clean:
		t.snap = &snapshot{
			nodes:   append([]node(nil), t.nodes...),
			root:    t.root,
			pops:    append([]float64(nil), t.pops...),
			spsets:  append([]spset.Set(nil), t.spsets...),
			spValid: t.spValid,
			demos:   append([]demog.Function(nil), t.demos...),
			invalid: t.invalid,
		}
		t.state = Editing
	case Edited:
		t.state = Editing
	}
}

// EndEdit will close the mutation window and validate the tree. It returns
// false if a height is above its parent's or a population is not positive;
// the proposal is then invalid and should be rejected without scoring.
// Structural corruption panics.
func (t *Tree) EndEdit() bool {
	if t.state != Editing {
		panic(fmt.Sprintf("species tree: EndEdit while %s", t.state))
	}
	t.state = Edited
	t.checkStructure()
	t.invalid = !t.heightsOrdered() || !t.popsPositive()
	if t.invalid {
		t.log.Debug("species tree edit is invalid")
	}
	return !t.invalid
}

// RestoreState will return the tree to the snapshot taken by BeginEdit,
// including both caches. It is a no-op when no proposal is held.
func (t *Tree) RestoreState() {
	switch t.state {
	case Clean:
		return
	case Editing:
		panic("species tree: RestoreState before EndEdit")
	}
	s := t.snap
	copy(t.nodes, s.nodes)
	t.root = s.root
	copy(t.pops, s.pops)
	copy(t.spsets, s.spsets)
	t.spValid = s.spValid
	copy(t.demos, s.demos)
	t.invalid = s.invalid
	t.snap = nil
	t.state = Clean
}

// AcceptState will drop the snapshot. It is a no-op when no proposal is held.
func (t *Tree) AcceptState() {
	switch t.state {
	case Clean:
		return
	case Editing:
		panic("species tree: AcceptState before EndEdit")
	}
	t.snap = nil
	t.state = Clean
}

func (t *Tree) mustEdit(op string) {
	if t.state != Editing {
		panic(fmt.Sprintf("species tree: %s while %s", op, t.state))
	}
}

// SetHeight will move node id to height h.
func (t *Tree) SetHeight(id int, h float64) {
	t.mustEdit("SetHeight")
	t.nodes[id].height = h
	t.demos[id] = nil
	if !t.IsTip(id) {
		for _, c := range t.nodes[id].children {
			t.demos[c] = nil
		}
	}
}

// ScaleHeights will multiply every internal height by c.
func (t *Tree) ScaleHeights(c float64) {
	t.mustEdit("ScaleHeights")
	for _, id := range t.Internal() {
		t.nodes[id].height *= c
	}
	clear(t.demos)
}

// SetPopulation will set entry j of the population vector.
func (t *Tree) SetPopulation(j int, v float64) {
	t.mustEdit("SetPopulation")
	t.pops[j] = v
	s := t.reg.Len()
	if j < s {
		t.demos[j] = nil
		return
	}
	i, side := (j-s)/2, (j-s)%2
	owner := s + i
	t.demos[owner] = nil
	if c := t.nodes[owner].children[side]; c != none {
		t.demos[c] = nil
	}
}

// ReplaceChild will put repl where old was under parent. The caller keeps
// the tree consistent by also relinking repl's former parent.
func (t *Tree) ReplaceChild(parent, old, repl int) {
	t.mustEdit("ReplaceChild")
	ch := &t.nodes[parent].children
	switch old {
	case ch[0]:
		ch[0] = repl
	case ch[1]:
		ch[1] = repl
	default:
		panic(fmt.Sprintf("species tree: %d is not a child of %d", old, parent))
	}
	t.nodes[repl].parent = parent
	if t.nodes[old].parent == parent {
		t.nodes[old].parent = none
	}
	t.topologyChanged()
}

// SetChildren will make l and r the children of internal node p.
func (t *Tree) SetChildren(p, l, r int) {
	t.mustEdit("SetChildren")
	if t.IsTip(p) {
		panic(fmt.Sprintf("species tree: tip %d cannot have children", p))
	}
	t.link(p, l, r)
	t.topologyChanged()
}

// SetRoot will make id the root.
func (t *Tree) SetRoot(id int) {
	t.mustEdit("SetRoot")
	t.root = id
	t.nodes[id].parent = none
	t.topologyChanged()
}

func (t *Tree) topologyChanged() {
	t.spValid = false
	clear(t.demos)
}

func (t *Tree) checkStructure() {
	seen := 0
	var walk func(id, parent int)
	walk = func(id, parent int) {
		seen++
		if seen > len(t.nodes) {
			panic(fmt.Sprintf("species tree: cycle through node %d", id))
		}
		if t.nodes[id].parent != parent {
			panic(fmt.Sprintf("species tree: node %d records parent %d, reached from %d", id, t.nodes[id].parent, parent))
		}
		if t.IsTip(id) {
			return
		}
		for _, c := range t.nodes[id].children {
			if c == none {
				panic(fmt.Sprintf("species tree: internal node %d is missing a child", id))
			}
			walk(c, id)
		}
	}
	walk(t.root, none)
	if seen != len(t.nodes) {
		panic(fmt.Sprintf("species tree: %d of %d nodes reachable from root %d", seen, len(t.nodes), t.root))
	}
}

func (t *Tree) heightsOrdered() bool {
	for id, n := range t.nodes {
		if math.IsNaN(n.height) || n.height < 0 {
			return false
		}
		if n.parent != none && n.height > t.nodes[n.parent].height {
			t.log.Debug("height above parent", "node", id, "height", n.height, "parent", t.nodes[n.parent].height)
			return false
		}
	}
	return true
}

func (t *Tree) popsPositive() bool {
	for _, p := range t.pops {
		if !(p > 0) || math.IsInf(p, 1) {
			return false
		}
	}
	return true
}
