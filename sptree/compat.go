package sptree

import (
	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/spset"
)

// Compatible reports whether every coalescence in events can be placed in
// the tree without crossing a species boundary.
func (t *Tree) Compatible(events []genetree.Event) bool {
	return t.CompatibleIndex(events) >= 0
}

// CompatibleIndex will walk the tree in postorder against the time-ordered
// events. Below each non-root node v it checks every event younger than v's
// parent: both merging sets must lie wholly inside spSet(v) or wholly
// outside it. It returns -1 at the first partial overlap and len(events) if
// the walk reaches the root.
func (t *Tree) CompatibleIndex(events []genetree.Event) int {
	if !t.spValid {
		t.rebuildSpSets()
	}
	return t.compatible(t.root, events, 0)
}

func (t *Tree) compatible(id int, events []genetree.Event, loc int) int {
	if !t.IsTip(id) {
		l := -1
		for _, c := range t.nodes[id].children {
			l1 := t.compatible(c, events, loc)
			if l1 < 0 {
				return -1
			}
			l = l1
		}
		loc = l
	}
	if id == t.root {
		return len(events)
	}
	sps := t.spsets[id]
	limit := t.nodes[t.nodes[id].parent].height
	for ; loc < len(events); loc++ {
		e := events[loc]
		if e.Time >= limit {
			break
		}
		allIn, noneIn := true, true
		for _, s := range [2]spset.Set{e.Left, e.Right} {
			in := s.IntersectCount(sps)
			if in > 0 {
				noneIn = false
			}
			if in != s.Count() {
				allIn = false
			}
		}
		if !allIn && !noneIn {
			return -1
		}
	}
	return loc
}
