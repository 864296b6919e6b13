package sptree

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/species"
)

// ErrNoGeneTrees is returned by the starting-tree builders.
var ErrNoGeneTrees = errors.New("sptree: starting tree needs at least one gene tree")

// maxTreeScale keeps every speciation strictly below the coalescences that
// bound it.
const maxTreeScale = 0.99

// NewUninformed will build a caterpillar ((((0,1),2),3)...) with all
// speciations below the earliest coalescence of any gene tree, so every
// gene tree is compatible with it.
func NewUninformed(reg *species.Registry, bindings []*genetree.Binding, pop float64, opts ...Option) (*Tree, error) {
	if len(bindings) == 0 {
		return nil, ErrNoGeneTrees
	}
	t, err := newTree(reg, pop, opts)
	if err != nil {
		return nil, err
	}
	low := math.Inf(1)
	for _, b := range bindings {
		low = math.Min(low, b.MinCoalescence())
	}
	s := reg.Len()
	prev := 0
	for k := 1; k < s; k++ {
		id := s + k - 1
		t.nodes[id].height = low * float64(k) / float64(s)
		t.link(id, prev, k)
		prev = id
	}
	t.root = prev
	t.log.Debug("uninformed species tree", "newick", t.Newick(true))
	return t, nil
}

// MinCoalescenceMatrix will return the S×S matrix of the earliest time any
// lineage of species i coalesces with one of species j across all gene trees.
func MinCoalescenceMatrix(reg *species.Registry, bindings []*genetree.Binding) *mat.Dense {
	s := reg.Len()
	d := mat.NewDense(s, s, nil)
	for i := range s {
		for j := range s {
			d.Set(i, j, math.Inf(1))
		}
	}
	for _, b := range bindings {
		b.PairwiseMinimum(d)
	}
	return d
}

// NewMaximumTree will build the tallest species tree compatible with every
// gene tree: single-linkage agglomeration on the minimum coalescence matrix,
// each merge placed just under the time that bounds it.
func NewMaximumTree(reg *species.Registry, bindings []*genetree.Binding, pop float64, opts ...Option) (*Tree, error) {
	if len(bindings) == 0 {
		return nil, ErrNoGeneTrees
	}
	t, err := newTree(reg, pop, opts)
	if err != nil {
		return nil, err
	}
	s := reg.Len()
	dist := MinCoalescenceMatrix(reg, bindings)
	cluster := make([]int, s) // node id of each active row
	active := make([]bool, s)
	for i := range cluster {
		cluster[i] = i
		active[i] = true
	}
	for id := s; id < 2*s-1; id++ {
		a, b, best := -1, -1, math.Inf(1)
		for i := range s {
			if !active[i] {
				continue
			}
			for j := i + 1; j < s; j++ {
				if active[j] && (a < 0 || dist.At(i, j) < best) {
					a, b, best = i, j, dist.At(i, j)
				}
			}
		}
		if math.IsInf(best, 1) {
			return nil, fmt.Errorf("sptree: species %q and %q never coalesce", reg.Name(a), reg.Name(b))
		}
		t.nodes[id].height = maxTreeScale * best
		t.link(id, cluster[a], cluster[b])
		for k := range s {
			v := math.Min(dist.At(a, k), dist.At(b, k))
			dist.Set(a, k, v)
			dist.Set(k, a, v)
		}
		active[b] = false
		cluster[a] = id
	}
	t.root = 2*s - 2
	t.log.Debug("maximum species tree", "newick", t.Newick(true))
	return t, nil
}
