// Package sptree holds the species tree being searched over: an index arena
// of 2S-1 nodes whose tips map one to one onto species, with edit
// transactions, a lazily computed species-set cache, a per-branch demographic
// cache and the gene-tree compatibility check.
package sptree

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/tomopfuku/starcoal/demog"
	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/species"
	"github.com/tomopfuku/starcoal/spset"
)

// Sentinel construction errors.
var (
	ErrTooFewSpecies   = errors.New("sptree: need at least two species")
	ErrBadPopulation   = errors.New("sptree: initial population must be positive")
	ErrNotUltrametric  = errors.New("sptree: species tree tips must all be at height zero")
	ErrSpeciesMismatch = errors.New("sptree: newick tips do not match the species registry")
)

const none = -1

type node struct {
	height   float64
	parent   int
	children [2]int
}

// Tree is a rooted binary species tree. Tips have ids 0..S-1 and id i is
// species i; internal nodes have ids S..2S-2.
type Tree struct {
	reg   *species.Registry
	nodes []node
	root  int
	pops  []float64
	kind  demog.Kind

	spsets  []spset.Set
	spValid bool
	demos   []demog.Function

	state   EditState
	snap    *snapshot
	invalid bool

	log *slog.Logger
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) { t.log = l }
}

// WithDemography selects the branch history kind; linear by default.
func WithDemography(k demog.Kind) Option {
	return func(t *Tree) { t.kind = k }
}

func newTree(reg *species.Registry, pop float64, opts []Option) (*Tree, error) {
	s := reg.Len()
	if s < 2 {
		return nil, fmt.Errorf("%w: have %d", ErrTooFewSpecies, s)
	}
	if !(pop > 0) || math.IsInf(pop, 1) {
		return nil, fmt.Errorf("%w: %g", ErrBadPopulation, pop)
	}
	t := &Tree{
		reg:    reg,
		nodes:  make([]node, 2*s-1),
		pops:   make([]float64, 3*s-2),
		spsets: make([]spset.Set, 2*s-1),
		demos:  make([]demog.Function, 2*s-1),
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	for i := range t.nodes {
		t.nodes[i] = node{parent: none, children: [2]int{none, none}}
	}
	for i := range t.pops {
		t.pops[i] = pop
	}
	return t, nil
}

// link will set the children of internal node p during construction.
func (t *Tree) link(p, l, r int) {
	t.nodes[p].children = [2]int{l, r}
	t.nodes[l].parent = p
	t.nodes[r].parent = p
}

// FromNewick will build a species tree from an ultrametric newick string
// whose tip labels are exactly the registry's species names.
func FromNewick(reg *species.Registry, nwk string, pop float64, opts ...Option) (*Tree, error) {
	gt, err := genetree.ReadTree("species", nwk)
	if err != nil {
		return nil, err
	}
	t, err := newTree(reg, pop, opts)
	if err != nil {
		return nil, err
	}
	tips := gt.Tips()
	if len(tips) != reg.Len() {
		return nil, fmt.Errorf("%w: %d tips for %d species", ErrSpeciesMismatch, len(tips), reg.Len())
	}
	ids := make(map[*genetree.Node]int, gt.NodeCount())
	seen := make([]bool, reg.Len())
	next := reg.Len()
	for _, n := range gt.Root().PostorderArray() {
		if n.IsTip() {
			sp, err := reg.Index(n.Name)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrSpeciesMismatch, err)
			}
			if seen[sp] {
				return nil, fmt.Errorf("%w: %q appears twice", ErrSpeciesMismatch, n.Name)
			}
			if math.Abs(n.Height) > 1e-9 {
				return nil, fmt.Errorf("%w: %q at %g", ErrNotUltrametric, n.Name, n.Height)
			}
			seen[sp] = true
			ids[n] = sp
			continue
		}
		id := next
		next++
		ids[n] = id
		t.nodes[id].height = n.Height
		t.link(id, ids[n.Children[0]], ids[n.Children[1]])
	}
	t.root = ids[gt.Root()]
	return t, nil
}

// Registry returns the species registry.
func (t *Tree) Registry() *species.Registry { return t.reg }

// NSpecies is the number of species (tips).
func (t *Tree) NSpecies() int { return t.reg.Len() }

// NodeCount is 2S-1.
func (t *Tree) NodeCount() int { return len(t.nodes) }

// Root returns the root id.
func (t *Tree) Root() int { return t.root }

// IsTip reports whether id is a tip.
func (t *Tree) IsTip(id int) bool { return id < t.reg.Len() }

// Parent returns the parent id, -1 at the root.
func (t *Tree) Parent(id int) int { return t.nodes[id].parent }

// Children returns the two children of an internal node, -1 at tips.
func (t *Tree) Children(id int) (int, int) {
	c := t.nodes[id].children
	return c[0], c[1]
}

// Height returns the node height.
func (t *Tree) Height(id int) float64 { return t.nodes[id].height }

// BranchLength returns the length of the branch above id, +Inf at the root.
func (t *Tree) BranchLength(id int) float64 {
	p := t.nodes[id].parent
	if p == none {
		return math.Inf(1)
	}
	return t.nodes[p].height - t.nodes[id].height
}

// Postorder will return node ids children first, root last.
func (t *Tree) Postorder() []int {
	ret := make([]int, 0, len(t.nodes))
	var walk func(int)
	walk = func(id int) {
		if !t.IsTip(id) {
			walk(t.nodes[id].children[0])
			walk(t.nodes[id].children[1])
		}
		ret = append(ret, id)
	}
	walk(t.root)
	return ret
}

// Internal returns the internal node ids S..2S-2.
func (t *Tree) Internal() []int {
	ret := make([]int, 0, t.reg.Len()-1)
	for id := t.reg.Len(); id < len(t.nodes); id++ {
		ret = append(ret, id)
	}
	return ret
}

// Newick will write the tree with species names, optionally with branch lengths.
func (t *Tree) Newick(lengths bool) string {
	var b strings.Builder
	var walk func(int)
	walk = func(id int) {
		if t.IsTip(id) {
			b.WriteString(t.reg.Name(id))
		} else {
			l, r := t.Children(id)
			b.WriteByte('(')
			walk(l)
			b.WriteByte(',')
			walk(r)
			b.WriteByte(')')
		}
		if lengths && id != t.root {
			b.WriteByte(':')
			b.WriteString(strconv.FormatFloat(t.BranchLength(id), 'f', -1, 64))
		}
	}
	walk(t.root)
	b.WriteByte(';')
	return b.String()
}

// Clone returns an independent deep copy in the Clean state, for use by a
// separate chain.
func (t *Tree) Clone() *Tree {
	cp := &Tree{
		reg:     t.reg,
		nodes:   append([]node(nil), t.nodes...),
		root:    t.root,
		pops:    append([]float64(nil), t.pops...),
		kind:    t.kind,
		spsets:  make([]spset.Set, len(t.spsets)),
		demos:   append([]demog.Function(nil), t.demos...),
		invalid: t.invalid,
		log:     t.log,
	}
	if t.spValid {
		for i, s := range t.spsets {
			cp.spsets[i] = s.Clone()
		}
		cp.spValid = true
	}
	return cp
}

// SpSet will return the species below id. The cache is rebuilt on the first
// read after a topology edit. Callers must not modify the returned set.
func (t *Tree) SpSet(id int) spset.Set {
	if !t.spValid {
		t.rebuildSpSets()
	}
	return t.spsets[id]
}

func (t *Tree) rebuildSpSets() {
	s := t.reg.Len()
	for _, id := range t.Postorder() {
		if t.IsTip(id) {
			t.spsets[id] = spset.Singleton(s, id)
			continue
		}
		l, r := t.Children(id)
		if t.spsets[l].Intersects(t.spsets[r]) {
			panic(fmt.Sprintf("species tree: children %d and %d of node %d share species %v", l, r, id,
				t.spsets[l].Union(t.spsets[r])))
		}
		t.spsets[id] = t.spsets[l].Union(t.spsets[r])
	}
	if got := t.spsets[t.root].Count(); got != s {
		panic(fmt.Sprintf("species tree: %d of %d species reachable from root %d", got, s, t.root))
	}
	t.spValid = true
	t.log.Debug("species sets rebuilt", "root", t.root)
}
