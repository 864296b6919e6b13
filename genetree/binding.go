package genetree

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/tomopfuku/starcoal/species"
	"github.com/tomopfuku/starcoal/spset"
)

// ErrMissingSpecies is returned when a gene tree has no tip for some species.
var ErrMissingSpecies = errors.New("genetree: species has no tip in gene tree")

// Event is one coalescence: the internal node's height and the species
// composition of its two children.
type Event struct {
	Time  float64
	Left  spset.Set
	Right spset.Set
}

// Union returns the species set of the merged lineage.
func (e Event) Union() spset.Set { return e.Left.Union(e.Right) }

// State is the cache state of a Binding.
type State int

const (
	// Clean: the current event list matches the tree and no backup is held.
	Clean State = iota
	// Dirty: the tree changed since the current list was built; the backup
	// holds the list from before the proposal.
	Dirty
	// Backed: the current list is fresh and the backup holds the pre-proposal list.
	Backed
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Backed:
		return "backed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type eventBuffer struct {
	events  []Event
	version uint64
}

// Binding ties one gene tree to the species registry and caches its event
// list. Two buffers are kept so that rejecting a proposal is a swap.
type Binding struct {
	tree       *Tree
	reg        *species.Registry
	tipSpecies []int // by node id, -1 for internal nodes
	tipIndex   []int // by node id, position among tips
	nLineages  []int
	nTips      int
	bufs       [2]eventBuffer
	cur        int
	state      State
	log        *slog.Logger
}

// BindingOption configures a Binding.
type BindingOption func(*Binding)

// WithLogger sets the logger used for cache diagnostics.
func WithLogger(l *slog.Logger) BindingOption {
	return func(b *Binding) { b.log = l }
}

// NewBinding will map the tree's tips to species, verify every species is
// present and build the initial event list.
func NewBinding(reg *species.Registry, tree *Tree, opts ...BindingOption) (*Binding, error) {
	b := &Binding{
		tree:       tree,
		reg:        reg,
		tipSpecies: make([]int, tree.NodeCount()),
		tipIndex:   make([]int, tree.NodeCount()),
		nLineages:  make([]int, reg.Len()),
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	for i := range b.tipSpecies {
		b.tipSpecies[i] = -1
		b.tipIndex[i] = -1
	}
	for _, tip := range tree.Tips() {
		sp, err := reg.SpeciesOf(tip.Name)
		if err != nil {
			return nil, fmt.Errorf("gene tree %q: %w", tree.Name, err)
		}
		b.tipSpecies[tip.id] = sp
		b.tipIndex[tip.id] = b.nTips
		b.nTips++
		b.nLineages[sp]++
	}
	for sp, n := range b.nLineages {
		if n == 0 {
			return nil, fmt.Errorf("%w: %q in gene tree %q", ErrMissingSpecies, reg.Name(sp), tree.Name)
		}
	}
	b.rebuild()
	b.state = Clean
	tree.OnChange(b.treeChanged)
	return b, nil
}

// Tree returns the bound gene tree.
func (b *Binding) Tree() *Tree { return b.tree }

// State returns the cache state.
func (b *Binding) State() State { return b.state }

// NLineages is the number of tips sampled from species sp.
func (b *Binding) NLineages(sp int) int { return b.nLineages[sp] }

// NTips is the number of tips in the gene tree.
func (b *Binding) NTips() int { return b.nTips }

func (b *Binding) treeChanged() {
	switch b.state {
	case Clean:
		b.cur ^= 1
		b.state = Dirty
	case Backed:
		b.state = Dirty
	}
}

// Events will return the coalescent events in ascending time. The list is
// rebuilt only if the tree changed since it was last read. Callers must not
// modify the returned slice.
func (b *Binding) Events() []Event {
	if b.state == Dirty {
		b.rebuild()
		b.state = Backed
	}
	return b.bufs[b.cur].events
}

// Restore will swap back to the pre-proposal event list if the tree changed
// and has since been rolled back. It reports whether a swap happened and is
// a no-op when called again. If the tree was not rolled back the cache is
// left alone.
func (b *Binding) Restore() bool {
	if b.state == Clean {
		return false
	}
	backup := b.cur ^ 1
	if b.bufs[backup].version != b.tree.Version() {
		return false
	}
	b.cur = backup
	b.state = Clean
	return true
}

// Accept will drop the backup, keeping the current event list.
func (b *Binding) Accept() {
	if b.state == Dirty {
		b.rebuild()
	}
	b.state = Clean
}

// MinCoalescence is the time of the earliest coalescence.
func (b *Binding) MinCoalescence() float64 {
	ev := b.Events()
	if len(ev) == 0 {
		return math.Inf(1)
	}
	return ev[0].Time
}

// PairwiseMinimum will lower dst[i][j] to the earliest time at which a
// lineage of species i coalesces with a lineage of species j in this gene
// tree. dst must be S×S; entries that are already smaller are kept.
func (b *Binding) PairwiseMinimum(dst *mat.Dense) {
	if r, c := dst.Dims(); r != b.reg.Len() || c != b.reg.Len() {
		panic(fmt.Sprintf("gene tree %q: pairwise matrix is %dx%d, want %d species", b.tree.Name, r, c, b.reg.Len()))
	}
	for _, e := range b.Events() {
		for i := e.Left.Next(0); i >= 0; i = e.Left.Next(i + 1) {
			for j := e.Right.Next(0); j >= 0; j = e.Right.Next(j + 1) {
				if e.Time < dst.At(i, j) {
					dst.Set(i, j, e.Time)
					dst.Set(j, i, e.Time)
				}
			}
		}
	}
}

// RootHeight is the height of the gene tree root.
func (b *Binding) RootHeight() float64 { return b.tree.Root().Height }

func (b *Binding) rebuild() {
	buf := &b.bufs[b.cur]
	buf.events = buf.events[:0]
	nsp := b.reg.Len()
	sets := make([]spset.Set, b.tree.NodeCount())
	tips := make([]spset.Set, b.tree.NodeCount())
	for _, n := range b.tree.Root().PostorderArray() {
		if n.IsTip() {
			sp := b.tipSpecies[n.id]
			if sp < 0 {
				panic(fmt.Sprintf("gene tree %q: node %d became a tip after binding", b.tree.Name, n.id))
			}
			sets[n.id] = spset.Singleton(nsp, sp)
			tips[n.id] = spset.Singleton(b.nTips, b.tipIndex[n.id])
			continue
		}
		if len(n.Children) != 2 {
			panic(fmt.Sprintf("gene tree %q: node %d has %d children", b.tree.Name, n.id, len(n.Children)))
		}
		l, r := n.Children[0], n.Children[1]
		if tips[l.id].Intersects(tips[r.id]) {
			panic(fmt.Sprintf("gene tree %q: subtrees of node %d share tips %v", b.tree.Name, n.id,
				tips[l.id].Union(tips[r.id])))
		}
		sets[n.id] = sets[l.id].Union(sets[r.id])
		tips[n.id] = tips[l.id].Union(tips[r.id])
		buf.events = append(buf.events, Event{Time: n.Height, Left: sets[l.id], Right: sets[r.id]})
	}
	if got := tips[b.tree.Root().id].Count(); got != b.nTips {
		panic(fmt.Sprintf("gene tree %q: %d of %d tips reachable from root", b.tree.Name, got, b.nTips))
	}
	sort.SliceStable(buf.events, func(i, j int) bool { return buf.events[i].Time < buf.events[j].Time })
	buf.version = b.tree.Version()
	b.log.Debug("gene tree events rebuilt", "tree", b.tree.Name, "events", len(buf.events))
}
