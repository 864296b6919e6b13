// Package coalescent computes the multispecies-coalescent log-likelihood of
// gene trees embedded in a species tree. Events are first windowed onto
// species-tree branches; a BranchModel then scores each branch.
package coalescent

import (
	"fmt"
	"math"

	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/sptree"
)

// Lineages is one gene tree's passage through one species-tree branch.
type Lineages struct {
	In    int       // lineages entering at the branch start
	Times []float64 // coalescences, relative to the branch start, ascending
}

// Out is the number of lineages leaving the branch.
func (l Lineages) Out() int { return l.In - len(l.Times) }

// Branch collects what every gene tree does inside one species-tree branch.
type Branch struct {
	Node   int
	Start  float64 // height of the node below the branch
	Length float64 // +Inf for the root branch
	Genes  []Lineages
}

// IsRoot reports whether this is the root branch.
func (b *Branch) IsRoot() bool { return math.IsInf(b.Length, 1) }

// Windows will assign every gene-tree coalescence to a species-tree branch
// and count the lineages entering each branch. An event goes to the lowest
// node whose species set holds both merging lineages, moved up past every
// ancestor at or below the event time. The result is indexed by node id.
//
// Every gene tree must be compatible with the tree; a history that does not
// fit panics with the gene tree and node involved.
func Windows(tree *sptree.Tree, bindings []*genetree.Binding) []Branch {
	branches := make([]Branch, tree.NodeCount())
	for id := range branches {
		branches[id] = Branch{
			Node:   id,
			Start:  tree.Height(id),
			Length: tree.BranchLength(id),
			Genes:  make([]Lineages, len(bindings)),
		}
	}
	for g, b := range bindings {
		for _, e := range b.Events() {
			id := place(tree, e)
			br := &branches[id]
			if e.Time < br.Start {
				panic(fmt.Sprintf("gene tree %d (%s): coalescence at %g is below species node %d at %g",
					g, b.Tree().Name, e.Time, id, br.Start))
			}
			br.Genes[g].Times = append(br.Genes[g].Times, e.Time-br.Start)
		}
	}
	for _, id := range tree.Postorder() {
		br := &branches[id]
		for g, b := range bindings {
			ln := &br.Genes[g]
			if tree.IsTip(id) {
				ln.In = b.NLineages(id)
			} else {
				l, r := tree.Children(id)
				ln.In = branches[l].Genes[g].Out() + branches[r].Genes[g].Out()
			}
			out := ln.Out()
			switch {
			case id == tree.Root() && out != 1:
				panic(fmt.Sprintf("gene tree %d (%s): %d lineages left at the species root", g, b.Tree().Name, out))
			case out < 1:
				panic(fmt.Sprintf("gene tree %d (%s): %d lineages leave species node %d", g, b.Tree().Name, out, id))
			}
		}
	}
	return branches
}

func place(tree *sptree.Tree, e genetree.Event) int {
	u := e.Union()
	id := u.Next(0)
	if id < 0 {
		panic("coalescent: event with no species")
	}
	for !tree.SpSet(id).Contains(u) {
		id = tree.Parent(id)
		if id < 0 {
			panic(fmt.Sprintf("coalescent: no species node holds %v", u))
		}
	}
	for p := tree.Parent(id); p >= 0 && tree.Height(p) <= e.Time; p = tree.Parent(id) {
		id = p
	}
	return id
}

func choose2(n int) float64 { return float64(n) * float64(n-1) / 2 }
