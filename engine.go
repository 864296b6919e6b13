// Package starcoal infers species trees from gene trees under the
// multispecies coalescent. The Engine scores a species tree against a set of
// gene trees and exposes the edit hooks an MCMC driver calls around every
// proposal; Chain is a small driver built on it.
package starcoal

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/tomopfuku/starcoal/coalescent"
	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/sptree"
)

// Sentinel construction errors.
var (
	ErrNoGeneTrees = errors.New("starcoal: at least one gene tree is required")
	ErrNoModel     = errors.New("starcoal: a branch model is required")
	ErrTreeInEdit  = errors.New("starcoal: species tree has an edit in progress")
)

// Engine ties a species tree to its gene-tree bindings and a branch model.
// It caches the log-likelihood between edits: CUR is the value for the
// current state, LAST the value to go back to on RestoreState.
type Engine struct {
	tree     *sptree.Tree
	bindings []*genetree.Binding
	model    coalescent.BranchModel

	cur, last           float64
	curValid, lastValid bool

	editing   bool
	geneSnaps map[int]*genetree.Snapshot

	log *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// NewEngine will bind the species tree, gene trees and model together.
func NewEngine(tree *sptree.Tree, bindings []*genetree.Binding, model coalescent.BranchModel, opts ...EngineOption) (*Engine, error) {
	if len(bindings) == 0 {
		return nil, ErrNoGeneTrees
	}
	if model == nil {
		return nil, ErrNoModel
	}
	if tree.State() != sptree.Clean {
		return nil, fmt.Errorf("%w: %s", ErrTreeInEdit, tree.State())
	}
	e := &Engine{
		tree:      tree,
		bindings:  bindings,
		model:     model,
		geneSnaps: make(map[int]*genetree.Snapshot),
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Tree returns the species tree. Mutate it only between BeginEdit and EndEdit.
func (e *Engine) Tree() *sptree.Tree { return e.tree }

// Model returns the branch model.
func (e *Engine) Model() coalescent.BranchModel { return e.model }

// NGeneTrees is the number of bound gene trees.
func (e *Engine) NGeneTrees() int { return len(e.bindings) }

// Binding returns the binding of gene tree i.
func (e *Engine) Binding(i int) *genetree.Binding { return e.bindings[i] }

// IsCompatible reports whether gene tree i fits inside the species tree.
func (e *Engine) IsCompatible(i int) bool {
	return e.tree.Compatible(e.bindings[i].Events())
}

// AllCompatible reports whether every gene tree is compatible.
func (e *Engine) AllCompatible() bool {
	for i := range e.bindings {
		if !e.IsCompatible(i) {
			e.log.Debug("gene tree incompatible", "gene", i, "tree", e.bindings[i].Tree().Name)
			return false
		}
	}
	return true
}

// LogLikelihood will return the coalescent log-likelihood of every gene tree
// given the species tree. The caller must have checked compatibility; an
// incompatible gene tree is an internal-consistency panic here.
func (e *Engine) LogLikelihood() float64 {
	if e.curValid {
		return e.cur
	}
	e.cur = coalescent.LogLikelihood(e.tree, coalescent.Windows(e.tree, e.bindings), e.model)
	e.curValid = true
	return e.cur
}

// Score will return -Inf for an invalid edit or any incompatible gene tree,
// otherwise LogLikelihood.
func (e *Engine) Score() float64 {
	if !e.tree.Valid() || !e.AllCompatible() {
		return math.Inf(-1)
	}
	return e.LogLikelihood()
}

// Invalidate drops the cached log-likelihood, for changes the engine cannot
// see such as a new prior scale on the model.
func (e *Engine) Invalidate() { e.curValid = false }

// BeginEdit will open a proposal on the species tree and remember the
// current score for RestoreState.
func (e *Engine) BeginEdit() {
	e.tree.BeginEdit()
	if !e.editing {
		e.last, e.lastValid = e.cur, e.curValid
		e.editing = true
	}
}

// EditGeneTree will return gene tree i for mutation inside the current
// proposal; it is rolled back by RestoreState.
func (e *Engine) EditGeneTree(i int) *genetree.Tree {
	if !e.editing {
		panic("starcoal: EditGeneTree outside BeginEdit")
	}
	gt := e.bindings[i].Tree()
	if _, ok := e.geneSnaps[i]; !ok {
		e.geneSnaps[i] = gt.Snapshot()
	}
	e.curValid = false
	return gt
}

// EndEdit will close the proposal and report whether the species tree is
// well formed. An invalid proposal must be restored without scoring.
func (e *Engine) EndEdit() bool {
	ok := e.tree.EndEdit()
	e.curValid = false
	return ok
}

// RestoreState will undo the proposal: the species tree returns to its
// snapshot, edited gene trees are rolled back and their event lists swapped
// back, and the previous score is reinstated. It is a no-op outside a
// proposal.
func (e *Engine) RestoreState() {
	if !e.editing {
		return
	}
	e.tree.RestoreState()
	for i, snap := range e.geneSnaps {
		e.bindings[i].Tree().Rollback(snap)
	}
	for _, b := range e.bindings {
		b.Restore()
	}
	clear(e.geneSnaps)
	e.cur, e.curValid = e.last, e.lastValid
	e.editing = false
}

// AcceptState will keep the proposal.
func (e *Engine) AcceptState() {
	if !e.editing {
		return
	}
	e.tree.AcceptState()
	for _, b := range e.bindings {
		b.Accept()
	}
	clear(e.geneSnaps)
	e.editing = false
}

// PopulationColumns will name and return the population vector for trace
// output. With the analytic model the populations are integrated out and
// the prior scale is reported instead.
func (e *Engine) PopulationColumns() (names []string, values []float64) {
	if an, ok := e.model.(*coalescent.Analytic); ok {
		return []string{"popPriorScale"}, []float64{an.Scale()}
	}
	for j := range e.tree.NumPopulations() {
		names = append(names, e.tree.PopulationLabel(j))
		values = append(values, e.tree.Population(j))
	}
	return
}
