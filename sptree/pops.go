package sptree

import (
	"fmt"

	"github.com/tomopfuku/starcoal/demog"
)

// NumPopulations is the length of the population vector, 3S-2: one start
// population per tip branch, then for each internal node the end
// populations of its two child branches.
func (t *Tree) NumPopulations() int { return len(t.pops) }

// Population returns entry j of the population vector.
func (t *Tree) Population(j int) float64 { return t.pops[j] }

// Populations returns a copy of the population vector.
func (t *Tree) Populations() []float64 { return append([]float64(nil), t.pops...) }

// PopulationLabel will name entry j for trace output, e.g. "A.start" or
// "A,B.end0".
func (t *Tree) PopulationLabel(j int) string {
	s := t.reg.Len()
	if j < s {
		return t.reg.Name(j) + ".start"
	}
	i, side := (j-s)/2, (j-s)%2
	return fmt.Sprintf("%s.end%d", t.SpSet(s+i).Format(t.reg.Name), side)
}

// StartPopulation is the population at the tipward end of the branch above id.
func (t *Tree) StartPopulation(id int) float64 {
	s := t.reg.Len()
	if t.IsTip(id) {
		return t.pops[id]
	}
	i := id - s
	return t.pops[s+2*i] + t.pops[s+2*i+1]
}

// EndPopulation is the population at the rootward end of the branch above
// id. The root branch is constant.
func (t *Tree) EndPopulation(id int) float64 {
	p := t.nodes[id].parent
	if p == none {
		return t.StartPopulation(id)
	}
	side := 0
	if t.nodes[p].children[1] == id {
		side = 1
	}
	return t.pops[t.reg.Len()+2*(p-t.reg.Len())+side]
}

// Demographic will return the population history of the branch above id,
// with t measured from the node's height. It is rebuilt only after the
// branch's bounding heights or population entries change.
func (t *Tree) Demographic(id int) demog.Function {
	if f := t.demos[id]; f != nil {
		return f
	}
	f := t.buildDemographic(id)
	t.demos[id] = f
	return f
}

func (t *Tree) buildDemographic(id int) demog.Function {
	p0 := t.StartPopulation(id)
	bl := t.BranchLength(id)
	if id == t.root || !(bl > 0) {
		return demog.Constant{N: p0}
	}
	pe := t.EndPopulation(id)
	var (
		f   demog.Function
		err error
	)
	switch t.kind {
	case demog.Stepwise:
		f, err = demog.NewStepwise([]float64{bl / 2}, []float64{p0, pe})
	case demog.Exponential:
		f, err = demog.NewExponential(bl, p0, pe)
	default:
		f, err = demog.NewLinear([]float64{bl}, []float64{p0, pe})
	}
	if err != nil {
		panic(fmt.Sprintf("species tree: branch above node %d: %v", id, err))
	}
	t.log.Debug("branch demographic rebuilt", "node", id, "start", p0, "end", pe, "length", bl)
	return f
}

// BranchSummary describes one branch for reporting.
type BranchSummary struct {
	Node     int      `yaml:"node"`
	Species  []string `yaml:"species"`
	Height   float64  `yaml:"height"`
	StartPop float64  `yaml:"start_pop"`
	EndPop   float64  `yaml:"end_pop"`
}

// Summary is a serialisable view of the tree and its populations.
type Summary struct {
	Newick      string          `yaml:"newick"`
	Populations []float64       `yaml:"populations"`
	Branches    []BranchSummary `yaml:"branches"`
}

// Summary will describe the tree in postorder.
func (t *Tree) Summary() Summary {
	sum := Summary{
		Newick:      t.Newick(true),
		Populations: t.Populations(),
	}
	for _, id := range t.Postorder() {
		var names []string
		for _, sp := range t.SpSet(id).Members() {
			names = append(names, t.reg.Name(sp))
		}
		sum.Branches = append(sum.Branches, BranchSummary{
			Node:     id,
			Species:  names,
			Height:   t.Height(id),
			StartPop: t.StartPopulation(id),
			EndPop:   t.EndPopulation(id),
		})
	}
	return sum
}
