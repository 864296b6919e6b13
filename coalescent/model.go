package coalescent

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/tomopfuku/starcoal/sptree"
)

// BranchModel scores the coalescences windowed onto one branch.
type BranchModel interface {
	BranchLogLikelihood(tree *sptree.Tree, b *Branch) float64
}

// LogLikelihood will sum the model over every branch.
func LogLikelihood(tree *sptree.Tree, branches []Branch, model BranchModel) float64 {
	ll := 0.
	for i := range branches {
		ll += model.BranchLogLikelihood(tree, &branches[i])
	}
	return ll
}

// Numeric integrates 1/N(t) along each branch's demographic function.
type Numeric struct{}

// BranchLogLikelihood will add, for each gene tree, -C(n,2)∫1/N between
// consecutive coalescences and -log N(t) at each one. Past the last
// coalescence of the root branch a single lineage remains and nothing is
// added.
func (Numeric) BranchLogLikelihood(tree *sptree.Tree, b *Branch) float64 {
	f := tree.Demographic(b.Node)
	ll := 0.
	for _, g := range b.Genes {
		n, prev := g.In, 0.
		for _, t := range g.Times {
			if n >= 2 {
				ll -= choose2(n) * f.Integral(prev, t)
			}
			ll -= math.Log(f.Population(t))
			n--
			prev = t
		}
		if n >= 2 {
			ll -= choose2(n) * f.Integral(prev, b.Length)
		}
	}
	return ll
}

// Sentinel prior configuration errors.
var (
	ErrNoComponents = errors.New("coalescent: population prior has no components")
	ErrComponent    = errors.New("coalescent: mixture component needs positive weight, alpha and beta")
	ErrWeights      = errors.New("coalescent: mixture weights must sum to 1")
	ErrScale        = errors.New("coalescent: prior scale must be positive")
)

const weightTolerance = 1e-6

// Component is one inverse-gamma term of the population-size prior.
type Component struct {
	Weight float64 `mapstructure:"weight" yaml:"weight"`
	Alpha  float64 `mapstructure:"alpha" yaml:"alpha"`
	Beta   float64 `mapstructure:"beta" yaml:"beta"`
}

// Analytic integrates each branch's constant population out under a
// mixture of inverse-gamma priors. All gene trees share the branch's
// population, so their statistics are pooled per branch.
type Analytic struct {
	comps []Component
	logw  []float64
	scale float64
	terms []float64
}

// NewAnalytic will validate the mixture. scale multiplies every beta.
func NewAnalytic(comps []Component, scale float64) (*Analytic, error) {
	if len(comps) == 0 {
		return nil, ErrNoComponents
	}
	a := &Analytic{
		comps: append([]Component(nil), comps...),
		logw:  make([]float64, len(comps)),
		terms: make([]float64, len(comps)),
	}
	sum := 0.
	for j, c := range comps {
		if !(c.Weight > 0) || !(c.Alpha > 0) || !(c.Beta > 0) {
			return nil, fmt.Errorf("%w: component %d is %+v", ErrComponent, j, c)
		}
		sum += c.Weight
		a.logw[j] = math.Log(c.Weight)
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("%w: got %g", ErrWeights, sum)
	}
	if err := a.SetScale(scale); err != nil {
		return nil, err
	}
	return a, nil
}

// Components returns the mixture.
func (a *Analytic) Components() []Component { return a.comps }

// Scale returns the prior scale.
func (a *Analytic) Scale() float64 { return a.scale }

// SetScale will change the prior scale.
func (a *Analytic) SetScale(s float64) error {
	if !(s > 0) || math.IsInf(s, 1) {
		return fmt.Errorf("%w: %g", ErrScale, s)
	}
	a.scale = s
	return nil
}

// Stats will pool the branch over gene trees: k coalescences and
// x = Σ C(n,2)·Δt over every interval that has two or more lineages.
func Stats(b *Branch) (k int, x float64) {
	for _, g := range b.Genes {
		n, prev := g.In, 0.
		for _, t := range g.Times {
			x += choose2(n) * (t - prev)
			n--
			prev = t
		}
		if n >= 2 {
			x += choose2(n) * (b.Length - prev)
		}
		k += len(g.Times)
	}
	return
}

// BranchLogLikelihood will return
// log Σ_j w_j b_j^a_j (b_j+x)^-(a_j+k) Γ(a_j+k)/Γ(a_j).
//
// The exponent is a+k, the exact integral of N^-k e^(-x/N) against the
// inverse-gamma density. Some formulations of this model use a+k+1; that
// form does not approach the numeric likelihood as the shape grows.
func (a *Analytic) BranchLogLikelihood(_ *sptree.Tree, b *Branch) float64 {
	k, x := Stats(b)
	for j, c := range a.comps {
		beta := c.Beta * a.scale
		t := a.logw[j] - float64(k)*math.Log(beta) - (c.Alpha+float64(k))*math.Log1p(x/beta)
		for i := 0; i < k; i++ {
			t += math.Log(c.Alpha + float64(i))
		}
		a.terms[j] = t
	}
	return floats.LogSumExp(a.terms)
}
