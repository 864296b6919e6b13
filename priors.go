package starcoal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrPrior is returned for non-positive prior hyperparameters.
var ErrPrior = errors.New("starcoal: prior hyperparameters must be positive")

// PopulationPrior is an inverse-gamma prior placed independently on every entry of the population vector
type PopulationPrior struct {
	Alpha   float64 // shape
	Beta    float64 // scale
	density distuv.InverseGamma
}

// NewPopulationPrior will initialize the prior on the population vector
func NewPopulationPrior(alpha, beta float64) (*PopulationPrior, error) {
	if !(alpha > 0) || !(beta > 0) {
		return nil, fmt.Errorf("%w: alpha=%g beta=%g", ErrPrior, alpha, beta)
	}
	p := new(PopulationPrior)
	p.Alpha = alpha
	p.Beta = beta
	p.density = distuv.InverseGamma{Alpha: alpha, Beta: beta}
	return p, nil
}

// LogProb will return the summed log density of pops
func (p *PopulationPrior) LogProb(pops []float64) float64 {
	lp := 0.
	for _, v := range pops {
		if !(v > 0) {
			return math.Inf(-1)
		}
		lp += p.density.LogProb(v)
	}
	return lp
}

// Mean is the prior mean, +Inf when alpha <= 1.
func (p *PopulationPrior) Mean() float64 {
	if p.Alpha <= 1 {
		return math.Inf(1)
	}
	return p.Beta / (p.Alpha - 1)
}

// ScalePrior is the log-normal prior on the analytic model's prior scale
type ScalePrior struct {
	density distuv.LogNormal
}

// NewScalePrior will center the prior on scale 1 with the given log-scale spread
func NewScalePrior(sigma float64) (*ScalePrior, error) {
	if !(sigma > 0) {
		return nil, fmt.Errorf("%w: sigma=%g", ErrPrior, sigma)
	}
	return &ScalePrior{density: distuv.LogNormal{Mu: 0, Sigma: sigma}}, nil
}

// LogProb will return the log density of scale s
func (p *ScalePrior) LogProb(s float64) float64 {
	if !(s > 0) {
		return math.Inf(-1)
	}
	return p.density.LogProb(s)
}
