// Package demog provides per-branch demographic functions N(t), with t
// measured from the start (tipward end) of a species-tree branch.
package demog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/integrate/quad"
)

// Sentinel construction errors.
var (
	ErrNonPositive = errors.New("demog: population size must be positive")
	ErrUnsorted    = errors.New("demog: change points must be strictly increasing and positive")
	ErrLength      = errors.New("demog: need one more value than change points")
)

// Function is a population size history.
type Function interface {
	// Population is N(t).
	Population(t float64) float64
	// Integral is the integral of 1/N over [t0, t1].
	Integral(t0, t1 float64) float64
}

// Constant is a fixed population size.
type Constant struct {
	N float64
}

// Population returns N.
func (c Constant) Population(float64) float64 { return c.N }

// Integral returns (t1-t0)/N.
func (c Constant) Integral(t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0.
	}
	return (t1 - t0) / c.N
}

func (c Constant) String() string { return strconv.FormatFloat(c.N, 'g', 6, 64) }

// Kind selects the shape of a branch history between its end points.
type Kind int

const (
	// Linear interpolates between consecutive values.
	Linear Kind = iota
	// Stepwise holds each value until the next change point.
	Stepwise
	// Exponential grows or shrinks geometrically along the branch. It has
	// no Piecewise form; see NewExponential.
	Exponential
)

// Piecewise is a population history with change points. The value at index
// j applies from times[j]; after the last change point the final value
// holds forever.
type Piecewise struct {
	kind   Kind
	times  []float64 // times[0] = 0, then the change points
	values []float64
}

// NewLinear will build a piecewise-linear history through values at time 0
// and at each change point.
func NewLinear(changes, values []float64) (*Piecewise, error) {
	return newPiecewise(Linear, changes, values)
}

// NewStepwise will build a step history: values[0] until changes[0], etc.
func NewStepwise(changes, values []float64) (*Piecewise, error) {
	return newPiecewise(Stepwise, changes, values)
}

func newPiecewise(kind Kind, changes, values []float64) (*Piecewise, error) {
	if len(values) != len(changes)+1 {
		return nil, fmt.Errorf("%w: %d change points, %d values", ErrLength, len(changes), len(values))
	}
	prev := 0.
	for _, c := range changes {
		if !(c > prev) {
			return nil, fmt.Errorf("%w: %v", ErrUnsorted, changes)
		}
		prev = c
	}
	for _, v := range values {
		if !(v > 0) || math.IsInf(v, 1) {
			return nil, fmt.Errorf("%w: %v", ErrNonPositive, values)
		}
	}
	p := &Piecewise{
		kind:   kind,
		times:  make([]float64, len(changes)+1),
		values: append([]float64(nil), values...),
	}
	copy(p.times[1:], changes)
	return p, nil
}

// segment returns the index j with times[j] <= t < times[j+1], the last
// index for t beyond the final change point.
func (p *Piecewise) segment(t float64) int {
	j := sort.SearchFloat64s(p.times, t)
	if j < len(p.times) && p.times[j] == t {
		return j
	}
	if j == 0 {
		return 0
	}
	return j - 1
}

// Population will return N(t).
func (p *Piecewise) Population(t float64) float64 {
	j := p.segment(t)
	if p.kind == Stepwise || j == len(p.values)-1 {
		return p.values[j]
	}
	a := (t - p.times[j]) / (p.times[j+1] - p.times[j])
	return a*p.values[j+1] + (1-a)*p.values[j]
}

// Integral will return the integral of 1/N(t) over [t0, t1].
func (p *Piecewise) Integral(t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0.
	}
	sum := 0.
	j := p.segment(t0)
	for start := t0; start < t1; j++ {
		end := t1
		if j+1 < len(p.times) && p.times[j+1] < end {
			end = p.times[j+1]
		}
		if math.IsInf(end, 1) {
			return math.Inf(1)
		}
		sum += p.segmentIntegral(j, start, end)
		start = end
	}
	return sum
}

func (p *Piecewise) segmentIntegral(j int, start, end float64) float64 {
	dx := end - start
	if dx == 0 {
		return 0.
	}
	if p.kind == Stepwise || j == len(p.values)-1 {
		return dx / p.values[j]
	}
	p0 := p.Population(start)
	p1 := p.Population(end)
	diff := p1 - p0
	if math.Abs(diff) <= 1e-12*p0 {
		return dx / (0.5 * (p0 + p1))
	}
	return dx * math.Log(p1/p0) / diff
}

func (p *Piecewise) String() string {
	var b strings.Builder
	for i, v := range p.values {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g:%g", p.times[i], v)
	}
	return b.String()
}

// Quadrature integrates 1/N numerically for an arbitrary population curve.
type Quadrature struct {
	Pop    func(t float64) float64
	Points int
}

const defaultQuadPoints = 64

// Population will return Pop(t).
func (q Quadrature) Population(t float64) float64 { return q.Pop(t) }

// Integral will approximate the integral of 1/Pop over [t0, t1] with a
// fixed Gauss-Legendre rule.
func (q Quadrature) Integral(t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0.
	}
	if math.IsInf(t1, 1) {
		return math.Inf(1)
	}
	n := q.Points
	if n <= 0 {
		n = defaultQuadPoints
	}
	return quad.Fixed(func(t float64) float64 { return 1 / q.Pop(t) }, t0, t1, n, nil, 0)
}

// NewExponential will build a history that changes geometrically from p0 at
// time 0 to pe at length and holds pe afterwards. Its integral is taken by
// quadrature.
func NewExponential(length, p0, pe float64) (Quadrature, error) {
	if !(length > 0) || math.IsInf(length, 1) {
		return Quadrature{}, fmt.Errorf("%w: length %g", ErrUnsorted, length)
	}
	for _, v := range []float64{p0, pe} {
		if !(v > 0) || math.IsInf(v, 1) {
			return Quadrature{}, fmt.Errorf("%w: %g, %g", ErrNonPositive, p0, pe)
		}
	}
	rate := math.Log(pe/p0) / length
	return Quadrature{Pop: func(t float64) float64 {
		if t >= length {
			return pe
		}
		return p0 * math.Exp(rate*t)
	}}, nil
}
