package starcoal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/tomopfuku/starcoal/coalescent"
	"github.com/tomopfuku/starcoal/sptree"
)

// ErrIncompatibleStart is returned when the starting species tree scores -Inf.
var ErrIncompatibleStart = errors.New("starcoal: starting species tree is incompatible with the gene trees")

const (
	tuneEvery    = 200
	targetAccept = 0.44 // optimal acceptance for uniform proposals
	minStepLen   = 1e-4
)

type move int

const (
	moveHeight move = iota
	moveTreeScale
	movePopulation
	movePriorScale
	nMoves
)

var moveNames = [nMoves]string{"height", "treeScale", "population", "priorScale"}

// ChainConfig holds the run settings of a Chain.
type ChainConfig struct {
	Generations int
	PrintFreq   int
	SampleFreq  int
	BurninTune  int // generations during which the step length is tuned
	StepLen     float64
	Seed        uint64 // 0 seeds from the clock
}

// Chain is a Metropolis-Hastings sampler over species-tree heights and
// either the population vector (numeric model) or the prior scale
// (analytic model).
type Chain struct {
	cfg    ChainConfig
	engine *Engine
	pops   *PopulationPrior
	scale  *ScalePrior
	an     *coalescent.Analytic

	rng     *rand.Rand
	stepLen float64
	curLP   float64
	curLL   float64

	proposed [nMoves]int
	accepted [nMoves]int

	trace io.Writer
	log   *slog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithChainLogger sets the progress logger.
func WithChainLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.log = l }
}

// WithScalePrior sets the prior on the analytic model's scale.
func WithScalePrior(p *ScalePrior) ChainOption {
	return func(c *Chain) { c.scale = p }
}

// NewChain sets up all of the attributes of the MCMC run. Trace rows are
// written to trace, which may be nil.
func NewChain(engine *Engine, pops *PopulationPrior, cfg ChainConfig, trace io.Writer, opts ...ChainOption) *Chain {
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	c := &Chain{
		cfg:     cfg,
		engine:  engine,
		pops:    pops,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		stepLen: cfg.StepLen,
		trace:   trace,
		log:     slog.Default(),
	}
	if c.stepLen <= 0 {
		c.stepLen = 0.1
	}
	if c.cfg.PrintFreq <= 0 {
		c.cfg.PrintFreq = 1000
	}
	if c.cfg.SampleFreq <= 0 {
		c.cfg.SampleFreq = 100
	}
	c.an, _ = engine.Model().(*coalescent.Analytic)
	for _, o := range opts {
		o(c)
	}
	return c
}

// StepLen returns the current step length.
func (c *Chain) StepLen() float64 { return c.stepLen }

// LogPosterior returns the current log prior and log likelihood.
func (c *Chain) LogPosterior() (logPrior, logLike float64) { return c.curLP, c.curLL }

// Acceptance returns the acceptance ratio of each move that was tried.
func (c *Chain) Acceptance() map[string]float64 {
	ret := make(map[string]float64)
	for m := range nMoves {
		if c.proposed[m] > 0 {
			ret[moveNames[m]] = float64(c.accepted[m]) / float64(c.proposed[m])
		}
	}
	return ret
}

func (c *Chain) logPrior() float64 {
	lp := 0.
	if c.an == nil && c.pops != nil {
		lp += c.pops.LogProb(c.engine.Tree().Populations())
	}
	if c.an != nil && c.scale != nil {
		lp += c.scale.LogProb(c.an.Scale())
	}
	return lp
}

// Run will run Markov Chain Monte Carlo simulations, adjusting species-tree
// heights and population parameters, until the generation count is reached
// or ctx is done.
func (c *Chain) Run(ctx context.Context) error {
	c.curLL = c.engine.Score()
	if math.IsInf(c.curLL, -1) {
		return ErrIncompatibleStart
	}
	c.curLP = c.logPrior()
	if err := c.writeHeader(); err != nil {
		return err
	}
	start := time.Now()
	c.log.Info("chain started", "generations", c.cfg.Generations, "logPrior", c.curLP, "logLikelihood", c.curLL)
	for i := 0; i <= c.cfg.Generations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			c.update()
		}
		if i > 0 && i%tuneEvery == 0 && i <= c.cfg.BurninTune {
			c.stepLen = adjustStepLength(c.stepLen, c.acceptanceRatio())
		}
		if i%c.cfg.SampleFreq == 0 {
			if err := c.writeRow(i); err != nil {
				return err
			}
		}
		if i > 0 && i%c.cfg.PrintFreq == 0 {
			c.log.Info("chain progress", "generation", i, "logPrior", c.curLP, "logLikelihood", c.curLL,
				"acceptance", c.acceptanceRatio(), "stepLen", c.stepLen)
		}
	}
	c.log.Info("chain finished", "generations", c.cfg.Generations, "elapsed", time.Since(start),
		"newick", c.engine.Tree().Newick(true))
	return nil
}

func (c *Chain) acceptanceRatio() float64 {
	p, a := 0, 0
	for m := range nMoves {
		p += c.proposed[m]
		a += c.accepted[m]
	}
	if p == 0 {
		return 0.
	}
	return float64(a) / float64(p)
}

func (c *Chain) update() {
	r := c.rng.Float64()
	switch {
	case r < 0.6:
		c.heightUpdate()
	case r < 0.7:
		c.treeScaleUpdate()
	case c.an != nil:
		c.priorScaleUpdate()
	default:
		c.populationUpdate()
	}
}

// propose will finish a proposal started with Engine.BeginEdit and accept or
// reject it. Invalid and incompatible proposals are rejected outright.
func (c *Chain) propose(m move, logHastings float64) bool {
	c.proposed[m]++
	e := c.engine
	if !e.EndEdit() {
		e.RestoreState()
		return false
	}
	ll := e.Score()
	if math.IsInf(ll, -1) {
		e.RestoreState()
		return false
	}
	lp := c.logPrior()
	logAlpha := lp - c.curLP + ll - c.curLL + logHastings
	if math.Log(c.rng.Float64()) < logAlpha {
		e.AcceptState()
		c.curLP, c.curLL = lp, ll
		c.accepted[m]++
		return true
	}
	e.RestoreState()
	return false
}

func (c *Chain) heightUpdate() {
	t := c.engine.Tree()
	in := t.Internal()
	id := in[c.rng.IntN(len(in))]
	c.engine.BeginEdit()
	t.SetHeight(id, slidingWindow(c.rng, t.Height(id), c.stepLen*windowScale(t, id)))
	c.propose(moveHeight, 0)
}

// windowScale is the height the sliding window for node id is scaled by. It
// never reads id's own height, so the window is the same in both directions:
// other nodes scale by the root height and the root by its taller child.
func windowScale(t *sptree.Tree, id int) float64 {
	if id != t.Root() {
		return t.Height(t.Root())
	}
	l, r := t.Children(id)
	if h := math.Max(t.Height(l), t.Height(r)); h > 0 {
		return h
	}
	return 1.
}

func (c *Chain) treeScaleUpdate() {
	t := c.engine.Tree()
	mult := multiplier(c.rng, c.stepLen)
	c.engine.BeginEdit()
	t.ScaleHeights(mult)
	c.propose(moveTreeScale, float64(len(t.Internal()))*math.Log(mult))
}

func (c *Chain) populationUpdate() {
	t := c.engine.Tree()
	j := c.rng.IntN(t.NumPopulations())
	mult := multiplier(c.rng, c.stepLen)
	c.engine.BeginEdit()
	t.SetPopulation(j, t.Population(j)*mult)
	c.propose(movePopulation, math.Log(mult))
}

func (c *Chain) priorScaleUpdate() {
	old := c.an.Scale()
	mult := multiplier(c.rng, c.stepLen)
	c.engine.BeginEdit()
	if err := c.an.SetScale(old * mult); err != nil {
		c.engine.EndEdit()
		c.engine.RestoreState()
		c.proposed[movePriorScale]++
		return
	}
	if !c.propose(movePriorScale, math.Log(mult)) {
		// the restored cache already holds the old scale's value
		if err := c.an.SetScale(old); err != nil {
			panic(fmt.Sprintf("starcoal: restoring prior scale %g: %v", old, err))
		}
	}
}

func (c *Chain) writeHeader() error {
	if c.trace == nil {
		return nil
	}
	names, _ := c.engine.PopulationColumns()
	cols := append([]string{"generation", "logPrior", "logLikelihood"}, names...)
	_, err := fmt.Fprintln(c.trace, strings.Join(cols, "\t"))
	return err
}

func (c *Chain) writeRow(i int) error {
	if c.trace == nil {
		return nil
	}
	_, vals := c.engine.PopulationColumns()
	row := []string{
		strconv.Itoa(i),
		strconv.FormatFloat(c.curLP, 'f', -1, 64),
		strconv.FormatFloat(c.curLL, 'f', -1, 64),
	}
	for _, v := range vals {
		row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
	}
	_, err := fmt.Fprintln(c.trace, strings.Join(row, "\t"))
	return err
}

func slidingWindow(rng *rand.Rand, theta, wsize float64) (thetaStar float64) {
	u := rng.Float64()
	thetaStar = theta - (wsize / 2.) + (wsize * u)
	if thetaStar < 0. {
		thetaStar = -thetaStar
	}
	return
}

func multiplier(rng *rand.Rand, epsilon float64) float64 {
	u := rng.Float64()
	return math.Exp((u - 0.5) * epsilon)
}

// adjustStepLength will calculate the optimal step length from the
// acceptance ratio so far.
func adjustStepLength(epsilon, acceptanceRatio float64) (epsilonStar float64) {
	acc := math.Min(math.Max(acceptanceRatio, 0.01), 0.99)
	s := math.Pi / 2.
	epsilonStar = epsilon * (math.Tan(s*acc) / math.Tan(s*targetAccept))
	if epsilonStar < minStepLen {
		epsilonStar = minStepLen
	}
	return
}
