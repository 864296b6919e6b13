package starcoal_test

import (
	"bytes"
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/starcoal"
	"github.com/tomopfuku/starcoal/coalescent"
	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/species"
	"github.com/tomopfuku/starcoal/sptree"
)

var chainGeneTrees = []string{
	"(((a1:0.3,a2:0.3):0.9,b1:1.2):0.8,(c1:0.5,c2:0.5):1.5);",
	"((a1:1.4,(a2:1.0,b1:1.0):0.4):0.6,(c1:0.2,c2:0.2):1.8);",
	"(((c1:0.7,c2:0.7):1.0,a1:1.7):0.5,(a2:1.1,b1:1.1):1.1);",
}

func chainSetup(t *testing.T) (*species.Registry, []*genetree.Binding) {
	t.Helper()

	reg, err := species.NewRegistry([]species.Species{
		{Name: "A", Taxa: []string{"a1", "a2"}},
		{Name: "B", Taxa: []string{"b1"}},
		{Name: "C", Taxa: []string{"c1", "c2"}},
	})
	require.NoError(t, err)

	return reg, bindAll(t, reg, chainGeneTrees...)
}

func TestChain_NumericRun(t *testing.T) {
	t.Parallel()

	reg, bs := chainSetup(t)
	sp, err := sptree.NewMaximumTree(reg, bs, 1)
	require.NoError(t, err)
	e, err := starcoal.NewEngine(sp, bs, coalescent.Numeric{})
	require.NoError(t, err)
	prior, err := starcoal.NewPopulationPrior(3, 2)
	require.NoError(t, err)

	var trace bytes.Buffer
	c := starcoal.NewChain(e, prior, starcoal.ChainConfig{
		Generations: 1000,
		PrintFreq:   500,
		SampleFreq:  100,
		BurninTune:  600,
		StepLen:     0.2,
		Seed:        42,
	}, &trace)

	require.NoError(t, c.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
	require.Len(t, lines, 12)
	header := strings.Split(lines[0], "\t")
	assert.Equal(t, []string{"generation", "logPrior", "logLikelihood"}, header[:3])
	assert.Len(t, header, 3+sp.NumPopulations())
	assert.True(t, strings.HasPrefix(lines[11], "1000\t"))

	assert.Equal(t, sptree.Clean, sp.State())
	assert.True(t, sp.Valid())
	assert.True(t, e.AllCompatible())

	lp, ll := c.LogPosterior()
	assert.InDelta(t, prior.LogProb(sp.Populations()), lp, 1e-9)
	e.Invalidate()
	assert.InDelta(t, e.LogLikelihood(), ll, 1e-9, "chain state matches a fresh computation")

	acc := c.Acceptance()
	assert.Contains(t, acc, "height")
	assert.Contains(t, acc, "population")
	assert.NotContains(t, acc, "priorScale")
	assert.Greater(t, c.StepLen(), 0.)
}

func TestChain_AnalyticRun(t *testing.T) {
	t.Parallel()

	reg, bs := chainSetup(t)
	sp, err := sptree.NewUninformed(reg, bs, 1)
	require.NoError(t, err)
	an, err := coalescent.NewAnalytic([]coalescent.Component{
		{Weight: 0.5, Alpha: 2, Beta: 1},
		{Weight: 0.5, Alpha: 4, Beta: 3},
	}, 1)
	require.NoError(t, err)
	e, err := starcoal.NewEngine(sp, bs, an)
	require.NoError(t, err)
	sc, err := starcoal.NewScalePrior(1)
	require.NoError(t, err)

	var trace bytes.Buffer
	c := starcoal.NewChain(e, nil, starcoal.ChainConfig{Generations: 600, SampleFreq: 200, Seed: 3}, &trace,
		starcoal.WithScalePrior(sc))

	require.NoError(t, c.Run(context.Background()))

	lines := strings.Split(strings.TrimSpace(trace.String()), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "generation\tlogPrior\tlogLikelihood\tpopPriorScale", lines[0])

	lp, ll := c.LogPosterior()
	assert.InDelta(t, sc.LogProb(an.Scale()), lp, 1e-9)
	e.Invalidate()
	assert.InDelta(t, e.LogLikelihood(), ll, 1e-9)
	assert.NotContains(t, c.Acceptance(), "population")
}

func TestChain_Errors(t *testing.T) {
	t.Parallel()

	reg, bs := chainSetup(t)

	// a2 and b1 meet at 1.0, below the A/B split
	sp, err := sptree.FromNewick(reg, "((A:1.5,B:1.5):0.5,C:2);", 1)
	require.NoError(t, err)
	e, err := starcoal.NewEngine(sp, bs, coalescent.Numeric{})
	require.NoError(t, err)
	c := starcoal.NewChain(e, nil, starcoal.ChainConfig{Generations: 10}, nil)
	require.ErrorIs(t, c.Run(context.Background()), starcoal.ErrIncompatibleStart)

	sp, err = sptree.NewMaximumTree(reg, bs, 1)
	require.NoError(t, err)
	e, err = starcoal.NewEngine(sp, bs, coalescent.Numeric{})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = starcoal.NewChain(e, nil, starcoal.ChainConfig{Generations: 10}, nil)
	require.ErrorIs(t, c.Run(ctx), context.Canceled)

	lp, ll := c.LogPosterior()
	assert.InDelta(t, 0., lp, 0)
	assert.False(t, math.IsInf(ll, 0))
}
