package starcoal

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/starcoal/coalescent"
	"github.com/tomopfuku/starcoal/genetree"
	"github.com/tomopfuku/starcoal/species"
	"github.com/tomopfuku/starcoal/sptree"
)

func threeSpecies(t *testing.T) *species.Registry {
	t.Helper()

	reg, err := species.NewRegistry([]species.Species{
		{Name: "A", Taxa: []string{"a"}},
		{Name: "B", Taxa: []string{"b"}},
		{Name: "C", Taxa: []string{"c"}},
	})
	require.NoError(t, err)

	return reg
}

func TestSlidingWindowReflects(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for range 1000 {
		v := slidingWindow(rng, 0.01, 1)
		assert.GreaterOrEqual(t, v, 0.)
		assert.LessOrEqual(t, v, 0.51)
	}
}

func TestMultiplierRange(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(3, 4))
	for range 1000 {
		m := multiplier(rng, 0.4)
		assert.GreaterOrEqual(t, m, math.Exp(-0.2))
		assert.LessOrEqual(t, m, math.Exp(0.2))
	}
}

func TestAdjustStepLength(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.1, adjustStepLength(0.1, targetAccept), 1e-12)
	assert.Greater(t, adjustStepLength(0.1, 0.8), 0.1)
	assert.Less(t, adjustStepLength(0.1, 0.1), 0.1)
	assert.InDelta(t, minStepLen, adjustStepLength(minStepLen, 0), 1e-15)
}

func TestWindowScaleIgnoresMovingNode(t *testing.T) {
	t.Parallel()

	sp, err := sptree.FromNewick(threeSpecies(t), "((A:0.5,B:0.5):1,C:1.5);", 1)
	require.NoError(t, err)

	root := sp.Root()
	inner := sp.Internal()[0]
	if inner == root {
		inner = sp.Internal()[1]
	}
	assert.InDelta(t, 0.5, windowScale(sp, root), 0)
	assert.InDelta(t, 1.5, windowScale(sp, inner), 0)

	// moving the root must not change the window it was proposed from
	sp.BeginEdit()
	sp.SetHeight(root, 2.5)
	require.True(t, sp.EndEdit())
	sp.AcceptState()
	assert.InDelta(t, 0.5, windowScale(sp, root), 0)
	assert.InDelta(t, 2.5, windowScale(sp, inner), 0)

	sp.BeginEdit()
	sp.SetHeight(inner, 0.8)
	require.True(t, sp.EndEdit())
	sp.AcceptState()
	assert.InDelta(t, 2.5, windowScale(sp, inner), 0)

	reg, err := species.NewRegistry([]species.Species{
		{Name: "A", Taxa: []string{"a"}},
		{Name: "B", Taxa: []string{"b"}},
	})
	require.NoError(t, err)
	pair, err := sptree.FromNewick(reg, "(A:1,B:1);", 1)
	require.NoError(t, err)
	assert.InDelta(t, 1., windowScale(pair, pair.Root()), 0)
}

func TestPriorScaleRestoredOnReject(t *testing.T) {
	t.Parallel()

	reg := threeSpecies(t)
	var trees []*genetree.Tree
	for _, nwk := range []string{"((a:0.5,b:0.5):1.0,c:1.5);", "((a:0.9,b:0.9):0.3,c:1.2);"} {
		tr, err := genetree.ReadTree("g", nwk)
		require.NoError(t, err)
		trees = append(trees, tr)
	}
	bs, err := BindAll(reg, trees)
	require.NoError(t, err)
	sp, err := sptree.NewMaximumTree(reg, bs, 1)
	require.NoError(t, err)
	an, err := coalescent.NewAnalytic([]coalescent.Component{{Weight: 1, Alpha: 3, Beta: 2}}, 1)
	require.NoError(t, err)
	e, err := NewEngine(sp, bs, an)
	require.NoError(t, err)
	sc, err := NewScalePrior(0.5)
	require.NoError(t, err)

	c := NewChain(e, nil, ChainConfig{StepLen: 4, Seed: 11}, nil, WithScalePrior(sc))
	c.curLL = e.Score()
	c.curLP = c.logPrior()

	rejected := 0
	for range 300 {
		before := an.Scale()
		acc := c.accepted[movePriorScale]
		c.priorScaleUpdate()
		if c.accepted[movePriorScale] == acc {
			rejected++
			assert.InDelta(t, before, an.Scale(), 0)
		}
		e.Invalidate()
		assert.InDelta(t, c.curLL, e.LogLikelihood(), 1e-9)
	}
	assert.Positive(t, rejected)
}
